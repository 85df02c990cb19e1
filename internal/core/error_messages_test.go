package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"file too large", fmt.Errorf("%w: 200 bytes exceeds limit of 100", ErrFileTooLarge), "FILE001"},
		{"unsupported format", &UnsupportedFormatError{Extension: "txt"}, "FILE002"},
		{"csv parse error", &ParseError{Format: ImportCSV, Line: 3, Err: errors.New("bare quote")}, "FILE003"},
		{"spreadsheet parse error", &ParseError{Format: ImportExcel, Err: errors.New("zip: not a valid zip file")}, "FILE004"},
		{"json parse error", &ParseError{Format: ImportJSON, Err: errors.New("unexpected EOF")}, "FILE005"},
		{"encoding error", &ParseError{Format: ImportCSV, Err: errors.New("decode text: bad")}, "FILE006"},
		{"no file", ErrNoFile, "FILE007"},
		{"empty file", ErrEmptyFile, "FILE008"},
		{"catalog not found", ErrCatalogNotFound, "CAT001"},
		{"catalog not pending", ErrCatalogNotPending, "CAT002"},
		{"no mappings", ErrNoFieldMappings, "CAT003"},
		{"invalid mapping", fmt.Errorf("%w: mapping 0: source_column is required", ErrInvalidMapping), "CAT004"},
		{"schema pending", ErrSchemaPending, "CAT005"},
		{"supplier inactive", ErrSupplierInactive, "SUP002"},
		{"cancelled import", ErrJobCancelled, "JOB002"},
		{"cancelled by deadline", fmt.Errorf("%w: %v", ErrJobCancelled, context.DeadlineExceeded), "JOB002"},
		{"fetch failed by deadline", &ConnectorError{Source: "blob x", Attempts: 3, Err: context.DeadlineExceeded}, "SRC001"},
		{"batch write failed", &PersistenceError{Op: "batch commit", Err: errors.New("connection reset by peer")}, "DB008"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"request timeout", context.DeadlineExceeded, "REQ002"},
		{"busy", ErrBusy, "REQ003"},
		{"case insensitive", errors.New("DEADLOCK detected"), "DB007"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v) code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrEmptyFile)
	want := "The file has no data rows (Code: FILE008). Upload a file with a header and at least one row"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrCatalogNotFound, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		userErr := NewUserError(ErrSupplierInactive)
		if userErr.Error() != "Supplier is inactive" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrSupplierInactive) {
			t.Error("errors.Is(userErr, ErrSupplierInactive) = false, want true")
		}
	})
}
