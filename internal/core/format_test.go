package core

import (
	"errors"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     ImportType
		wantExt  string
	}{
		{"catalog.csv", ImportCSV, ""},
		{"CATALOG.CSV", ImportCSV, ""},
		{"prices.xlsx", ImportExcel, ""},
		{"legacy.XLS", ImportExcel, ""},
		{"feed.json", ImportJSON, ""},
		{"archive.tar.json", ImportJSON, ""},
		{"notes.txt", "", "txt"},
		{"noextension", "", ""},
		{"csv", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if tt.want != "" {
				if err != nil {
					t.Fatalf("DetectFormat(%q) error: %v", tt.filename, err)
				}
				if got != tt.want {
					t.Errorf("DetectFormat(%q) = %q, want %q", tt.filename, got, tt.want)
				}
				return
			}

			var ufe *UnsupportedFormatError
			if !errors.As(err, &ufe) {
				t.Fatalf("DetectFormat(%q) error = %v, want *UnsupportedFormatError", tt.filename, err)
			}
			if ufe.Extension != tt.wantExt {
				t.Errorf("Extension = %q, want %q", ufe.Extension, tt.wantExt)
			}
		})
	}
}

func TestImportType_Valid(t *testing.T) {
	for _, it := range []ImportType{ImportCSV, ImportExcel, ImportJSON} {
		if !it.Valid() {
			t.Errorf("%q.Valid() = false, want true", it)
		}
	}
	if ImportType("xml").Valid() {
		t.Error(`"xml".Valid() = true, want false`)
	}
}
