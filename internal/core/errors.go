package core

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the service and the job runner.
var (
	ErrEmptyFile         = errors.New("empty file: no data rows found")
	ErrCatalogNotFound   = errors.New("catalog not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrSupplierNotFound  = errors.New("supplier not found")
	ErrSupplierInactive  = errors.New("supplier is inactive")
	ErrNoFieldMappings   = errors.New("field mappings must be defined before processing")
	ErrCatalogNotPending = errors.New("catalog already processed")
	ErrFileTooLarge      = errors.New("file too large")
	ErrNoFile            = errors.New("no file provided")
	ErrJobCancelled      = errors.New("import cancelled")
	ErrJobFinished       = errors.New("job already finished")
	ErrSchemaPending     = errors.New("schema not detected yet")
	ErrInvalidMapping    = errors.New("invalid field mapping")
	ErrInvalidSupplier   = errors.New("invalid supplier")
)

// UnsupportedFormatError is returned when a filename has none of the
// recognised catalog extensions.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "unsupported file format: file has no extension"
	}
	return fmt.Sprintf("unsupported file format: %q", e.Extension)
}

// ParseError reports malformed content for the file's declared format.
type ParseError struct {
	Format ImportType
	Line   int // 1-based line or sheet row, 0 when unknown
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowError is a recoverable failure building a product from one row.
// The row is skipped and recorded; the job continues.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed batch commit. It is always job-fatal.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConnectorError wraps a failure fetching a source file, whether from blob
// storage or an external source adapter.
type ConnectorError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *ConnectorError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch from %s failed after %d attempts: %v", e.Source, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// IsJobFatal reports whether err must abort a job rather than skip a row.
func IsJobFatal(err error) bool {
	if err == nil {
		return false
	}
	var rowErr *RowError
	return !errors.As(err, &rowErr)
}
