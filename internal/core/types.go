package core

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state shared by catalogs and import jobs.
// Transitions only move forward: pending, processing, then completed or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobKind distinguishes the two jobs run against a catalog file.
type JobKind string

const (
	// JobAnalyze parses the file and records its row count and schema.
	JobAnalyze JobKind = "analyze"
	// JobImport maps every row and persists products.
	JobImport JobKind = "import"
)

// SupplierStatus is the soft-delete lifecycle of a supplier.
type SupplierStatus string

const (
	SupplierActive   SupplierStatus = "active"
	SupplierInactive SupplierStatus = "inactive"
)

// Catalog is one uploaded supplier file and its import state.
type Catalog struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	SupplierID     int64          `json:"supplier_id"`
	FilePath       string         `json:"file_path"`
	ImportType     ImportType     `json:"import_type"`
	Status         Status         `json:"status"`
	RowCount       int            `json:"row_count"`
	ErrorCount     int            `json:"error_count"`
	ErrorLog       []ErrorEntry   `json:"error_log"`
	FieldMappings  []FieldMapping `json:"field_mappings"`
	DetectedSchema Schema         `json:"detected_schema,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

// BlobPrefix is the storage prefix holding every object of the catalog.
func (c *Catalog) BlobPrefix() string {
	return CatalogPrefix(c.SupplierID, c.ID)
}

// ImportJob is one processing attempt of a catalog.
type ImportJob struct {
	ID              uuid.UUID    `json:"id"`
	CatalogID       uuid.UUID    `json:"catalog_id"`
	Kind            JobKind      `json:"kind"`
	Status          Status       `json:"status"`
	TotalRows       int          `json:"total_rows"`
	ProcessedRows   int          `json:"processed_rows"`
	ErrorCount      int          `json:"error_count"`
	ErrorLog        []ErrorEntry `json:"error_log"`
	CancelRequested bool         `json:"cancel_requested"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// Product is one persisted canonical row.
type Product struct {
	ID        uuid.UUID `json:"id"`
	CatalogID uuid.UUID `json:"catalog_id"`
	SKU       string    `json:"sku"`
	Data      *Record   `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorEntry is one error_log item. RowIndex is nil for job-level failures.
type ErrorEntry struct {
	RowIndex *int   `json:"row_index"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
}

// RowErrorEntry builds the log entry for a skipped row.
func RowErrorEntry(row int, msg string) ErrorEntry {
	return ErrorEntry{RowIndex: &row, Message: msg}
}

// JobStatus is the read-only progress projection of a catalog and its most
// recent job.
type JobStatus struct {
	CatalogID     uuid.UUID  `json:"catalog_id"`
	CatalogStatus Status     `json:"catalog_status"`
	JobID         *uuid.UUID `json:"job_id,omitempty"`
	JobKind       JobKind    `json:"job_kind,omitempty"`
	JobStatus     *Status    `json:"job_status"`
	ProcessedRows int        `json:"processed_rows"`
	TotalRows     int        `json:"total_rows"`
	ErrorCount    int        `json:"error_count"`
	LastUpdated   time.Time  `json:"last_updated"`
}

// BatchResult is the durable outcome of one batch. The products, the job's
// progress and the catalog's error counters are committed together.
type BatchResult struct {
	JobID         uuid.UUID
	Products      []Product
	ProcessedRows int          // rows handled so far, including this batch
	ErrorCount    int          // row errors in this batch
	NewErrors     []ErrorEntry // appended to the job's and catalog's error_log
	At            time.Time
}
