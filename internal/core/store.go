package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CatalogPrefix is the blob prefix shared by every object of a catalog.
func CatalogPrefix(supplierID int64, catalogID uuid.UUID) string {
	return fmt.Sprintf("catalogs/%d/%s/", supplierID, catalogID)
}

// CatalogFileKey is the blob key of an uploaded catalog file.
func CatalogFileKey(supplierID int64, catalogID uuid.UUID, filename string) string {
	return CatalogPrefix(supplierID, catalogID) + filename
}

// Supplier is the owner namespace of catalogs. Suppliers are soft deleted.
type Supplier struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Status    SupplierStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ClaimParams fences a job start. The claim only succeeds while the job is
// still pending.
type ClaimParams struct {
	JobID     uuid.UUID
	TotalRows int
	At        time.Time
}

// JobFailure describes a job-fatal outcome. The catalog is marked failed only
// when its current status is one of CatalogFrom.
type JobFailure struct {
	JobID       uuid.UUID
	CatalogID   uuid.UUID
	Entry       ErrorEntry
	At          time.Time
	CatalogFrom []Status
}

// Store is the persistence boundary of the import pipeline.
//
// Every method that changes a job or catalog status is a compare-and-set:
// implementations must never move a status backward.
type Store interface {
	UpsertSupplier(ctx context.Context, id int64, name string) (*Supplier, error)
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)
	DeactivateSupplier(ctx context.Context, id int64, at time.Time) error

	// CreateCatalog inserts a catalog and its first job atomically.
	CreateCatalog(ctx context.Context, c *Catalog, job *ImportJob) error
	GetCatalog(ctx context.Context, id uuid.UUID) (*Catalog, error)
	// SaveFieldMappings fails with ErrCatalogNotPending once processing began.
	SaveFieldMappings(ctx context.Context, id uuid.UUID, mappings []FieldMapping, at time.Time) error
	ListCatalogsCreatedBefore(ctx context.Context, cutoff time.Time) ([]*Catalog, error)
	// DeleteCatalog removes the catalog with its products and jobs.
	DeleteCatalog(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	// LatestJob returns the most recently created job of a catalog, or
	// ErrJobNotFound when none exists.
	LatestJob(ctx context.Context, catalogID uuid.UUID) (*ImportJob, error)

	// ClaimJob moves a pending job to processing. Import jobs move their
	// catalog from pending to processing in the same transaction and fail
	// with ErrCatalogNotPending when it already left pending. A job that is
	// not pending yields ErrJobFinished.
	ClaimJob(ctx context.Context, p ClaimParams) (*ImportJob, error)
	// CommitBatch persists products and job counters together.
	CommitBatch(ctx context.Context, b BatchResult) error
	FinishAnalysis(ctx context.Context, jobID, catalogID uuid.UUID, rowCount int, schema Schema, at time.Time) error
	FinishImport(ctx context.Context, jobID, catalogID uuid.UUID, at time.Time) error
	FailJob(ctx context.Context, f JobFailure) error
	// CancelJob fails a pending job outright and flags a processing one.
	// Terminal jobs yield ErrJobFinished.
	CancelJob(ctx context.Context, jobID uuid.UUID, entry ErrorEntry, at time.Time) (*ImportJob, error)
	CancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error)
	// ListStaleJobs returns jobs in status whose last update is before cutoff.
	ListStaleJobs(ctx context.Context, status Status, cutoff time.Time) ([]*ImportJob, error)

	ListProducts(ctx context.Context, catalogID uuid.UUID, limit, offset int) ([]Product, error)
}

// ErrBlobNotFound is returned by BlobStore.Get for a missing key.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds uploaded catalog files.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// DeleteByPrefix removes every object under prefix and returns how many
	// were deleted. Deleting an empty prefix is not an error.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// Task is one delivery of a job id. Deliveries are at-least-once, so the
// same job may be received more than once.
type Task struct {
	JobID   uuid.UUID
	Receipt string
}

// ErrQueueEmpty is returned by Dequeue when no task arrived before its
// wait elapsed.
var ErrQueueEmpty = errors.New("queue empty")

// TaskQueue dispatches jobs to workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
	// Dequeue blocks until a task is available, ctx is done, or the
	// implementation's poll wait elapses (ErrQueueEmpty).
	Dequeue(ctx context.Context) (Task, error)
	Ack(ctx context.Context, t Task) error
}
