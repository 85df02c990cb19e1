package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultBatchSize is the number of rows committed per transaction.
const DefaultBatchSize = 1000

// Options tunes the import pipeline.
type Options struct {
	BatchSize   int
	MaxFileSize int64
	JobTimeout  time.Duration
	Fetch       RetryPolicy
}

// DefaultOptions returns the settings used when configuration is absent.
func DefaultOptions() Options {
	return Options{
		BatchSize:   DefaultBatchSize,
		MaxFileSize: 100 << 20,
		JobTimeout:  30 * time.Minute,
		Fetch:       DefaultRetryPolicy,
	}
}

// Service provides the catalog import operations.
type Service struct {
	store    Store
	blobs    BlobStore
	queue    TaskQueue
	opts     Options
	validate *validator.Validate

	now func() time.Time
}

// NewService creates a new Service instance.
func NewService(store Store, blobs BlobStore, queue TaskQueue, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		store:    store,
		blobs:    blobs,
		queue:    queue,
		opts:     opts,
		validate: v,
		now:      time.Now,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// RegisterSupplier creates a supplier or renames an existing one.
func (s *Service) RegisterSupplier(ctx context.Context, id int64, name string) (*Supplier, error) {
	name = strings.TrimSpace(name)
	if id <= 0 || name == "" {
		return nil, fmt.Errorf("%w: id must be positive and name non-empty", ErrInvalidSupplier)
	}
	return s.store.UpsertSupplier(ctx, id, name)
}

// DeactivateSupplier soft deletes a supplier. Its catalogs are kept; new
// uploads are rejected.
func (s *Service) DeactivateSupplier(ctx context.Context, id int64) error {
	return s.store.DeactivateSupplier(ctx, id, s.clock())
}

// NewCatalog is an uploaded catalog file.
type NewCatalog struct {
	SupplierID  int64
	Name        string // defaults to the filename without extension
	Filename    string
	ContentType string // advisory only
	Data        []byte
}

// CreateCatalog stores the file, records a pending catalog with its analyze
// job, and dispatches the job. The format is checked before any side effect.
func (s *Service) CreateCatalog(ctx context.Context, in NewCatalog) (*Catalog, *ImportJob, error) {
	filename := path.Base(strings.ReplaceAll(strings.TrimSpace(in.Filename), "\\", "/"))
	importType, err := DetectFormat(filename)
	if err != nil {
		return nil, nil, err
	}
	if len(in.Data) == 0 {
		return nil, nil, ErrNoFile
	}
	if s.opts.MaxFileSize > 0 && int64(len(in.Data)) > s.opts.MaxFileSize {
		return nil, nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, len(in.Data), s.opts.MaxFileSize)
	}

	supplier, err := s.store.GetSupplier(ctx, in.SupplierID)
	if err != nil {
		return nil, nil, err
	}
	if supplier.Status != SupplierActive {
		return nil, nil, ErrSupplierInactive
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(filename, path.Ext(filename))
	}

	now := s.clock()
	catalog := &Catalog{
		ID:         uuid.New(),
		Name:       name,
		SupplierID: in.SupplierID,
		ImportType: importType,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	catalog.FilePath = CatalogFileKey(catalog.SupplierID, catalog.ID, filename)

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.blobs.Put(ctx, catalog.FilePath, in.Data, contentType); err != nil {
		return nil, nil, fmt.Errorf("store catalog file: %w", err)
	}

	job := newJob(catalog.ID, JobAnalyze, now)
	if err := s.store.CreateCatalog(ctx, catalog, job); err != nil {
		if _, derr := s.blobs.DeleteByPrefix(context.WithoutCancel(ctx), catalog.BlobPrefix()); derr != nil {
			slog.Warn("failed to remove orphaned catalog file", "key", catalog.FilePath, "error", derr)
		}
		return nil, nil, fmt.Errorf("create catalog: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		return catalog, job, fmt.Errorf("enqueue analyze job: %w", err)
	}

	slog.Info("catalog created",
		"catalog_id", catalog.ID,
		"supplier_id", catalog.SupplierID,
		"import_type", catalog.ImportType,
		"size", len(in.Data),
	)
	return catalog, job, nil
}

// ImportFromSource pulls a file through fetcher, retrying transient
// failures, and creates a catalog from it.
func (s *Service) ImportFromSource(ctx context.Context, supplierID int64, source string, fetcher Fetcher) (*Catalog, *ImportJob, error) {
	rf := RetryFetcher{Fetcher: fetcher, Source: source, Policy: s.opts.Fetch}
	data, filename, err := rf.Fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.CreateCatalog(ctx, NewCatalog{
		SupplierID: supplierID,
		Filename:   filename,
		Data:       data,
	})
}

// GetCatalog returns a catalog by id.
func (s *Service) GetCatalog(ctx context.Context, id uuid.UUID) (*Catalog, error) {
	return s.store.GetCatalog(ctx, id)
}

// Schema returns the detected column types of a catalog.
func (s *Service) Schema(ctx context.Context, id uuid.UUID) (Schema, error) {
	c, err := s.store.GetCatalog(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.DetectedSchema == nil {
		return nil, ErrSchemaPending
	}
	return c.DetectedSchema, nil
}

// SetFieldMappings validates and replaces the mappings of a pending catalog.
func (s *Service) SetFieldMappings(ctx context.Context, id uuid.UUID, mappings []FieldMapping) (*Catalog, error) {
	if err := s.validateMappings(mappings); err != nil {
		return nil, err
	}
	if err := s.store.SaveFieldMappings(ctx, id, mappings, s.clock()); err != nil {
		return nil, err
	}
	return s.store.GetCatalog(ctx, id)
}

func (s *Service) validateMappings(mappings []FieldMapping) error {
	if len(mappings) == 0 {
		return ErrNoFieldMappings
	}
	for i := range mappings {
		err := s.validate.Struct(&mappings[i])
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: mapping %d: %s", ErrInvalidMapping, i, describeFieldError(verrs[0]))
		}
		return fmt.Errorf("%w: mapping %d: %v", ErrInvalidMapping, i, err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// StartImport creates and dispatches an import job. The catalog must still
// be pending and have field mappings.
func (s *Service) StartImport(ctx context.Context, catalogID uuid.UUID) (*ImportJob, error) {
	c, err := s.store.GetCatalog(ctx, catalogID)
	if err != nil {
		return nil, err
	}
	if len(c.FieldMappings) == 0 {
		return nil, ErrNoFieldMappings
	}
	if c.Status != StatusPending {
		return nil, ErrCatalogNotPending
	}

	job := newJob(c.ID, JobImport, s.clock())
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		return job, fmt.Errorf("enqueue import job: %w", err)
	}

	slog.Info("import queued", "catalog_id", c.ID, "job_id", job.ID)
	return job, nil
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	return s.store.GetJob(ctx, id)
}

// CancelJob requests cancellation. A pending job fails at once; a running
// import stops at its next batch boundary.
func (s *Service) CancelJob(ctx context.Context, jobID uuid.UUID) (*ImportJob, error) {
	entry := ErrorEntry{Message: ErrJobCancelled.Error()}
	job, err := s.store.CancelJob(ctx, jobID, entry, s.clock())
	if err != nil {
		return nil, err
	}
	slog.Info("job cancel requested", "job_id", job.ID, "status", job.Status)
	return job, nil
}

// Status projects a catalog and its most recent job.
func (s *Service) Status(ctx context.Context, catalogID uuid.UUID) (*JobStatus, error) {
	c, err := s.store.GetCatalog(ctx, catalogID)
	if err != nil {
		return nil, err
	}

	st := &JobStatus{
		CatalogID:     c.ID,
		CatalogStatus: c.Status,
		LastUpdated:   c.UpdatedAt,
	}

	job, err := s.store.LatestJob(ctx, catalogID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		return st, nil
	case err != nil:
		return nil, err
	}

	status := job.Status
	st.JobID = &job.ID
	st.JobKind = job.Kind
	st.JobStatus = &status
	st.ProcessedRows = job.ProcessedRows
	st.TotalRows = job.TotalRows
	st.ErrorCount = job.ErrorCount
	st.LastUpdated = job.UpdatedAt
	return st, nil
}

// DeleteCatalog removes a catalog's rows, then its stored files. A storage
// failure after the rows are gone is logged, not returned.
func (s *Service) DeleteCatalog(ctx context.Context, id uuid.UUID) error {
	c, err := s.store.GetCatalog(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCatalog(ctx, id); err != nil {
		return fmt.Errorf("delete catalog: %w", err)
	}
	if _, err := s.blobs.DeleteByPrefix(ctx, c.BlobPrefix()); err != nil {
		slog.Warn("failed to delete catalog files", "catalog_id", id, "prefix", c.BlobPrefix(), "error", err)
	}
	slog.Info("catalog deleted", "catalog_id", id)
	return nil
}

// MaxProductPage caps ListProducts page sizes.
const MaxProductPage = 1000

// ListProducts pages through the products of a catalog in insertion order.
func (s *Service) ListProducts(ctx context.Context, catalogID uuid.UUID, limit, offset int) ([]Product, error) {
	if _, err := s.store.GetCatalog(ctx, catalogID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > MaxProductPage {
		limit = MaxProductPage
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListProducts(ctx, catalogID, limit, offset)
}

func newJob(catalogID uuid.UUID, kind JobKind, now time.Time) *ImportJob {
	return &ImportJob{
		ID:        uuid.New(),
		CatalogID: catalogID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
