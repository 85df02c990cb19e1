package core

// job.go runs catalog jobs to a terminal state.
//
// A job is fetched and parsed before it is claimed, so a file that cannot be
// read never moves anything to processing. The claim itself is a
// compare-and-set on the job status: a redelivered task whose job already
// left pending is skipped. Import jobs then walk the rows in fixed-size
// batches, strictly in order, committing each batch's products together
// with the job counters. Cancellation is checked between batches only.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/logging"
)

// RunJob executes one job. It returns nil when the job completed or was
// skipped because another delivery already handled it. A job-fatal error is
// recorded on the job (and catalog) before being returned.
func (s *Service) RunJob(ctx context.Context, jobID uuid.UUID) (err error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	r := &jobRun{
		svc: s,
		job: job,
		log: logging.WithFields(ctx, "job_id", job.ID, "catalog_id", job.CatalogID, "kind", job.Kind),
	}
	if job.Status != StatusPending {
		r.log.Debug("job no longer pending, skipping", "status", job.Status)
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			perr := fmt.Errorf("internal error: %v", rec)
			r.log.Error("panic in job", "panic", rec)
			err = r.fail(ctx, perr, string(debug.Stack()), r.catalogFrom())
		}
	}()

	return r.run(ctx)
}

type jobRun struct {
	svc     *Service
	job     *ImportJob
	catalog *Catalog
	log     *slog.Logger
	claimed bool
}

func (r *jobRun) run(ctx context.Context) error {
	s := r.svc
	start := time.Now()

	catalog, err := s.store.GetCatalog(ctx, r.job.CatalogID)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("load catalog: %w", err), "", nil)
	}
	r.catalog = catalog

	if r.job.Kind == JobImport {
		if len(catalog.FieldMappings) == 0 {
			return r.fail(ctx, ErrNoFieldMappings, "", nil)
		}
		if catalog.Status != StatusPending {
			return r.fail(ctx, ErrCatalogNotPending, "", nil)
		}
	}

	rows, err := r.load(ctx)
	if err != nil {
		return r.fail(ctx, err, "", []Status{StatusPending})
	}

	job, err := s.store.ClaimJob(ctx, ClaimParams{JobID: r.job.ID, TotalRows: len(rows), At: s.clock()})
	switch {
	case errors.Is(err, ErrJobFinished):
		r.log.Info("job claimed elsewhere, skipping")
		return nil
	case errors.Is(err, ErrCatalogNotPending):
		return r.fail(ctx, err, "", nil)
	case err != nil:
		return r.fail(ctx, &PersistenceError{Op: "claim job", Err: err}, "", []Status{StatusPending})
	}
	r.job = job
	r.claimed = true
	r.log.Info("job started", "total_rows", len(rows))

	switch r.job.Kind {
	case JobAnalyze:
		err = r.analyze(ctx, rows)
	case JobImport:
		err = r.importRows(ctx, rows)
	default:
		err = fmt.Errorf("unknown job kind %q", r.job.Kind)
	}
	if err != nil {
		return r.fail(ctx, err, "", r.catalogFrom())
	}

	r.log.Info("job completed", "total_rows", len(rows), "duration", time.Since(start))
	return nil
}

// load fetches and parses the catalog file.
func (r *jobRun) load(ctx context.Context) ([]*Record, error) {
	s := r.svc
	fetcher := RetryFetcher{
		Fetcher: BlobFetcher{Blobs: s.blobs, Key: r.catalog.FilePath},
		Source:  "blob " + r.catalog.FilePath,
		Policy:  s.opts.Fetch,
	}
	data, _, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(r.catalog.ImportType, data)
}

func (r *jobRun) analyze(ctx context.Context, rows []*Record) error {
	schema, err := InferSchema(rows)
	if err != nil {
		return err
	}
	if err := r.svc.store.FinishAnalysis(ctx, r.job.ID, r.catalog.ID, len(rows), schema, r.svc.clock()); err != nil {
		return &PersistenceError{Op: "finish analysis", Err: err}
	}
	return nil
}

func (r *jobRun) importRows(ctx context.Context, rows []*Record) error {
	s := r.svc
	size := s.opts.BatchSize
	mappings := r.catalog.FieldMappings
	errorCount := 0
	built := 0 // products accepted so far, across batches

	for start := 0; start < len(rows); start += size {
		if err := r.checkCancel(ctx); err != nil {
			return err
		}

		end := min(start+size, len(rows))
		now := s.clock()
		batch := BatchResult{JobID: r.job.ID, ProcessedRows: end, At: now}
		for i := start; i < end; i++ {
			p, err := buildProduct(r.catalog.ID, rows[i], mappings, built, now)
			if err != nil {
				batch.ErrorCount++
				batch.NewErrors = append(batch.NewErrors, RowErrorEntry(built, err.Error()))
				r.log.Debug("row skipped", "row", i, "built", built, "error", err)
				continue
			}
			batch.Products = append(batch.Products, p)
			built++
		}

		if err := s.store.CommitBatch(ctx, batch); err != nil {
			return &PersistenceError{Op: "batch commit", Err: err}
		}
		errorCount += batch.ErrorCount
		r.log.Debug("batch committed",
			"processed_rows", end,
			"total_rows", len(rows),
			"products", len(batch.Products),
			"errors", batch.ErrorCount,
		)
	}

	if err := s.store.FinishImport(ctx, r.job.ID, r.catalog.ID, s.clock()); err != nil {
		return &PersistenceError{Op: "finish import", Err: err}
	}
	if errorCount > 0 {
		r.log.Warn("import completed with row errors", "error_count", errorCount)
	}
	return nil
}

func (r *jobRun) checkCancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrJobCancelled, err)
	}
	cancelled, err := r.svc.store.CancelRequested(ctx, r.job.ID)
	if err != nil {
		return &PersistenceError{Op: "check cancel", Err: err}
	}
	if cancelled {
		return ErrJobCancelled
	}
	return nil
}

// catalogFrom lists the catalog statuses a failure may move to failed. Only
// a claimed import owns a processing catalog.
func (r *jobRun) catalogFrom() []Status {
	if r.claimed && r.job.Kind == JobImport {
		return []Status{StatusProcessing}
	}
	return []Status{StatusPending}
}

// fail records a job-fatal error and returns it.
func (r *jobRun) fail(ctx context.Context, cause error, detail string, catalogFrom []Status) error {
	entry := ErrorEntry{Message: cause.Error(), Detail: detail}
	err := r.svc.store.FailJob(context.WithoutCancel(ctx), JobFailure{
		JobID:       r.job.ID,
		CatalogID:   r.job.CatalogID,
		Entry:       entry,
		At:          r.svc.clock(),
		CatalogFrom: catalogFrom,
	})
	switch {
	case errors.Is(err, ErrJobFinished):
		r.log.Info("job already finished, failure not recorded", "error", cause)
	case err != nil:
		r.log.Error("failed to record job failure", "error", cause, "store_error", err)
		return errors.Join(cause, err)
	default:
		r.log.Error("job failed", "error", cause)
	}
	return cause
}

// buildProduct maps one row. seq is the number of products built before this
// row; it numbers both synthesized SKUs and row errors.
func buildProduct(catalogID uuid.UUID, row *Record, mappings []FieldMapping, seq int, now time.Time) (Product, error) {
	data := ApplyMappings(row, mappings)

	sku, err := deriveSKU(data, seq)
	if err != nil {
		return Product{}, &RowError{Row: seq, Err: err}
	}
	for _, key := range data.Keys() {
		v, _ := data.Get(key)
		if err := checkStorable(v); err != nil {
			return Product{}, &RowError{Row: seq, Err: fmt.Errorf("field %q: %w", key, err)}
		}
	}

	return Product{
		ID:        uuid.New(),
		CatalogID: catalogID,
		SKU:       sku,
		Data:      data,
		CreatedAt: now,
	}, nil
}

// deriveSKU uses the mapped "sku" field when it holds a scalar and falls
// back to SKU_<seq>.
func deriveSKU(data *Record, seq int) (string, error) {
	v, ok := data.Get("sku")
	if !ok || v.IsNull() {
		return fmt.Sprintf("SKU_%d", seq), nil
	}
	switch v.Kind() {
	case KindObject, KindArray:
		return "", fmt.Errorf("sku must be a scalar, got %s", v.Kind())
	}
	sku := v.Text()
	if strings.TrimSpace(sku) == "" {
		return "", errors.New("sku is empty")
	}
	return sku, nil
}

// checkStorable rejects numbers with no JSON representation.
func checkStorable(v Value) error {
	switch v.Kind() {
	case KindFloat:
		f := v.FloatValue()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite number %s cannot be stored", v.Text())
		}
	case KindArray:
		for _, e := range v.ArrayValue() {
			if err := checkStorable(e); err != nil {
				return err
			}
		}
	case KindObject:
		obj := v.ObjectValue()
		for _, k := range obj.Keys() {
			e, _ := obj.Get(k)
			if err := checkStorable(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecoverJobs re-dispatches pending jobs and fails processing jobs that
// have made no progress within the job timeout. It is run at startup, when
// queued tasks may have been lost or a worker died mid-job.
func (s *Service) RecoverJobs(ctx context.Context) (requeued, failed int, err error) {
	now := s.clock()

	pending, err := s.store.ListStaleJobs(ctx, StatusPending, now)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			return requeued, failed, fmt.Errorf("requeue job %s: %w", job.ID, err)
		}
		requeued++
	}

	if s.opts.JobTimeout <= 0 {
		return requeued, failed, nil
	}
	stale, err := s.store.ListStaleJobs(ctx, StatusProcessing, now.Add(-s.opts.JobTimeout))
	if err != nil {
		return requeued, failed, fmt.Errorf("list stalled jobs: %w", err)
	}
	for _, job := range stale {
		from := []Status{StatusPending}
		if job.Kind == JobImport {
			from = []Status{StatusProcessing}
		}
		ferr := s.store.FailJob(ctx, JobFailure{
			JobID:       job.ID,
			CatalogID:   job.CatalogID,
			Entry:       ErrorEntry{Message: fmt.Sprintf("job interrupted: no progress since %s", job.UpdatedAt.Format(time.RFC3339))},
			At:          now,
			CatalogFrom: from,
		})
		if ferr != nil && !errors.Is(ferr, ErrJobFinished) {
			return requeued, failed, fmt.Errorf("fail stalled job %s: %w", job.ID, ferr)
		}
		failed++
	}

	if requeued > 0 || failed > 0 {
		slog.Info("recovered jobs", "requeued", requeued, "failed", failed)
	}
	return requeued, failed, nil
}
