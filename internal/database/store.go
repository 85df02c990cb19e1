package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

// Store implements core.Store on a connection pool.
type Store struct {
	pool *pgxpool.Pool
	q    *Queries
}

var _ core.Store = (*Store)(nil)

// NewStore creates a store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: New(pool)}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) UpsertSupplier(ctx context.Context, id int64, name string) (*core.Supplier, error) {
	return s.q.UpsertSupplier(ctx, id, name, time.Now().UTC())
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*core.Supplier, error) {
	sup, err := s.q.GetSupplier(ctx, id)
	if isNoRows(err) {
		return nil, core.ErrSupplierNotFound
	}
	return sup, err
}

func (s *Store) DeactivateSupplier(ctx context.Context, id int64, at time.Time) error {
	n, err := s.q.DeactivateSupplier(ctx, id, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrSupplierNotFound
	}
	return nil
}

func (s *Store) CreateCatalog(ctx context.Context, c *core.Catalog, job *core.ImportJob) error {
	return inTx(ctx, s.pool, func(q *Queries) error {
		if err := q.InsertCatalog(ctx, c); err != nil {
			if pgCode(err) == codeForeignKeyViolation {
				return core.ErrSupplierNotFound
			}
			return fmt.Errorf("insert catalog: %w", err)
		}
		if job == nil {
			return nil
		}
		if err := q.InsertJob(ctx, job); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
}

func (s *Store) GetCatalog(ctx context.Context, id uuid.UUID) (*core.Catalog, error) {
	c, err := s.q.GetCatalog(ctx, id)
	if isNoRows(err) {
		return nil, core.ErrCatalogNotFound
	}
	return c, err
}

func (s *Store) SaveFieldMappings(ctx context.Context, id uuid.UUID, mappings []core.FieldMapping, at time.Time) error {
	data, err := marshalList(mappings)
	if err != nil {
		return err
	}
	n, err := s.q.UpdatePendingMappings(ctx, id, data, at)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.catalogMiss(ctx, s.q, id)
}

// catalogMiss explains a pending-only update that matched nothing.
func (s *Store) catalogMiss(ctx context.Context, q *Queries, id uuid.UUID) error {
	ok, err := q.CatalogExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrCatalogNotFound
	}
	return core.ErrCatalogNotPending
}

func (s *Store) ListCatalogsCreatedBefore(ctx context.Context, cutoff time.Time) ([]*core.Catalog, error) {
	return s.q.ListCatalogsCreatedBefore(ctx, cutoff)
}

func (s *Store) DeleteCatalog(ctx context.Context, id uuid.UUID) error {
	return inTx(ctx, s.pool, func(q *Queries) error {
		if err := q.DeleteProducts(ctx, id); err != nil {
			return fmt.Errorf("delete products: %w", err)
		}
		if err := q.DeleteJobs(ctx, id); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		n, err := q.DeleteCatalog(ctx, id)
		if err != nil {
			return fmt.Errorf("delete catalog: %w", err)
		}
		if n == 0 {
			return core.ErrCatalogNotFound
		}
		return nil
	})
}

func (s *Store) CreateJob(ctx context.Context, job *core.ImportJob) error {
	if err := s.q.InsertJob(ctx, job); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return core.ErrCatalogNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*core.ImportJob, error) {
	j, err := s.q.GetJob(ctx, id)
	if isNoRows(err) {
		return nil, core.ErrJobNotFound
	}
	return j, err
}

func (s *Store) LatestJob(ctx context.Context, catalogID uuid.UUID) (*core.ImportJob, error) {
	j, err := s.q.LatestJob(ctx, catalogID)
	if isNoRows(err) {
		return nil, core.ErrJobNotFound
	}
	return j, err
}

// jobMiss explains a status-guarded job update that matched nothing.
func jobMiss(ctx context.Context, q *Queries, id uuid.UUID) error {
	ok, err := q.JobExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrJobNotFound
	}
	return core.ErrJobFinished
}

func (s *Store) ClaimJob(ctx context.Context, p core.ClaimParams) (*core.ImportJob, error) {
	var job *core.ImportJob
	err := inTx(ctx, s.pool, func(q *Queries) error {
		j, err := q.ClaimJob(ctx, p.JobID, p.TotalRows, p.At)
		if isNoRows(err) {
			return jobMiss(ctx, q, p.JobID)
		}
		if err != nil {
			return err
		}
		if j.Kind == core.JobImport {
			n, err := q.ClaimCatalog(ctx, j.CatalogID, p.At)
			if err != nil {
				return err
			}
			if n == 0 {
				return s.catalogMiss(ctx, q, j.CatalogID)
			}
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) CommitBatch(ctx context.Context, b core.BatchResult) error {
	entries, err := marshalList(b.NewErrors)
	if err != nil {
		return err
	}
	return inTx(ctx, s.pool, func(q *Queries) error {
		n, err := q.AdvanceJob(ctx, b.JobID, b.ProcessedRows, b.ErrorCount, entries, b.At)
		if err != nil {
			return fmt.Errorf("update job progress: %w", err)
		}
		if n == 0 {
			return jobMiss(ctx, q, b.JobID)
		}
		if err := q.AdvanceCatalog(ctx, b.JobID, b.ErrorCount, entries, b.At); err != nil {
			return fmt.Errorf("update catalog counters: %w", err)
		}
		if _, err := q.CopyProducts(ctx, b.Products); err != nil {
			return fmt.Errorf("copy products: %w", err)
		}
		return nil
	})
}

func (s *Store) FinishAnalysis(ctx context.Context, jobID, catalogID uuid.UUID, rowCount int, schema core.Schema, at time.Time) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return inTx(ctx, s.pool, func(q *Queries) error {
		if _, err := q.CompleteJob(ctx, jobID, true, at); err != nil {
			if isNoRows(err) {
				return jobMiss(ctx, q, jobID)
			}
			return err
		}
		return q.SetAnalysis(ctx, catalogID, rowCount, data, at)
	})
}

func (s *Store) FinishImport(ctx context.Context, jobID, catalogID uuid.UUID, at time.Time) error {
	return inTx(ctx, s.pool, func(q *Queries) error {
		j, err := q.CompleteJob(ctx, jobID, false, at)
		if err != nil {
			if isNoRows(err) {
				return jobMiss(ctx, q, jobID)
			}
			return err
		}
		errorLog, err := marshalList(j.ErrorLog)
		if err != nil {
			return err
		}
		return q.CompleteCatalog(ctx, catalogID, j.TotalRows, j.ErrorCount, errorLog, at)
	})
}

func (s *Store) FailJob(ctx context.Context, f core.JobFailure) error {
	entry, err := json.Marshal(f.Entry)
	if err != nil {
		return err
	}
	return inTx(ctx, s.pool, func(q *Queries) error {
		n, err := q.FailJob(ctx, f.JobID, entry, f.At)
		if err != nil {
			return err
		}
		if n == 0 {
			return jobMiss(ctx, q, f.JobID)
		}
		if len(f.CatalogFrom) == 0 {
			return nil
		}
		return q.FailCatalog(ctx, f.CatalogID, entry, statusStrings(f.CatalogFrom), f.At)
	})
}

func (s *Store) CancelJob(ctx context.Context, jobID uuid.UUID, entry core.ErrorEntry, at time.Time) (*core.ImportJob, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	j, err := s.q.CancelJob(ctx, jobID, data, at)
	if isNoRows(err) {
		return nil, jobMiss(ctx, s.q, jobID)
	}
	return j, err
}

func (s *Store) CancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error) {
	flag, err := s.q.CancelRequested(ctx, jobID)
	if isNoRows(err) {
		return false, core.ErrJobNotFound
	}
	return flag, err
}

func (s *Store) ListStaleJobs(ctx context.Context, status core.Status, cutoff time.Time) ([]*core.ImportJob, error) {
	return s.q.ListJobsByStatusBefore(ctx, string(status), cutoff)
}

func (s *Store) ListProducts(ctx context.Context, catalogID uuid.UUID, limit, offset int) ([]core.Product, error) {
	return s.q.ListProducts(ctx, catalogID, limit, offset)
}

func statusStrings(ss []core.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
