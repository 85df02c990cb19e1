// Package memory provides in-process implementations of the core storage,
// blob and queue interfaces. They back the test suites and single-process
// development runs; state is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

// Store is a mutex-guarded core.Store. Values are copied on the way in and
// out so callers never share state with the store.
type Store struct {
	mu        sync.Mutex
	seq       int64
	suppliers map[int64]*core.Supplier
	catalogs  map[uuid.UUID]*core.Catalog
	jobs      map[uuid.UUID]*core.ImportJob
	jobSeq    map[uuid.UUID]int64
	products  map[uuid.UUID][]core.Product
}

var _ core.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		suppliers: make(map[int64]*core.Supplier),
		catalogs:  make(map[uuid.UUID]*core.Catalog),
		jobs:      make(map[uuid.UUID]*core.ImportJob),
		jobSeq:    make(map[uuid.UUID]int64),
		products:  make(map[uuid.UUID][]core.Product),
	}
}

func (s *Store) UpsertSupplier(_ context.Context, id int64, name string) (*core.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sup, ok := s.suppliers[id]
	if !ok {
		sup = &core.Supplier{ID: id, Status: core.SupplierActive, CreatedAt: now}
		s.suppliers[id] = sup
	}
	sup.Name = name
	sup.UpdatedAt = now
	cp := *sup
	return &cp, nil
}

func (s *Store) GetSupplier(_ context.Context, id int64) (*core.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliers[id]
	if !ok {
		return nil, core.ErrSupplierNotFound
	}
	cp := *sup
	return &cp, nil
}

func (s *Store) DeactivateSupplier(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliers[id]
	if !ok {
		return core.ErrSupplierNotFound
	}
	sup.Status = core.SupplierInactive
	sup.UpdatedAt = at
	return nil
}

func (s *Store) CreateCatalog(_ context.Context, c *core.Catalog, job *core.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[c.SupplierID]; !ok {
		return core.ErrSupplierNotFound
	}
	if _, ok := s.catalogs[c.ID]; ok {
		return fmt.Errorf("duplicate key: catalog %s", c.ID)
	}
	s.catalogs[c.ID] = cloneCatalog(c)
	if job != nil {
		s.putJob(job)
	}
	return nil
}

func (s *Store) GetCatalog(_ context.Context, id uuid.UUID) (*core.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.catalogs[id]
	if !ok {
		return nil, core.ErrCatalogNotFound
	}
	return cloneCatalog(c), nil
}

func (s *Store) SaveFieldMappings(_ context.Context, id uuid.UUID, mappings []core.FieldMapping, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.catalogs[id]
	if !ok {
		return core.ErrCatalogNotFound
	}
	if c.Status != core.StatusPending {
		return core.ErrCatalogNotPending
	}
	c.FieldMappings = cloneMappings(mappings)
	c.UpdatedAt = at
	return nil
}

func (s *Store) ListCatalogsCreatedBefore(_ context.Context, cutoff time.Time) ([]*core.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.Catalog
	for _, c := range s.catalogs {
		if c.CreatedAt.Before(cutoff) {
			out = append(out, cloneCatalog(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteCatalog(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalogs[id]; !ok {
		return core.ErrCatalogNotFound
	}
	delete(s.products, id)
	for jid, j := range s.jobs {
		if j.CatalogID == id {
			delete(s.jobs, jid)
			delete(s.jobSeq, jid)
		}
	}
	delete(s.catalogs, id)
	return nil
}

func (s *Store) CreateJob(_ context.Context, job *core.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalogs[job.CatalogID]; !ok {
		return core.ErrCatalogNotFound
	}
	s.putJob(job)
	return nil
}

func (s *Store) putJob(job *core.ImportJob) {
	s.seq++
	s.jobs[job.ID] = cloneJob(job)
	s.jobSeq[job.ID] = s.seq
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (s *Store) LatestJob(_ context.Context, catalogID uuid.UUID) (*core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *core.ImportJob
	for id, j := range s.jobs {
		if j.CatalogID != catalogID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) ||
			(j.CreatedAt.Equal(latest.CreatedAt) && s.jobSeq[id] > s.jobSeq[latest.ID]) {
			latest = j
		}
	}
	if latest == nil {
		return nil, core.ErrJobNotFound
	}
	return cloneJob(latest), nil
}

func (s *Store) ClaimJob(_ context.Context, p core.ClaimParams) (*core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[p.JobID]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	if j.Status != core.StatusPending {
		return nil, core.ErrJobFinished
	}
	if j.Kind == core.JobImport {
		c, ok := s.catalogs[j.CatalogID]
		if !ok {
			return nil, core.ErrCatalogNotFound
		}
		if c.Status != core.StatusPending {
			return nil, core.ErrCatalogNotPending
		}
		c.Status = core.StatusProcessing
		c.UpdatedAt = p.At
	}

	at := p.At
	j.Status = core.StatusProcessing
	j.TotalRows = p.TotalRows
	j.StartedAt = &at
	j.UpdatedAt = at
	return cloneJob(j), nil
}

func (s *Store) CommitBatch(_ context.Context, b core.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[b.JobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if j.Status != core.StatusProcessing {
		return core.ErrJobFinished
	}
	s.products[j.CatalogID] = append(s.products[j.CatalogID], b.Products...)
	j.ProcessedRows = b.ProcessedRows
	j.ErrorCount += b.ErrorCount
	j.ErrorLog = append(j.ErrorLog, b.NewErrors...)
	j.UpdatedAt = b.At

	if c, ok := s.catalogs[j.CatalogID]; ok {
		c.ErrorCount += b.ErrorCount
		c.ErrorLog = append(c.ErrorLog, b.NewErrors...)
		c.UpdatedAt = b.At
	}
	return nil
}

func (s *Store) FinishAnalysis(_ context.Context, jobID, catalogID uuid.UUID, rowCount int, schema core.Schema, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, c, err := s.jobAndCatalog(jobID, catalogID)
	if err != nil {
		return err
	}
	if j.Status != core.StatusProcessing {
		return core.ErrJobFinished
	}
	j.Status = core.StatusCompleted
	j.ProcessedRows = j.TotalRows
	j.CompletedAt = &at
	j.UpdatedAt = at

	c.RowCount = rowCount
	c.DetectedSchema = slices.Clone(schema)
	c.UpdatedAt = at
	return nil
}

func (s *Store) FinishImport(_ context.Context, jobID, catalogID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, c, err := s.jobAndCatalog(jobID, catalogID)
	if err != nil {
		return err
	}
	if j.Status != core.StatusProcessing {
		return core.ErrJobFinished
	}
	j.Status = core.StatusCompleted
	j.CompletedAt = &at
	j.UpdatedAt = at

	if c.Status == core.StatusProcessing {
		c.Status = core.StatusCompleted
		c.ProcessedAt = &at
	}
	c.RowCount = j.TotalRows
	c.ErrorCount = j.ErrorCount
	c.ErrorLog = slices.Clone(j.ErrorLog)
	c.UpdatedAt = at
	return nil
}

func (s *Store) FailJob(_ context.Context, f core.JobFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[f.JobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return core.ErrJobFinished
	}
	at := f.At
	j.Status = core.StatusFailed
	j.ErrorLog = []core.ErrorEntry{f.Entry}
	j.CompletedAt = &at
	j.UpdatedAt = at

	if c, ok := s.catalogs[f.CatalogID]; ok && slices.Contains(f.CatalogFrom, c.Status) {
		c.Status = core.StatusFailed
		c.ErrorLog = []core.ErrorEntry{f.Entry}
		c.UpdatedAt = at
	}
	return nil
}

func (s *Store) CancelJob(_ context.Context, jobID uuid.UUID, entry core.ErrorEntry, at time.Time) (*core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	switch j.Status {
	case core.StatusPending:
		j.Status = core.StatusFailed
		j.ErrorLog = []core.ErrorEntry{entry}
		j.CompletedAt = &at
	case core.StatusProcessing:
		j.CancelRequested = true
	default:
		return nil, core.ErrJobFinished
	}
	j.UpdatedAt = at
	return cloneJob(j), nil
}

func (s *Store) CancelRequested(_ context.Context, jobID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return false, core.ErrJobNotFound
	}
	return j.CancelRequested, nil
}

func (s *Store) ListStaleJobs(_ context.Context, status core.Status, cutoff time.Time) ([]*core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.ImportJob
	for _, j := range s.jobs {
		if j.Status == status && j.UpdatedAt.Before(cutoff) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, catalogID uuid.UUID, limit, offset int) ([]core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.products[catalogID]
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(all[offset:end]), nil
}

func (s *Store) jobAndCatalog(jobID, catalogID uuid.UUID) (*core.ImportJob, *core.Catalog, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, nil, core.ErrJobNotFound
	}
	c, ok := s.catalogs[catalogID]
	if !ok {
		return nil, nil, core.ErrCatalogNotFound
	}
	return j, c, nil
}

func cloneCatalog(c *core.Catalog) *core.Catalog {
	cp := *c
	cp.ErrorLog = slices.Clone(c.ErrorLog)
	cp.FieldMappings = cloneMappings(c.FieldMappings)
	cp.DetectedSchema = slices.Clone(c.DetectedSchema)
	if c.ProcessedAt != nil {
		t := *c.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}

func cloneJob(j *core.ImportJob) *core.ImportJob {
	cp := *j
	cp.ErrorLog = slices.Clone(j.ErrorLog)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneMappings(ms []core.FieldMapping) []core.FieldMapping {
	if ms == nil {
		return nil
	}
	out := make([]core.FieldMapping, len(ms))
	for i, m := range ms {
		out[i] = m
		if m.TransformationRule != nil {
			r := *m.TransformationRule
			out[i].TransformationRule = &r
		}
	}
	return out
}
