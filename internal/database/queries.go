package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

const supplierColumns = `id, name, is_active, created_at, updated_at`

const catalogColumns = `id, name, supplier_id, file_path, import_type, status, row_count,
	error_count, error_log, field_mappings, detected_schema, created_at, updated_at, processed_at`

const jobColumns = `id, catalog_id, kind, status, total_rows, processed_rows, error_count,
	error_log, cancel_requested, created_at, updated_at, started_at, completed_at`

/* ----------------------------------------
	Suppliers
---------------------------------------- */

func (q *Queries) UpsertSupplier(ctx context.Context, id int64, name string, at time.Time) (*core.Supplier, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO suppliers (id, name, is_active, created_at, updated_at)
		VALUES ($1, $2, true, $3, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
		RETURNING `+supplierColumns,
		id, name, at)
	return scanSupplier(row)
}

func (q *Queries) GetSupplier(ctx context.Context, id int64) (*core.Supplier, error) {
	row := q.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id)
	return scanSupplier(row)
}

func (q *Queries) DeactivateSupplier(ctx context.Context, id int64, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE suppliers SET is_active = false, updated_at = $2 WHERE id = $1`, id, at)
	return tag.RowsAffected(), err
}

func scanSupplier(row pgx.Row) (*core.Supplier, error) {
	var s core.Supplier
	var active bool
	if err := row.Scan(&s.ID, &s.Name, &active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = core.SupplierInactive
	if active {
		s.Status = core.SupplierActive
	}
	return &s, nil
}

/* ----------------------------------------
	Catalogs
---------------------------------------- */

func (q *Queries) InsertCatalog(ctx context.Context, c *core.Catalog) error {
	errorLog, err := marshalList(c.ErrorLog)
	if err != nil {
		return err
	}
	mappings, err := marshalList(c.FieldMappings)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
		INSERT INTO catalogs (id, name, supplier_id, file_path, import_type, status,
			row_count, error_count, error_log, field_mappings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Name, c.SupplierID, c.FilePath, string(c.ImportType), string(c.Status),
		c.RowCount, c.ErrorCount, errorLog, mappings, c.CreatedAt, c.UpdatedAt)
	return err
}

func (q *Queries) GetCatalog(ctx context.Context, id uuid.UUID) (*core.Catalog, error) {
	row := q.db.QueryRow(ctx, `SELECT `+catalogColumns+` FROM catalogs WHERE id = $1`, id)
	return scanCatalog(row)
}

func (q *Queries) CatalogExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM catalogs WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (q *Queries) UpdatePendingMappings(ctx context.Context, id uuid.UUID, mappings []byte, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE catalogs SET field_mappings = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, mappings, at)
	return tag.RowsAffected(), err
}

func (q *Queries) ListCatalogsCreatedBefore(ctx context.Context, cutoff time.Time) ([]*core.Catalog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+catalogColumns+` FROM catalogs
		WHERE created_at < $1
		ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Catalog
	for rows.Next() {
		c, err := scanCatalog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimCatalog moves a pending catalog to processing.
func (q *Queries) ClaimCatalog(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE catalogs SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	return tag.RowsAffected(), err
}

func (q *Queries) SetAnalysis(ctx context.Context, id uuid.UUID, rowCount int, schema []byte, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE catalogs SET row_count = $2, detected_schema = $3, updated_at = $4
		WHERE id = $1`, id, rowCount, schema, at)
	return err
}

// CompleteCatalog copies the final job counters onto the catalog. Only a
// processing catalog moves to completed.
func (q *Queries) CompleteCatalog(ctx context.Context, id uuid.UUID, rowCount, errorCount int, errorLog []byte, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE catalogs SET
			status       = CASE WHEN status = 'processing' THEN 'completed' ELSE status END,
			processed_at = CASE WHEN status = 'processing' THEN $5 ELSE processed_at END,
			row_count    = $2,
			error_count  = $3,
			error_log    = $4,
			updated_at   = $5
		WHERE id = $1`,
		id, rowCount, errorCount, errorLog, at)
	return err
}

func (q *Queries) FailCatalog(ctx context.Context, id uuid.UUID, entry []byte, from []string, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE catalogs SET status = 'failed', error_log = jsonb_build_array($2::jsonb), updated_at = $4
		WHERE id = $1 AND status = ANY($3)`,
		id, entry, from, at)
	return err
}

func (q *Queries) DeleteProducts(ctx context.Context, catalogID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM products WHERE catalog_id = $1`, catalogID)
	return err
}

func (q *Queries) DeleteJobs(ctx context.Context, catalogID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM import_jobs WHERE catalog_id = $1`, catalogID)
	return err
}

func (q *Queries) DeleteCatalog(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM catalogs WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

func scanCatalog(row pgx.Row) (*core.Catalog, error) {
	var c core.Catalog
	var importType, status string
	var errorLog, mappings, schema []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.SupplierID, &c.FilePath, &importType, &status, &c.RowCount,
		&c.ErrorCount, &errorLog, &mappings, &schema, &c.CreatedAt, &c.UpdatedAt, &c.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ImportType = core.ImportType(importType)
	c.Status = core.Status(status)

	if err := json.Unmarshal(errorLog, &c.ErrorLog); err != nil {
		return nil, fmt.Errorf("decode catalog error_log: %w", err)
	}
	if err := json.Unmarshal(mappings, &c.FieldMappings); err != nil {
		return nil, fmt.Errorf("decode field_mappings: %w", err)
	}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &c.DetectedSchema); err != nil {
			return nil, fmt.Errorf("decode detected_schema: %w", err)
		}
	}
	return &c, nil
}

/* ----------------------------------------
	Import jobs
---------------------------------------- */

func (q *Queries) InsertJob(ctx context.Context, j *core.ImportJob) error {
	errorLog, err := marshalList(j.ErrorLog)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
		INSERT INTO import_jobs (id, catalog_id, kind, status, total_rows, processed_rows,
			error_count, error_log, cancel_requested, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.CatalogID, string(j.Kind), string(j.Status), j.TotalRows, j.ProcessedRows,
		j.ErrorCount, errorLog, j.CancelRequested, j.CreatedAt, j.UpdatedAt)
	return err
}

func (q *Queries) GetJob(ctx context.Context, id uuid.UUID) (*core.ImportJob, error) {
	row := q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (q *Queries) LatestJob(ctx context.Context, catalogID uuid.UUID) (*core.ImportJob, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM import_jobs
		WHERE catalog_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, catalogID)
	return scanJob(row)
}

func (q *Queries) JobExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM import_jobs WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// ClaimJob moves a pending job to processing and returns it.
func (q *Queries) ClaimJob(ctx context.Context, id uuid.UUID, totalRows int, at time.Time) (*core.ImportJob, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE import_jobs SET status = 'processing', total_rows = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns,
		id, totalRows, at)
	return scanJob(row)
}

// AdvanceJob records one committed batch on a processing job.
func (q *Queries) AdvanceJob(ctx context.Context, id uuid.UUID, processed, newErrors int, entries []byte, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE import_jobs SET
			processed_rows = $2,
			error_count    = error_count + $3,
			error_log      = error_log || $4::jsonb,
			updated_at     = $5
		WHERE id = $1 AND status = 'processing'`,
		id, processed, newErrors, entries, at)
	return tag.RowsAffected(), err
}

// AdvanceCatalog adds a batch's row errors to the catalog owning the job.
func (q *Queries) AdvanceCatalog(ctx context.Context, jobID uuid.UUID, newErrors int, entries []byte, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE catalogs SET
			error_count = error_count + $2,
			error_log   = error_log || $3::jsonb,
			updated_at  = $4
		WHERE id = (SELECT catalog_id FROM import_jobs WHERE id = $1)`,
		jobID, newErrors, entries, at)
	return err
}

// CompleteJob finishes a processing job. When allRows is set, processed_rows
// is raised to total_rows.
func (q *Queries) CompleteJob(ctx context.Context, id uuid.UUID, allRows bool, at time.Time) (*core.ImportJob, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE import_jobs SET
			status         = 'completed',
			processed_rows = CASE WHEN $2 THEN total_rows ELSE processed_rows END,
			completed_at   = $3,
			updated_at     = $3
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns,
		id, allRows, at)
	return scanJob(row)
}

func (q *Queries) FailJob(ctx context.Context, id uuid.UUID, entry []byte, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE import_jobs SET
			status       = 'failed',
			error_log    = jsonb_build_array($2::jsonb),
			completed_at = $3,
			updated_at   = $3
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, entry, at)
	return tag.RowsAffected(), err
}

// CancelJob fails a pending job and flags a processing one.
func (q *Queries) CancelJob(ctx context.Context, id uuid.UUID, entry []byte, at time.Time) (*core.ImportJob, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE import_jobs SET
			status           = CASE WHEN status = 'pending' THEN 'failed' ELSE status END,
			error_log        = CASE WHEN status = 'pending' THEN jsonb_build_array($2::jsonb) ELSE error_log END,
			completed_at     = CASE WHEN status = 'pending' THEN $3 ELSE completed_at END,
			cancel_requested = cancel_requested OR status = 'processing',
			updated_at       = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING `+jobColumns,
		id, entry, at)
	return scanJob(row)
}

func (q *Queries) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var flag bool
	err := q.db.QueryRow(ctx, `SELECT cancel_requested FROM import_jobs WHERE id = $1`, id).Scan(&flag)
	return flag, err
}

func (q *Queries) ListJobsByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]*core.ImportJob, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+jobColumns+` FROM import_jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at`, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.ImportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*core.ImportJob, error) {
	var j core.ImportJob
	var kind, status string
	var errorLog []byte
	err := row.Scan(
		&j.ID, &j.CatalogID, &kind, &status, &j.TotalRows, &j.ProcessedRows, &j.ErrorCount,
		&errorLog, &j.CancelRequested, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Kind = core.JobKind(kind)
	j.Status = core.Status(status)
	if err := json.Unmarshal(errorLog, &j.ErrorLog); err != nil {
		return nil, fmt.Errorf("decode job error_log: %w", err)
	}
	return &j, nil
}

/* ----------------------------------------
	Products
---------------------------------------- */

var productColumns = []string{"id", "catalog_id", "sku", "data", "created_at"}

// CopyProducts bulk-loads products with the COPY protocol.
func (q *Queries) CopyProducts(ctx context.Context, products []core.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}
	values := make([][]any, len(products))
	for i, p := range products {
		data, err := json.Marshal(p.Data)
		if err != nil {
			return 0, fmt.Errorf("encode product %s: %w", p.SKU, err)
		}
		values[i] = []any{p.ID, p.CatalogID, p.SKU, data, p.CreatedAt}
	}
	return q.db.CopyFrom(ctx, pgx.Identifier{"products"}, productColumns, pgx.CopyFromRows(values))
}

func (q *Queries) ListProducts(ctx context.Context, catalogID uuid.UUID, limit, offset int) ([]core.Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, catalog_id, sku, data, created_at FROM products
		WHERE catalog_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`, catalogID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Product
	for rows.Next() {
		var p core.Product
		var data []byte
		if err := rows.Scan(&p.ID, &p.CatalogID, &p.SKU, &data, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Data = core.NewRecord()
		if err := json.Unmarshal(data, p.Data); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// marshalList encodes a slice as a JSON array, never null.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
