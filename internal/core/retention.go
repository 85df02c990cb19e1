package core

// retention.go deletes catalogs that outlived the retention window.
//
// Each catalog is cleaned independently: its stored files by prefix, then
// its rows (products, jobs and the catalog) in one transaction. A failure on
// one catalog is logged and the sweep moves on; the next sweep retries it.
// The scheduler runs a sweep immediately, then on every tick, and stops
// when its context is cancelled.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention is how long catalogs are kept.
const DefaultRetention = 30 * 24 * time.Hour

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	CheckInterval time.Duration // How often to sweep (default: 24h)
}

// RetentionSweeper removes expired catalogs with their files and rows.
type RetentionSweeper struct {
	store  Store
	blobs  BlobStore
	maxAge time.Duration
	now    func() time.Time
}

// NewRetentionSweeper creates a sweeper. A non-positive maxAge selects
// DefaultRetention.
func NewRetentionSweeper(store Store, blobs BlobStore, maxAge time.Duration) *RetentionSweeper {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	return &RetentionSweeper{store: store, blobs: blobs, maxAge: maxAge, now: time.Now}
}

// Sweep deletes every catalog older than the retention window and returns
// how many were fully cleaned. Only failing to list candidates is an error.
func (r *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.maxAge)
	catalogs, err := r.store.ListCatalogsCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired catalogs: %w", err)
	}

	cleaned := 0
	for _, c := range catalogs {
		if ctx.Err() != nil {
			break
		}
		if err := r.clean(ctx, c); err != nil {
			slog.Error("catalog cleanup failed",
				"catalog_id", c.ID,
				"supplier_id", c.SupplierID,
				"error", err,
			)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

func (r *RetentionSweeper) clean(ctx context.Context, c *Catalog) error {
	if _, err := r.blobs.DeleteByPrefix(ctx, c.BlobPrefix()); err != nil {
		return fmt.Errorf("delete files under %s: %w", c.BlobPrefix(), err)
	}
	if err := r.store.DeleteCatalog(ctx, c.ID); err != nil {
		return fmt.Errorf("delete catalog rows: %w", err)
	}
	return nil
}

// StartRetentionScheduler runs Sweep immediately and then every
// CheckInterval until ctx is cancelled. It blocks; run it in a goroutine.
func (r *RetentionSweeper) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	slog.Info("retention scheduler started",
		"max_age", r.maxAge,
		"check_interval", interval,
	)

	// Run immediately on startup
	r.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			r.runSweep(ctx)
		}
	}
}

func (r *RetentionSweeper) runSweep(ctx context.Context) {
	start := time.Now()
	cleaned, err := r.Sweep(ctx)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	slog.Info("retention sweep completed",
		"cleaned_catalogs", cleaned,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
