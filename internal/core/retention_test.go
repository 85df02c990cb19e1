package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/core"
	"github.com/JonMunkholm/catalog-importer/internal/memory"
)

// failingBlobs refuses to delete under one prefix.
type failingBlobs struct {
	*memory.BlobStore
	failPrefix string
}

func (f *failingBlobs) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == f.failPrefix {
		return 0, errors.New("access denied")
	}
	return f.BlobStore.DeleteByPrefix(ctx, prefix)
}

func seedCatalog(t *testing.T, store *memory.Store, blobs core.BlobStore, age time.Duration) *core.Catalog {
	t.Helper()
	ctx := context.Background()
	created := time.Now().Add(-age)
	c := &core.Catalog{
		ID:         uuid.New(),
		Name:       "seed",
		SupplierID: testSupplier,
		ImportType: core.ImportCSV,
		Status:     core.StatusCompleted,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	c.FilePath = core.CatalogFileKey(c.SupplierID, c.ID, "seed.csv")
	if err := blobs.Put(ctx, c.FilePath, []byte("sku\nA\n"), "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	job := &core.ImportJob{ID: uuid.New(), CatalogID: c.ID, Kind: core.JobAnalyze, Status: core.StatusCompleted, CreatedAt: created, UpdatedAt: created}
	if err := store.CreateCatalog(ctx, c, job); err != nil {
		t.Fatalf("CreateCatalog: %v", err)
	}
	return c
}

func newSeededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	if _, err := store.UpsertSupplier(context.Background(), testSupplier, "Acme"); err != nil {
		t.Fatalf("UpsertSupplier: %v", err)
	}
	return store
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	store := newSeededStore(t)
	blobs := memory.NewBlobStore()
	ctx := context.Background()

	old1 := seedCatalog(t, store, blobs, 40*24*time.Hour)
	old2 := seedCatalog(t, store, blobs, 31*24*time.Hour)
	fresh := seedCatalog(t, store, blobs, 29*24*time.Hour)

	sweeper := core.NewRetentionSweeper(store, blobs, core.DefaultRetention)

	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep cleaned %d, want 2", n)
	}
	for _, c := range []*core.Catalog{old1, old2} {
		if _, err := store.GetCatalog(ctx, c.ID); !errors.Is(err, core.ErrCatalogNotFound) {
			t.Errorf("old catalog %s still present: %v", c.ID, err)
		}
		if _, err := store.LatestJob(ctx, c.ID); !errors.Is(err, core.ErrJobNotFound) {
			t.Errorf("jobs of old catalog %s still present: %v", c.ID, err)
		}
	}
	if _, err := store.GetCatalog(ctx, fresh.ID); err != nil {
		t.Errorf("fresh catalog removed: %v", err)
	}
	if keys := blobs.Keys(); len(keys) != 1 || keys[0] != fresh.FilePath {
		t.Errorf("blob keys = %v, want only %s", keys, fresh.FilePath)
	}

	n, err = sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("second Sweep cleaned %d, want 0", n)
	}
}

func TestRetentionSweeper_ContinuesPastFailures(t *testing.T) {
	store := newSeededStore(t)
	mem := memory.NewBlobStore()
	blobs := &failingBlobs{BlobStore: mem}
	ctx := context.Background()

	stuck := seedCatalog(t, store, blobs, 60*24*time.Hour)
	gone := seedCatalog(t, store, blobs, 45*24*time.Hour)
	blobs.failPrefix = stuck.BlobPrefix()

	n, err := core.NewRetentionSweeper(store, blobs, core.DefaultRetention).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep cleaned %d, want 1", n)
	}
	if _, err := store.GetCatalog(ctx, stuck.ID); err != nil {
		t.Errorf("catalog with undeletable files was removed: %v", err)
	}
	if _, err := store.GetCatalog(ctx, gone.ID); !errors.Is(err, core.ErrCatalogNotFound) {
		t.Errorf("GetCatalog(gone) = %v, want ErrCatalogNotFound", err)
	}
	for _, k := range mem.Keys() {
		if strings.HasPrefix(k, gone.BlobPrefix()) {
			t.Errorf("blob %s survived the sweep", k)
		}
	}
}

func TestStartRetentionScheduler(t *testing.T) {
	store := newSeededStore(t)
	blobs := memory.NewBlobStore()
	old := seedCatalog(t, store, blobs, 90*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := core.NewRetentionSweeper(store, blobs, core.DefaultRetention)
	go sweeper.StartRetentionScheduler(ctx, core.RetentionConfig{CheckInterval: time.Hour})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetCatalog(context.Background(), old.ID); errors.Is(err, core.ErrCatalogNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("scheduler did not sweep on start")
}
