package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

func waitForJob(t *testing.T, h *harness, id uuid.UUID, want core.Status) *core.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job := h.job(t, id)
		if job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s status = %s, want %s", id, job.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorker_RunsQueuedJobs(t *testing.T) {
	h := newHarness(t, core.DefaultOptions())
	w := core.NewWorker(h.svc, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	c, analyze, err := h.svc.CreateCatalog(context.Background(), core.NewCatalog{SupplierID: testSupplier, Filename: "a.csv", Data: csvRows(1500)})
	if err != nil {
		t.Fatalf("CreateCatalog: %v", err)
	}
	waitForJob(t, h, analyze.ID, core.StatusCompleted)

	if _, err := h.svc.SetFieldMappings(context.Background(), c.ID, skuPriceMappings); err != nil {
		t.Fatalf("SetFieldMappings: %v", err)
	}
	imp, err := h.svc.StartImport(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	got := waitForJob(t, h, imp.ID, core.StatusCompleted)
	if got.ProcessedRows != 1500 {
		t.Errorf("processed_rows = %d, want 1500", got.ProcessedRows)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if h.queue.InFlight() != 0 {
		t.Errorf("in-flight tasks = %d, want 0", h.queue.InFlight())
	}
	if st := w.Status(); st.Active != 0 || st.Capacity != 2 {
		t.Errorf("Status = %+v, want idle with capacity 2", st)
	}
}

func TestWorker_ShutdownAbortsRunningJobs(t *testing.T) {
	opts := core.DefaultOptions()
	opts.BatchSize = 10
	h := newHarness(t, opts)

	c, job := startImport(t, h, "a.csv", csvRows(100), skuPriceMappings)
	// The first batch holds its job until the job's context is cancelled.
	h.store.afterCommit = func(ctx context.Context, n int) {
		if n == 1 {
			<-ctx.Done()
		}
	}

	w := core.NewWorker(h.svc, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	waitForJob(t, h, job.ID, core.StatusProcessing)

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()
	if err := w.Shutdown(shutdownCtx); err == nil {
		t.Error("Shutdown = nil, want deadline error")
	}

	got := h.job(t, job.ID)
	if got.Status != core.StatusFailed {
		t.Errorf("job status = %s, want failed", got.Status)
	}
	if st := h.catalog(t, c.ID).Status; st != core.StatusFailed {
		t.Errorf("catalog status = %s, want failed", st)
	}
}
