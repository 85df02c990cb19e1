package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// dequeueRetryDelay is the pause after a failed Dequeue.
var dequeueRetryDelay = time.Second

// Worker pulls job ids from a TaskQueue and runs them, at most
// concurrency at a time. Each delivery is acknowledged once RunJob
// returns; jobs left pending by a lost delivery are picked up again by
// Service.RecoverJobs.
type Worker struct {
	svc     *Service
	queue   TaskQueue
	limiter *Limiter

	wg    sync.WaitGroup
	mu    sync.Mutex
	abort context.CancelFunc
}

// NewWorker creates a worker for svc's queue.
func NewWorker(svc *Service, concurrency int) *Worker {
	return &Worker{
		svc:     svc,
		queue:   svc.queue,
		limiter: NewLimiter(concurrency, 0),
	}
}

// Run dispatches tasks until ctx is cancelled. Jobs already started keep
// running after Run returns; use Shutdown to wait for them.
func (w *Worker) Run(ctx context.Context) {
	base, abort := context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Lock()
	w.abort = abort
	w.mu.Unlock()

	slog.Info("worker started", "concurrency", w.limiter.Status().Capacity)
	for {
		if err := w.limiter.Acquire(ctx); err != nil {
			break
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.limiter.Release()
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, ErrQueueEmpty) {
				slog.Error("dequeue failed", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(dequeueRetryDelay):
				}
			}
			continue
		}

		w.wg.Add(1)
		go w.handle(base, task)
	}
	slog.Info("worker stopped dispatching", "running_jobs", w.limiter.ActiveCount())
}

func (w *Worker) handle(base context.Context, task Task) {
	defer w.wg.Done()
	defer w.limiter.Release()

	ctx := base
	if w.svc.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, w.svc.opts.JobTimeout)
		defer cancel()
	}

	if err := w.svc.RunJob(ctx, task.JobID); err != nil {
		slog.Warn("job finished with error", "job_id", task.JobID, "error", err)
	}
	if err := w.queue.Ack(context.WithoutCancel(ctx), task); err != nil {
		slog.Error("ack failed", "job_id", task.JobID, "error", err)
	}
}

// Shutdown waits for running jobs. When ctx expires first, the jobs are
// cancelled; they stop at their next batch boundary and are recorded as
// failed.
func (w *Worker) Shutdown(ctx context.Context) error {
	err := w.limiter.WaitForDrain(ctx)
	if err != nil {
		w.mu.Lock()
		if w.abort != nil {
			w.abort()
		}
		w.mu.Unlock()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.abort != nil {
		w.abort()
	}
	w.mu.Unlock()
	return err
}

// Status reports job slot usage.
func (w *Worker) Status() LimiterStatus {
	return w.limiter.Status()
}
