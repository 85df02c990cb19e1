package core

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"time"

	"golang.org/x/time/rate"
)

// Fetcher retrieves a catalog file from wherever a supplier publishes it.
// FTP, SFTP, HTTP APIs and mailboxes are all adapters of this one contract.
type Fetcher interface {
	Fetch(ctx context.Context) (data []byte, filename string, err error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]byte, string, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, string, error) {
	return f(ctx)
}

// BlobFetcher reads one object from blob storage.
type BlobFetcher struct {
	Blobs BlobStore
	Key   string
}

func (f BlobFetcher) Fetch(ctx context.Context) ([]byte, string, error) {
	data, err := f.Blobs.Get(ctx, f.Key)
	if err != nil {
		return nil, "", err
	}
	return data, path.Base(f.Key), nil
}

// RetryPolicy bounds fetch attempts.
type RetryPolicy struct {
	Timeout  time.Duration // per attempt, 0 disables
	Attempts int
	Backoff  time.Duration // minimum spacing between attempt starts
}

// DefaultRetryPolicy matches the configuration defaults.
var DefaultRetryPolicy = RetryPolicy{
	Timeout:  30 * time.Second,
	Attempts: 3,
	Backoff:  2 * time.Second,
}

// RetryFetcher wraps a Fetcher with per-attempt timeouts and a bounded
// number of retries. Every failure is reported as a *ConnectorError.
type RetryFetcher struct {
	Fetcher Fetcher
	Source  string
	Policy  RetryPolicy
}

func (r RetryFetcher) Fetch(ctx context.Context) ([]byte, string, error) {
	attempts := r.Policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	limit := rate.Inf
	if r.Policy.Backoff > 0 {
		limit = rate.Every(r.Policy.Backoff)
	}
	limiter := rate.NewLimiter(limit, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, "", r.fail(attempt-1, firstErr(lastErr, err))
		}

		data, name, err := r.attempt(ctx)
		if err == nil {
			return data, name, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return nil, "", r.fail(attempt, err)
		}
		slog.Warn("fetch attempt failed",
			"source", r.Source,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
	}
	return nil, "", r.fail(attempts, lastErr)
}

func (r RetryFetcher) attempt(ctx context.Context) ([]byte, string, error) {
	if r.Policy.Timeout <= 0 {
		return r.Fetcher.Fetch(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, r.Policy.Timeout)
	defer cancel()
	return r.Fetcher.Fetch(actx)
}

func (r RetryFetcher) fail(attempts int, err error) error {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectorError{Source: r.Source, Attempts: attempts, Err: err}
}

// retryable is false for errors another attempt cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, ErrBlobNotFound) && !errors.Is(err, context.Canceled)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
