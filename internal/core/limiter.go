package core

// limiter.go bounds how much work runs at once.
//
// The worker pool holds one slot per running job and the HTTP layer holds
// one per in-flight upload body. Acquire waits for a slot, optionally only
// up to maxWait, after which it fails with ErrBusy. WaitForDrain lets a
// shutdown wait for held slots to be released.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrBusy is returned when no slot frees up within the wait limit.
var ErrBusy = errors.New("server busy, please try again later")

// Limiter is a counting semaphore with observable occupancy.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter allows at most size concurrent holders. A positive maxWait
// bounds how long Acquire waits; zero waits until the context is done.
func NewLimiter(size int, maxWait time.Duration) *Limiter {
	if size <= 0 {
		size = 1
	}
	return &Limiter{
		slots:   make(chan struct{}, size),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it exactly once.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of held slots.
func (l *Limiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *Limiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until every slot is released or ctx is done.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of a limiter's occupancy.
type LimiterStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// Status returns the current occupancy for health reporting.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:    l.ActiveCount(),
		Available: l.Available(),
		Capacity:  cap(l.slots),
	}
}
