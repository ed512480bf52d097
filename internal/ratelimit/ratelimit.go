// Package ratelimit provides per-key fixed-window admission control for the
// public subscribe endpoint and any endpoint that can trigger a dispatch.
//
// The counter storage is behind the Store interface so a single-process
// in-memory map and a shared Redis counter are interchangeable; tests target
// the interface, not the storage.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Result is the admission decision for one request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store increments and expires per-key counters. Incr must be atomic per key:
// concurrent calls may not lose increments. The first increment of a window
// starts it; the window resets lazily once resetAt passes.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

// Limiter admits up to max requests per key per window.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

// New returns a Limiter over the given store.
func New(store Store, max int, window time.Duration) (*Limiter, error) {
	if max <= 0 {
		return nil, fmt.Errorf("ratelimit: max must be positive, got %d", max)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %v", window)
	}
	return &Limiter{store: store, max: max, window: window}, nil
}

// Check records one request for key and reports whether it is admitted.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	count, resetAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: incr %q: %w", key, err)
	}
	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(l.max),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
