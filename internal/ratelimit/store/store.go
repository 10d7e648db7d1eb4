// Package store defines the counter-store contract behind every fixed-window limiter.
// Implementations: memory (process-local), redis (shared across instances) and
// resilient (redis with memory fallback behind a circuit breaker).
package store

import (
	"context"
	"time"
)

// Admission is the outcome of one check-then-record against a timestamp log.
type Admission struct {
	Allowed bool
	// Count is the number of timestamps inside the window after the call,
	// including the one just recorded when Allowed.
	Count int
	// Oldest is the earliest timestamp still inside the window; zero when empty.
	Oldest time.Time
}

// WindowStore holds per-key timestamp logs. Admit must prune entries older than
// now-window, then record now only if fewer than limit remain, atomically per key.
type WindowStore interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Admission, error)
	Reset(ctx context.Context, key string) error
}
