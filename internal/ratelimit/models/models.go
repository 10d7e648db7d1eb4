package models

import (
	"math"
	"time"
)

// Policy is an immutable named rate-limit configuration: at most MaxRequests
// accepted checks within any Window-wide interval.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// Result is the outcome of a single limiter check.
type Result struct {
	Allowed    bool
	Message    string
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, with a floor of one
// second for any rejection so clients never see "retry after 0".
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ProgressiveState is the per-identity escalation record of the progressive limiter.
// A zero BannedUntil means no ban is in force.
type ProgressiveState struct {
	ViolationCount  int
	LastViolationAt time.Time
	BannedUntil     time.Time
}

// Banned reports whether a ban is in force at now.
func (s ProgressiveState) Banned(now time.Time) bool {
	return !s.BannedUntil.IsZero() && now.Before(s.BannedUntil)
}

// Quiet reports whether the identity has gone violation-free for at least period.
func (s ProgressiveState) Quiet(now time.Time, period time.Duration) bool {
	return s.LastViolationAt.IsZero() || now.Sub(s.LastViolationAt) >= period
}

// IsZero reports whether the state carries nothing worth keeping.
func (s ProgressiveState) IsZero() bool {
	return s.ViolationCount == 0 && s.BannedUntil.IsZero()
}
