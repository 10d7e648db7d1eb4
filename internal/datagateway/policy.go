package datagateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// RetryPolicy controls how often and how patiently an operation is retried.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultPolicy is three attempts, 100ms doubling up to 5s.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// Next returns the delay that follows d: min(d * BackoffFactor, MaxDelay).
// There is no jitter.
func (p RetryPolicy) Next(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * p.BackoffFactor)
	if next > p.MaxDelay || next < 0 {
		return p.MaxDelay
	}
	return next
}

// transientPatterns are lower-case fragments of driver and network errors
// that usually clear up on their own.
var transientPatterns = []string{
	"connection pool timeout",
	"pool exhausted",
	"too many clients",
	"remaining connection slots",
	"timeout",
	"timed out",
	"connection reset",
	"econnreset",
	"connection refused",
	"econnrefused",
	"broken pipe",
	"conn closed",
	"closed the connection unexpectedly",
	"terminating connection",
	"idle connection",
	"idle timeout",
}

// IsTransient classifies err as worth retrying. Cancellation is never
// transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
