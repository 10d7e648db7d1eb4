// Package limiter enforces named sliding-log policies per client identity.
//
// A Limiter owns one policy and one key namespace. At most MaxRequests checks
// are accepted for an identity within any Window-wide interval; rejected checks
// leave the log unchanged.
//
// Usage:
//
//	l := limiter.New(policy, memory.New())
//	res, err := l.Check(ctx, clientIP)
//	if !res.Allowed {
//	    // 429 with res.RetryAfterSeconds()
//	}
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/store"
	"gatekeeper/pkg/requestcontext"
)

// ExceededMessage is the rejection message of every fixed-window policy.
const ExceededMessage = "Too many requests. Please try again later."

// Limiter checks one policy against a window store.
type Limiter struct {
	policy  models.Policy
	store   store.WindowStore
	metrics *metrics.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMetrics records check outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a limiter for policy.
func New(policy models.Policy, st store.WindowStore, opts ...Option) (*Limiter, error) {
	if st == nil {
		return nil, errors.New("window store is required")
	}
	if policy.MaxRequests <= 0 || policy.Window <= 0 {
		return nil, fmt.Errorf("policy %q: max requests and window must be positive", policy.Name)
	}
	l := &Limiter{policy: policy, store: st}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() models.Policy {
	return l.policy
}

// Check prunes the identity's log, then admits and records the request if
// fewer than MaxRequests entries remain. The request-scoped clock is used so
// every stage of one request sees the same instant.
func (l *Limiter) Check(ctx context.Context, identity string) (models.Result, error) {
	now := requestcontext.Now(ctx)
	adm, err := l.store.Admit(ctx, models.WindowKey(l.policy.Name, identity), l.policy.MaxRequests, l.policy.Window, now)
	if err != nil {
		return models.Result{}, fmt.Errorf("check %s: %w", l.policy.Name, err)
	}

	res := models.Result{
		Allowed:   adm.Allowed,
		Limit:     l.policy.MaxRequests,
		Remaining: max(l.policy.MaxRequests-adm.Count, 0),
		ResetAt:   now.Add(l.policy.Window),
	}
	if !adm.Oldest.IsZero() {
		res.ResetAt = adm.Oldest.Add(l.policy.Window)
	}
	if !adm.Allowed {
		res.Message = ExceededMessage
		res.RetryAfter = max(res.ResetAt.Sub(now), time.Second)
	}

	if l.metrics != nil {
		l.metrics.RecordCheck(l.policy.Name, res.Allowed)
	}
	return res, nil
}

// Reset clears the identity's log.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	return l.store.Reset(ctx, models.WindowKey(l.policy.Name, identity))
}
