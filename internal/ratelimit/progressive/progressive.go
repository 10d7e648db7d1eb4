// Package progressive escalates temporary bans for identities that keep
// breaching the general API policy.
//
// Each breach increments the identity's violation count. Once the count passes
// the escalation threshold every further breach issues a ban whose length
// doubles (by default) per violation, capped at MaxPenalty. While a ban is in
// force every check fails without touching the underlying counters. The record
// only decays after a full quiet period without violations; successful requests
// never reduce it.
package progressive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	gsync "gatekeeper/pkg/platform/sync"
	"gatekeeper/pkg/requestcontext"
)

// BannedMessage is returned for every check made while a ban is in force.
const BannedMessage = "Too many requests. You have been temporarily blocked."

// Checker is the underlying fixed-window limiter.
type Checker interface {
	Check(ctx context.Context, identity string) (models.Result, error)
	Reset(ctx context.Context, identity string) error
	Policy() models.Policy
}

// StateStore persists escalation records keyed by models.ProgressiveKey.
// Callers serialize access per identity.
type StateStore interface {
	Load(ctx context.Context, key string) (models.ProgressiveState, error)
	Save(ctx context.Context, key string, state models.ProgressiveState) error
	Delete(ctx context.Context, key string) error
}

// Limiter wraps a Checker with escalating bans.
type Limiter struct {
	underlying Checker
	states     StateStore
	cfg        config.ProgressiveConfig
	locks      *gsync.ShardedMutex
	logger     *slog.Logger
	emitter    audit.Emitter
	metrics    *metrics.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithEmitter(e audit.Emitter) Option {
	return func(l *Limiter) {
		l.emitter = e
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a progressive limiter.
func New(underlying Checker, states StateStore, cfg config.ProgressiveConfig, opts ...Option) (*Limiter, error) {
	if underlying == nil {
		return nil, errors.New("underlying limiter is required")
	}
	if states == nil {
		return nil, errors.New("state store is required")
	}
	l := &Limiter{
		underlying: underlying,
		states:     states,
		cfg:        cfg,
		locks:      gsync.NewShardedMutex(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckAndLimit evaluates the ban, applies decay, delegates to the underlying
// limiter and escalates on breach. The whole sequence runs under the
// identity's lock, including the underlying check.
func (l *Limiter) CheckAndLimit(ctx context.Context, identity string) (models.Result, error) {
	key := models.ProgressiveKey(identity)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	now := requestcontext.Now(ctx)
	state, err := l.states.Load(ctx, key)
	if err != nil {
		return models.Result{}, fmt.Errorf("load progressive state: %w", err)
	}

	policy := l.underlying.Policy()
	if state.Banned(now) {
		return models.Result{
			Allowed:    false,
			Message:    BannedMessage,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			ResetAt:    state.BannedUntil,
			RetryAfter: state.BannedUntil.Sub(now),
		}, nil
	}

	decayed := false
	if !state.IsZero() && state.Quiet(now, l.cfg.QuietPeriod) {
		state = models.ProgressiveState{}
		decayed = true
	}

	res, err := l.underlying.Check(ctx, identity)
	if err != nil {
		return models.Result{}, err
	}
	if res.Allowed {
		if decayed {
			if err := l.states.Delete(ctx, key); err != nil {
				return models.Result{}, fmt.Errorf("clear progressive state: %w", err)
			}
		}
		return res, nil
	}

	state.ViolationCount++
	state.LastViolationAt = now
	if penalty := l.cfg.Penalty(state.ViolationCount); penalty > 0 {
		state.BannedUntil = now.Add(penalty)
		res.Message = BannedMessage
		res.ResetAt = state.BannedUntil
		res.RetryAfter = penalty
		l.recordBan(ctx, identity, state)
	}

	if err := l.states.Save(ctx, key, state); err != nil {
		return models.Result{}, fmt.Errorf("save progressive state: %w", err)
	}
	return res, nil
}

// Reset clears both the escalation record and the underlying counters.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	key := models.ProgressiveKey(identity)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	if err := l.states.Delete(ctx, key); err != nil {
		return err
	}
	return l.underlying.Reset(ctx, identity)
}

// State returns the current escalation record for identity.
func (l *Limiter) State(ctx context.Context, identity string) (models.ProgressiveState, error) {
	return l.states.Load(ctx, models.ProgressiveKey(identity))
}

func (l *Limiter) recordBan(ctx context.Context, identity string, state models.ProgressiveState) {
	penalty := state.BannedUntil.Sub(state.LastViolationAt)
	if l.metrics != nil {
		l.metrics.RecordBan(penalty.Seconds())
	}
	audit.Record(ctx, l.logger, l.emitter, audit.Event{
		Action:   audit.ActionProgressiveBan,
		Identity: identity,
		Reason:   fmt.Sprintf("violations=%d ban=%s", state.ViolationCount, penalty),
	})
}
