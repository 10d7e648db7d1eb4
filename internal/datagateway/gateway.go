// Package datagateway runs data-access operations with bounded retries on
// transient failures.
package datagateway

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/platform/tracer"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gateway carries the retry policy and instrumentation shared by every
// operation run through it.
type Gateway struct {
	policy             RetryPolicy
	sleep              SleepFunc
	logger             *slog.Logger
	tracer             tracer.Tracer
	metrics            *Metrics
	cancelOnDisconnect bool
}

type Option func(*Gateway)

func WithPolicy(p RetryPolicy) Option {
	return func(g *Gateway) {
		g.policy = p.normalized()
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithCancelOnDisconnect makes operations and backoff sleeps observe the
// caller's cancellation. By default they run to completion even if the
// client goes away.
func WithCancelOnDisconnect() Option {
	return func(g *Gateway) {
		g.cancelOnDisconnect = true
	}
}

func New(opts ...Option) *Gateway {
	g := &Gateway{
		policy: DefaultPolicy(),
		sleep:  sleepTimer,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func sleepTimer(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes op under the gateway's policy, or under policy[0] when given.
// Non-transient failures are returned at once; transient ones are retried
// until the attempt budget is spent. Either way the failure comes back as a
// *DatabaseError wrapping the last error.
func Run[T any](ctx context.Context, g *Gateway, op string, fn func(ctx context.Context) (T, error), policy ...RetryPolicy) (result T, err error) {
	p := g.policy
	if len(policy) > 0 {
		p = policy[0].normalized()
	}
	if !g.cancelOnDisconnect {
		ctx = context.WithoutCancel(ctx)
	}

	ctx, span := g.tracer.Start(ctx, "datagateway."+op,
		tracer.String("op", op),
		tracer.Int("max_attempts", p.MaxAttempts),
	)
	defer func() { span.End(err) }()

	delay := p.InitialDelay
	for attempt := 1; ; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			span.SetAttributes(tracer.Int("attempts", attempt))
			return result, nil
		}

		transient := IsTransient(err)
		if !transient || attempt >= p.MaxAttempts {
			g.metrics.IncrementFailures(op, transient)
			var zero T
			return zero, &DatabaseError{Op: op, Attempts: attempt, Transient: transient, Err: err}
		}

		g.logger.WarnContext(ctx, "transient data error, retrying",
			"op", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		span.AddEvent("retry", tracer.Int("attempt", attempt), tracer.Int64("delay_ms", delay.Milliseconds()))
		g.metrics.IncrementRetries(op)

		if serr := g.sleep(ctx, delay); serr != nil {
			var zero T
			return zero, &DatabaseError{Op: op, Attempts: attempt, Transient: true, Err: err}
		}
		delay = p.Next(delay)
	}
}

// Exec is Run for operations without a result.
func (g *Gateway) Exec(ctx context.Context, op string, fn func(ctx context.Context) error, policy ...RetryPolicy) error {
	_, err := Run(ctx, g, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, policy...)
	return err
}
