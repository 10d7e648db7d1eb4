// Package resilient fronts a shared window store with a circuit breaker and
// degrades to a process-local store while the shared one is failing.
package resilient

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/store"
	"gatekeeper/pkg/platform/circuit"
)

// Store routes admissions to primary while its circuit is closed and to
// fallback while it is open. Fallback counts are per-instance, so limits are
// looser during an outage but never disabled.
type Store struct {
	primary  store.WindowStore
	fallback store.WindowStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a resilient Store.
type Option func(*Store)

// WithBreaker replaces the default breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithLogger sets the logger used for circuit transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records circuit state in Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a resilient store. The default breaker opens after 5 consecutive
// primary errors and closes after 3 consecutive successful probes.
func New(primary, fallback store.WindowStore, opts ...Option) *Store {
	s := &Store{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("ratelimit_store"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit tries the primary when the breaker allows it, else the fallback.
func (s *Store) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (store.Admission, error) {
	if !s.breaker.Allow() {
		return s.fallback.Admit(ctx, key, limit, window, now)
	}

	res, err := s.primary.Admit(ctx, key, limit, window, now)
	if err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.ErrorContext(ctx, "circuit breaker opened, using local counters",
				"circuit", s.breaker.Name(),
				"error", err,
			)
			s.recordState()
		} else {
			s.logger.WarnContext(ctx, "shared counter store failed, using local counters",
				"circuit", s.breaker.Name(),
				"error", err,
			)
		}
		return s.fallback.Admit(ctx, key, limit, window, now)
	}

	usePrimary, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "circuit breaker closed", "circuit", s.breaker.Name())
		s.recordState()
	}
	if !usePrimary {
		// Probe succeeded but the circuit is still recovering; keep local counts
		// authoritative until it closes.
		return s.fallback.Admit(ctx, key, limit, window, now)
	}
	return res, nil
}

// Reset clears the key in both stores. Primary errors are returned after the
// fallback has been cleared.
func (s *Store) Reset(ctx context.Context, key string) error {
	fbErr := s.fallback.Reset(ctx, key)
	if err := s.primary.Reset(ctx, key); err != nil {
		return err
	}
	return fbErr
}

// State exposes the breaker state for health reporting.
func (s *Store) State() circuit.State {
	return s.breaker.State()
}

func (s *Store) recordState() {
	if s.metrics != nil {
		s.metrics.SetCircuitOpen(s.breaker.Name(), s.breaker.State() == circuit.StateOpen)
	}
}

var _ store.WindowStore = (*Store)(nil)
