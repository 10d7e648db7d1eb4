package cleanup

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/ratelimit/metrics"
)

// Result contains the results of a cleanup run.
type Result struct {
	WindowsSwept int           // timestamp logs that had fully expired
	StatesSwept  int           // escalation records that were quiet and unbanned
	Duration     time.Duration // time taken for the run
}

// WindowStore is the process-local window store.
type WindowStore interface {
	Sweep(now time.Time) int
	Len() int
}

// StateStore is the process-local progressive state store.
type StateStore interface {
	Sweep(now time.Time, quiet time.Duration) int
	Len() int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithWindowStore sweeps expired timestamp logs.
func WithWindowStore(store WindowStore) Option {
	return func(s *Service) {
		s.windows = store
	}
}

// WithStateStore sweeps decayed escalation records.
func WithStateStore(store StateStore, quiet time.Duration) Option {
	return func(s *Service) {
		s.states = store
		s.quiet = quiet
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service periodically evicts memory state that can no longer affect a decision.
// Lazy pruning keeps checks correct on its own; the worker bounds memory for
// identities that never come back.
type Service struct {
	windows  WindowStore
	states   StateStore
	quiet    time.Duration
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(opts ...Option) *Service {
	s := &Service{
		logger:   slog.Default(),
		interval: time.Minute,
		quiet:    time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep every interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("ratelimit_cleanup_failed", "error", err)
				if s.metrics != nil {
					s.metrics.IncrementCleanupRuns("error")
				}
				continue
			}
			s.logger.Debug("ratelimit_cleanup_completed",
				"windows_swept", res.WindowsSwept,
				"states_swept", res.StatesSwept,
				"duration_ms", res.Duration.Milliseconds(),
			)

		case <-ctx.Done():
			s.logger.Info("ratelimit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	now := s.now()

	res := &Result{}
	if s.windows != nil {
		res.WindowsSwept = s.windows.Sweep(now)
	}
	if s.states != nil {
		res.StatesSwept = s.states.Sweep(now, s.quiet)
	}
	res.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.IncrementCleanupRuns("success")
		s.metrics.ObserveCleanupDuration(res.Duration.Seconds())
		s.metrics.AddCleanupSwept("window", res.WindowsSwept)
		s.metrics.AddCleanupSwept("progressive", res.StatesSwept)
		if s.windows != nil {
			s.metrics.SetTrackedKeys("window", s.windows.Len())
		}
		if s.states != nil {
			s.metrics.SetTrackedKeys("progressive", s.states.Len())
		}
	}
	return res, nil
}
