// Package globalthrottle caps the throughput of one gatekeeper instance
// regardless of who is calling. It sheds load with 503 before any per-identity
// state is touched.
package globalthrottle

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/metrics"
	ratelimitmw "gatekeeper/internal/ratelimit/middleware"
)

// Throttle is a token bucket shared by every request on this instance.
type Throttle struct {
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Throttle)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Throttle) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Throttle) {
		t.metrics = m
	}
}

// New creates a throttle refilling PerInstancePerSecond tokens with Burst capacity.
// A non-positive rate disables throttling.
func New(cfg config.GlobalLimit, opts ...Option) *Throttle {
	limit := rate.Limit(cfg.PerInstancePerSecond)
	if cfg.PerInstancePerSecond <= 0 {
		limit = rate.Inf
	}
	t := &Throttle{
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow consumes one token.
func (t *Throttle) Allow() bool {
	return t.limiter.Allow()
}

// Middleware rejects requests with 503 once the bucket is empty.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.limiter.Allow() {
			if t.metrics != nil {
				t.metrics.IncrementGlobalThrottled()
			}
			t.logger.WarnContext(r.Context(), "global_throttle_triggered",
				"limit_per_second", float64(t.limiter.Limit()),
				"burst", t.limiter.Burst(),
			)
			ratelimitmw.WriteOverloaded(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}
