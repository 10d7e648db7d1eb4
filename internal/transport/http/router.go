// Package httptransport assembles the chi router: operational endpoints,
// then the gatekeeper pipeline in front of every site and API route.
package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/compose"
	"gatekeeper/internal/inquiry"
	"gatekeeper/internal/pipeline"
	"gatekeeper/internal/platform/health"
	rladmin "gatekeeper/internal/ratelimit/admin"
	"gatekeeper/internal/ratelimit/globalthrottle"
	"gatekeeper/pkg/platform/middleware/metadata"
	"gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/middleware/requesttime"
	"gatekeeper/pkg/platform/validation"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Metadata       *metadata.Middleware
	Throttle       *globalthrottle.Throttle
	Pipeline       *pipeline.Pipeline
	Composer       *compose.Composer
	Health         *health.Handler
	Metrics        http.Handler
	RequestMetrics *request.Metrics
	Inquiries      *inquiry.Handler
	RateLimitAdmin *rladmin.Handler

	// Site serves every non-API path that passes the gatekeeper. Defaults to 404.
	Site http.Handler
	// HandlerTimeout bounds gated handlers. Zero means 30s.
	HandlerTimeout time.Duration
}

func (d Deps) validate() error {
	switch {
	case d.Logger == nil:
		return errors.New("router: logger is required")
	case d.Pipeline == nil:
		return errors.New("router: pipeline is required")
	case d.Composer == nil:
		return errors.New("router: composer is required")
	case d.Health == nil:
		return errors.New("router: health handler is required")
	}
	return nil
}

// NewRouter wires the middleware stack and routes.
func NewRouter(d Deps) (http.Handler, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Metadata == nil {
		d.Metadata = metadata.NewMiddleware(nil)
	}
	if d.Site == nil {
		d.Site = http.NotFoundHandler()
	}
	if d.HandlerTimeout <= 0 {
		d.HandlerTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(request.RequestID)
	r.Use(d.Metadata.Handler)
	r.Use(d.Pipeline.Headers)
	r.Use(request.Logger(d.Logger))
	if d.RequestMetrics != nil {
		r.Use(request.LatencyMiddleware(d.RequestMetrics))
	}

	// Health checks and scrapes stay reachable while the instance sheds load.
	r.Group(func(r chi.Router) {
		d.Health.Register(r)
		if d.Metrics != nil {
			r.Handle("/metrics", d.Metrics)
		}
	})

	r.Group(func(r chi.Router) {
		if d.Throttle != nil {
			r.Use(d.Throttle.Middleware)
		}
		r.Use(d.Pipeline.Middleware)
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.Timeout(d.HandlerTimeout))

		if d.Inquiries != nil {
			d.Inquiries.Register(r, d.Composer)
		}
		if d.RateLimitAdmin != nil {
			d.RateLimitAdmin.Register(r, d.Composer)
		}
		r.Handle("/*", d.Site)
	})

	return r, nil
}
