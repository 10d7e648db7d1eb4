// Package pipeline is the request gatekeeper: HTTPS enforcement, DDoS
// screening, rate limiting, session gating, CORS and response headers, in
// that order, in front of every handler.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/compose"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/ratelimit/limiter"
	rlmw "gatekeeper/internal/ratelimit/middleware"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/progressive"
	"gatekeeper/internal/security/ddos"
	"gatekeeper/internal/security/headers"
	"gatekeeper/internal/session"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/privacy"
	"gatekeeper/pkg/requestcontext"
)

// Stage names used for spans and the rejection metric.
const (
	StageHTTPS     = "https"
	StageDDoS      = "ddos"
	StageRateLimit = "ratelimit"
	StageAuth      = "auth"
	StageCORS      = "cors"
)

// BlockedMessage is the body error of a DDoS rejection.
const BlockedMessage = "Request blocked"

// ProgressivePolicy labels results of the progressive limiter.
const ProgressivePolicy = "progressive"

type Config struct {
	Environment headers.Environment
	Composer    *headers.Composer
	Gate        *session.Gate
}

type Pipeline struct {
	env          headers.Environment
	composer     *headers.Composer
	gate         *session.Gate
	policies     *limiter.Registry
	progressive  *progressive.Limiter
	enforceHTTPS bool
	emitter      audit.Emitter
	logger       *slog.Logger
	tracer       tracer.Tracer
	metrics      *Metrics
}

type Option func(*Pipeline)

// WithPolicies enables named-policy rate limiting by route prefix.
func WithPolicies(r *limiter.Registry) Option {
	return func(p *Pipeline) {
		p.policies = r
	}
}

// WithProgressive enables progressive limiting of unmatched API traffic.
func WithProgressive(l *progressive.Limiter) Option {
	return func(p *Pipeline) {
		p.progressive = l
	}
}

// WithHTTPSEnforcement overrides the environment default (on in production).
func WithHTTPSEnforcement(enabled bool) Option {
	return func(p *Pipeline) {
		p.enforceHTTPS = enabled
	}
}

func WithEmitter(e audit.Emitter) Option {
	return func(p *Pipeline) {
		p.emitter = e
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.Composer == nil {
		return nil, errors.New("header composer is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("session gate is required")
	}
	p := &Pipeline{
		env:          cfg.Environment,
		composer:     cfg.Composer,
		gate:         cfg.Gate,
		enforceHTTPS: cfg.Environment == headers.Production,
		logger:       slog.Default(),
		tracer:       tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Headers attaches the security header set, and CORS headers on API paths,
// before anything downstream can answer. Mount it outside every layer that
// may reject a request ahead of Middleware.
func (p *Pipeline) Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.applyHeaders(w.Header(), r)
		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) applyHeaders(h http.Header, r *http.Request) {
	headers.Apply(h, p.composer.Compose(p.env, r.URL.Path))
	if session.IsAPIPath(r.URL.Path) {
		headers.Apply(h, p.composer.CORS(p.env, r.Header.Get("Origin")))
	}
}

// Middleware runs every stage in order and hands surviving requests to next
// with the request ID, request time and resolved session in the context.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)
		if requestID == "" {
			requestID = request.CorrelationID(r)
			ctx = requestcontext.WithRequestID(ctx, requestID)
		}

		path := r.URL.Path
		api := session.IsAPIPath(path)
		h := w.Header()
		p.applyHeaders(h, r)
		h.Set(request.HeaderRequestID, requestID)

		ctx, span := p.tracer.Start(ctx, "pipeline",
			tracer.String("http.method", r.Method),
			tracer.String("http.path", path),
		)
		defer span.End(nil)
		r = r.WithContext(ctx)

		if p.enforceHTTPS && !isSecure(r) {
			p.reject(ctx, StageHTTPS, "insecure_transport")
			http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
			return
		}

		if p.screen(w, r) {
			return
		}
		var done bool
		if r, done = p.limit(w, r); done {
			return
		}

		preflight := api && r.Method == http.MethodOptions
		if !preflight {
			if r, done = p.authorize(w, r); done {
				return
			}
		}

		if preflight {
			_, cspan := p.tracer.Start(ctx, "pipeline."+StageCORS)
			headers.Apply(h, p.composer.Preflight(p.env, r.Header.Get("Origin")))
			w.WriteHeader(http.StatusOK)
			cspan.End(nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// screen runs the DDoS heuristic and reports whether the request was answered.
func (p *Pipeline) screen(w http.ResponseWriter, r *http.Request) bool {
	ctx, span := p.tracer.Start(r.Context(), "pipeline."+StageDDoS)
	defer span.End(nil)

	verdict := ddos.Evaluate(r)
	if !verdict.Suspicious {
		return false
	}
	span.SetAttributes(tracer.String("reason", verdict.Reason))
	p.reject(ctx, StageDDoS, verdict.Reason)
	audit.Record(ctx, p.logger, p.emitter, audit.Event{
		Action:   audit.ActionDDoSBlocked,
		Identity: requestcontext.ClientIP(ctx),
		Path:     r.URL.Path,
		Reason:   verdict.Reason,
		Client:   ddos.ClientLabel(r.UserAgent()),
	})
	httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
		Error: BlockedMessage,
		Code:  httputil.DomainCodeToHTTPCode(dErrors.CodeSuspicious),
	})
	return true
}

// limit applies the named policy for the path, or the progressive limiter to
// other API traffic. Limiter failures let the request through.
func (p *Pipeline) limit(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	ctx, span := p.tracer.Start(r.Context(), "pipeline."+StageRateLimit)
	defer span.End(nil)

	identity := requestcontext.ClientIP(ctx)
	result, policy, applied, err := p.check(ctx, r.URL.Path, identity)
	if !applied {
		return r, false
	}
	span.SetAttributes(tracer.String("policy", policy))
	if err != nil {
		p.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
			"error", err,
			"policy", policy,
			"ip_prefix", privacy.AnonymizeIP(identity),
		)
		return r, false
	}

	rlmw.AddHeaders(w.Header(), result)
	if result.Allowed {
		return r.WithContext(limiter.MarkChecked(r.Context(), policy)), false
	}
	span.SetAttributes(tracer.Bool("limited", true))
	p.reject(ctx, StageRateLimit, policy)
	audit.Record(ctx, p.logger, p.emitter, audit.Event{
		Action:   audit.ActionRateLimitExceeded,
		Identity: identity,
		Path:     r.URL.Path,
		Reason:   policy,
		Client:   ddos.ClientLabel(r.UserAgent()),
	})
	rlmw.WriteExceeded(w, result)
	return r, true
}

func (p *Pipeline) check(ctx context.Context, path, identity string) (models.Result, string, bool, error) {
	if p.policies != nil {
		if l, ok := p.policies.Match(path); ok {
			res, err := l.Check(ctx, identity)
			return res, l.Policy().Name, true, err
		}
	}
	if p.progressive != nil && session.IsAPIPath(path) {
		res, err := p.progressive.CheckAndLimit(ctx, identity)
		return res, ProgressivePolicy, true, err
	}
	return models.Result{}, "", false, nil
}

// authorize gates admin pages and private API routes. On success it returns
// the request with the session resolution cached in its context.
func (p *Pipeline) authorize(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	ctx, span := p.tracer.Start(r.Context(), "pipeline."+StageAuth)
	defer span.End(nil)

	path := r.URL.Path
	api := session.IsAPIPath(path)
	if session.IsAdminPath(path) && !httputil.HasPathPrefix(path, session.LoginPath) && !p.gate.HasCookie(r) {
		p.reject(ctx, StageAuth, string(session.ReasonUnauthenticated))
		http.Redirect(w, r, LoginRedirect(path), http.StatusFound)
		return r, true
	}

	ctx, cred, err := p.gate.Attach(r.WithContext(ctx))
	if err != nil {
		p.logger.DebugContext(ctx, "session cookie rejected", "error", err)
	}
	r = r.WithContext(ctx)

	decision := session.Authorize(path, cred)
	span.SetAttributes(tracer.String("reason", string(decision.Reason)))
	if decision.Allow {
		return r, false
	}

	p.reject(ctx, StageAuth, string(decision.Reason))
	event := audit.Event{
		Action:   audit.ActionAccessDenied,
		Identity: requestcontext.ClientIP(ctx),
		Path:     path,
		Reason:   string(decision.Reason),
		Client:   ddos.ClientLabel(r.UserAgent()),
	}
	if cred != nil {
		event.Subject = cred.Subject
	}
	audit.Record(ctx, p.logger, p.emitter, event)

	switch {
	case api && cred == nil:
		compose.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Authentication required"))
	case api:
		compose.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Insufficient permissions"))
	case cred == nil:
		http.Redirect(w, r, LoginRedirect(path), http.StatusFound)
	default:
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
	return r, true
}

func (p *Pipeline) reject(ctx context.Context, stage, reason string) {
	p.metrics.IncrementRejections(stage, reason)
	p.logger.DebugContext(ctx, "request rejected", "stage", stage, "reason", reason)
}

// LoginRedirect is the login URL that returns the user to path afterwards.
func LoginRedirect(path string) string {
	return session.LoginPath + "?redirect=" + url.QueryEscape(path)
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
