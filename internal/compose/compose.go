// Package compose decorates endpoint handlers with rate limiting, session
// requirements, schema validation and the response envelope.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/ratelimit/limiter"
	rlmw "gatekeeper/internal/ratelimit/middleware"
	"gatekeeper/internal/security/headers"
	"gatekeeper/internal/session"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/privacy"
	"gatekeeper/pkg/requestcontext"
	"gatekeeper/pkg/validation"
)

// None marks a handler without a body or query schema.
type None struct{}

// Options is the per-endpoint configuration.
type Options struct {
	RequireAuth  bool
	RequireAdmin bool
	// RateLimitPolicy names a policy from the limiter registry; empty means none.
	RateLimitPolicy string
}

// Request is what a composed handler receives. Body and Query are nil when
// the corresponding schema is None.
type Request[B, Q any] struct {
	Session    *session.Credential
	Body       *B
	Query      *Q
	PathParams map[string]string
	HTTP       *http.Request
}

// Response is a handler result. Status defaults to 200.
type Response struct {
	Status  int
	Data    any
	Headers http.Header
}

func OK(data any) Response {
	return Response{Status: http.StatusOK, Data: data}
}

func Created(data any) Response {
	return Response{Status: http.StatusCreated, Data: data}
}

// Handler is a business handler behind the composer.
type Handler[B, Q any] func(ctx context.Context, req *Request[B, Q]) (Response, error)

type Config struct {
	Environment headers.Environment
	Composer    *headers.Composer
	Gate        *session.Gate
}

// Composer carries the collaborators shared by every wrapped endpoint.
type Composer struct {
	env      headers.Environment
	headers  *headers.Composer
	gate     *session.Gate
	policies *limiter.Registry
	emitter  audit.Emitter
	logger   *slog.Logger
}

type Option func(*Composer)

func WithPolicies(r *limiter.Registry) Option {
	return func(c *Composer) {
		c.policies = r
	}
}

func WithEmitter(e audit.Emitter) Option {
	return func(c *Composer) {
		c.emitter = e
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(cfg Config, opts ...Option) (*Composer, error) {
	if cfg.Composer == nil {
		return nil, errors.New("header composer is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("session gate is required")
	}
	c := &Composer{
		env:     cfg.Environment,
		headers: cfg.Composer,
		gate:    cfg.Gate,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Composer) verbose() bool {
	return c.env == headers.Development
}

// Wrap turns h into an http.Handler. It panics when opts names a rate-limit
// policy the registry does not know, which is a wiring mistake.
func Wrap[B, Q any](c *Composer, h Handler[B, Q], opts Options) http.Handler {
	var lim *limiter.Limiter
	if opts.RateLimitPolicy != "" {
		var ok bool
		if c.policies != nil {
			lim, ok = c.policies.Get(opts.RateLimitPolicy)
		}
		if !ok {
			panic(fmt.Sprintf("compose: unknown rate limit policy %q", opts.RateLimitPolicy))
		}
	}
	_, noBody := any(new(B)).(*None)
	_, noQuery := any(new(Q)).(*None)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		headers.Apply(w.Header(), c.headers.Compose(c.env, r.URL.Path))
		if id := requestcontext.RequestID(ctx); id != "" {
			w.Header().Set(request.HeaderRequestID, id)
		}

		defer func() {
			if rec := recover(); rec != nil {
				c.logger.ErrorContext(ctx, "panic in handler",
					"panic", rec,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				msg := httputil.DefaultMessage(dErrors.CodeInternal)
				if c.verbose() {
					msg = fmt.Sprint(rec)
				}
				writeFailure(w, http.StatusInternalServerError, dErrors.CodeInternal, msg)
			}
		}()

		if lim != nil && !limiter.Checked(ctx, opts.RateLimitPolicy) {
			if c.rateLimited(w, r, lim) {
				return
			}
		}

		ctx, cred, err := c.gate.Attach(r)
		if err != nil {
			c.logger.DebugContext(ctx, "session cookie rejected", "error", err)
		}
		r = r.WithContext(ctx)

		if (opts.RequireAuth || opts.RequireAdmin) && cred == nil {
			writeFailure(w, http.StatusUnauthorized, dErrors.CodeUnauthorized, "Authentication required")
			return
		}
		if opts.RequireAdmin && !session.IsAdmin(cred) {
			writeFailure(w, http.StatusForbidden, dErrors.CodeForbidden, "Admin access required")
			return
		}

		req := &Request[B, Q]{Session: cred, PathParams: pathParams(r), HTTP: r}
		if !noBody {
			body, err := httputil.DecodeJSON[B](r)
			if err == nil {
				httputil.Normalize(body)
				err = validation.Validate(body)
			}
			if err != nil {
				c.fail(w, r, err)
				return
			}
			req.Body = body
		}
		if !noQuery {
			query := new(Q)
			err := bindQuery(r.URL.Query(), query)
			if err == nil {
				err = validation.Validate(query)
			}
			if err != nil {
				c.fail(w, r, err)
				return
			}
			req.Query = query
		}

		res, err := h(ctx, req)
		if err != nil {
			c.fail(w, r, err)
			return
		}
		writeSuccess(w, res)
	})
}

func (c *Composer) rateLimited(w http.ResponseWriter, r *http.Request, lim *limiter.Limiter) bool {
	ctx := r.Context()
	identity := requestcontext.ClientIP(ctx)
	result, err := lim.Check(ctx, identity)
	if err != nil {
		c.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
			"error", err,
			"policy", lim.Policy().Name,
			"ip_prefix", privacy.AnonymizeIP(identity),
		)
		return false
	}
	rlmw.AddHeaders(w.Header(), result)
	if result.Allowed {
		return false
	}

	audit.Record(ctx, c.logger, c.emitter, audit.Event{
		Action:   audit.ActionRateLimitExceeded,
		Identity: identity,
		Path:     r.URL.Path,
		Reason:   lim.Policy().Name,
	})
	retryAfter := result.RetryAfterSeconds()
	w.Header().Set(rlmw.HeaderRetryAfter, strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, ErrorEnvelope{
		Error:      result.Message,
		Code:       string(dErrors.CodeRateLimited),
		RetryAfter: retryAfter,
	})
	return true
}

func (c *Composer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, env := errorResponse(err, c.verbose())
	if status >= http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "handler failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	httputil.WriteJSON(w, status, env)
}

func pathParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return map[string]string{}
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		params[k] = rctx.URLParams.Values[i]
	}
	return params
}
