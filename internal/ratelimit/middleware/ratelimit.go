package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/privacy"
	"gatekeeper/pkg/requestcontext"
)

// Header names of the rate-limit wire contract.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Checker is any limiter that can decide on an identity.
type Checker interface {
	Check(ctx context.Context, identity string) (models.Result, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, identity string) (models.Result, error)

func (f CheckerFunc) Check(ctx context.Context, identity string) (models.Result, error) {
	return f(ctx, identity)
}

type Middleware struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Middleware {
	return &Middleware{logger: logger}
}

// RateLimit enforces limiter for every request, keyed by the client identity
// placed in the context by the metadata middleware. Limiter errors fail open.
func (m *Middleware) RateLimit(limiter Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := limiter.Check(ctx, ip)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
					"error", err,
					"ip_prefix", privacy.AnonymizeIP(ip),
				)
				next.ServeHTTP(w, r)
				return
			}

			AddHeaders(w.Header(), result)
			if !result.Allowed {
				WriteExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AddHeaders sets X-RateLimit-Limit, -Remaining and -Reset (unix seconds).
func AddHeaders(h http.Header, result models.Result) {
	h.Set(HeaderLimit, strconv.Itoa(result.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(result.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// WriteExceeded writes the 429 rejection with Retry-After and the
// {error, retryAfter} body.
func WriteExceeded(w http.ResponseWriter, result models.Result) {
	retryAfter := result.RetryAfterSeconds()
	msg := result.Message
	if msg == "" {
		msg = "Too many requests. Please try again later."
	}
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      msg,
		RetryAfter: retryAfter,
	})
}

// WriteOverloaded writes the 503 of the per-instance throttle.
func WriteOverloaded(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
	httputil.WriteJSON(w, http.StatusServiceUnavailable, &models.OverloadedResponse{
		Error:      "service_unavailable",
		RetryAfter: retryAfterSeconds,
	})
}
