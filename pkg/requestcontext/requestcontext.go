// Package requestcontext carries per-request values (correlation ID, client
// identity, request time) through context.Context.
package requestcontext

import (
	"context"
	"time"
)

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyClientIP  contextKey = "client_ip"
	keyUserAgent contextKey = "user_agent"
	keyTime      contextKey = "request_time"
)

// UnknownIdentity is the sentinel used when no client address can be derived.
const UnknownIdentity = "unknown"

// WithRequestID stores the correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID returns the correlation ID or "" if none was set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(keyRequestID).(string)
	return id
}

// WithClientMetadata stores the client address and user agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, ip)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

// ClientIP returns the client identity used for rate limiting.
// Falls back to UnknownIdentity when metadata was never attached.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(keyClientIP).(string); ok && ip != "" {
		return ip
	}
	return UnknownIdentity
}

// UserAgent returns the raw User-Agent header captured for this request.
func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(keyUserAgent).(string)
	return ua
}

// WithTime pins the request's notion of "now".
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyTime, t)
}

// Now returns the pinned request time, or time.Now() when none is set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(keyTime).(time.Time); ok && !t.IsZero() {
		return t
	}
	return time.Now()
}
