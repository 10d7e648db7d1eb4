package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"gatekeeper/pkg/platform/validation"
	"gatekeeper/pkg/requestcontext"
)

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies is a list of IP prefixes (CIDR notation) that are trusted
	// to set X-Forwarded-For headers.
	TrustedProxies []netip.Prefix

	// TrustForwardedHeaders trusts X-Forwarded-For / X-Real-IP from any peer.
	// Set when the service only ever runs behind an edge proxy that overwrites them.
	TrustForwardedHeaders bool
}

// DefaultConfig returns a Config with no trusted proxies.
func DefaultConfig() *Config {
	return &Config{}
}

// Middleware derives the client identity used for rate limiting and auditing.
type Middleware struct {
	config *Config
}

// NewMiddleware creates a new metadata middleware with the given config.
func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Middleware{config: cfg}
}

// Handler extracts the client identity and User-Agent from the request
// and adds them to the context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.Identity(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity returns the client key: first X-Forwarded-For entry, then X-Real-IP
// (both only from trusted peers), then the connection address, then the
// requestcontext.UnknownIdentity sentinel.
func (m *Middleware) Identity(r *http.Request) string {
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	trusted := m.config.TrustForwardedHeaders || m.isTrustedProxy(remoteIP)

	if trusted {
		if ip := firstForwarded(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && len(xri) <= validation.MaxXFFHeaderLength {
			if _, err := netip.ParseAddr(xri); err == nil {
				return xri
			}
		}
	}

	if remoteIP == "" {
		return requestcontext.UnknownIdentity
	}
	return remoteIP
}

// firstForwarded returns the original client from an XFF chain, or "" when the
// header is absent, oversized or malformed.
func firstForwarded(xff string) string {
	if xff == "" || len(xff) > validation.MaxXFFHeaderLength {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if _, err := netip.ParseAddr(first); err != nil {
		return ""
	}
	return first
}

// isTrustedProxy checks if the given IP is in the trusted proxy list.
func (m *Middleware) isTrustedProxy(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr extracts the IP from RemoteAddr (strips port).
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}

	// [::1]:port
	if strings.HasPrefix(remoteAddr, "[") {
		if idx := strings.LastIndex(remoteAddr, "]:"); idx != -1 {
			return remoteAddr[1:idx]
		}
		return strings.Trim(remoteAddr, "[]")
	}

	if strings.Count(remoteAddr, ":") > 1 {
		// bare IPv6 without port
		return remoteAddr
	}

	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}

	return remoteAddr
}
