// Package headers computes the response security headers. Every function is a
// pure function of its inputs; nothing is cached between requests.
package headers

import (
	"net/http"
	"slices"
	"strings"

	"gatekeeper/pkg/platform/httputil"
)

// Environment selects the header policy.
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Production  Environment = "production"
)

// ParseEnvironment maps APP_ENV values onto an Environment, defaulting to
// Development for anything unrecognised.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

// Policy is the per-environment switch set.
type Policy struct {
	HSTS           bool
	CSP            bool
	AllowedOrigins []string
}

const (
	hstsValue        = "max-age=63072000; includeSubDomains; preload"
	robotsAdmin      = "noindex, nofollow, noarchive"
	robotsPublic     = "index, follow"
	allowMethods     = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders     = "Content-Type, Authorization, X-Requested-With, X-Request-ID"
	preflightMaxAge  = "86400"
	adminPathPrefix  = "/admin"
	permissionsValue = "camera=(), microphone=(), geolocation=()"
)

var cspDirectives = []string{
	"default-src 'self'",
	"script-src 'self' https://www.googletagmanager.com https://www.google-analytics.com",
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com",
	"font-src 'self' https://fonts.gstatic.com data:",
	"img-src 'self' data: blob: https:",
	"connect-src 'self' https://www.google-analytics.com",
	"frame-src 'none'",
	"object-src 'none'",
	"base-uri 'self'",
	"form-action 'self'",
	"upgrade-insecure-requests",
}

// ContentSecurityPolicy is the assembled CSP value.
var ContentSecurityPolicy = strings.Join(cspDirectives, "; ")

// Composer holds the per-environment policies.
type Composer struct {
	policies map[Environment]Policy
}

// New creates a composer. Environments missing from policies get HSTS and CSP
// only in Production and no CORS origins.
func New(policies map[Environment]Policy) *Composer {
	c := &Composer{policies: make(map[Environment]Policy, len(policies))}
	for env, p := range policies {
		p.AllowedOrigins = slices.Clone(p.AllowedOrigins)
		c.policies[env] = p
	}
	return c
}

func (c *Composer) policy(env Environment) Policy {
	if p, ok := c.policies[env]; ok {
		return p
	}
	return Policy{HSTS: env == Production, CSP: env == Production}
}

// Compose returns the security header set for a response to path.
func (c *Composer) Compose(env Environment, path string) http.Header {
	p := c.policy(env)
	h := http.Header{}
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", permissionsValue)
	h.Set("X-DNS-Prefetch-Control", "on")

	if env == Production && p.HSTS {
		h.Set("Strict-Transport-Security", hstsValue)
	}
	if p.CSP {
		h.Set("Content-Security-Policy", ContentSecurityPolicy)
	}

	if httputil.HasPathPrefix(path, adminPathPrefix) {
		h.Set("X-Robots-Tag", robotsAdmin)
	} else {
		h.Set("X-Robots-Tag", robotsPublic)
	}
	return h
}

// OriginAllowed reports an exact allow-list match.
func (c *Composer) OriginAllowed(env Environment, origin string) bool {
	return origin != "" && slices.Contains(c.policy(env).AllowedOrigins, origin)
}

// CORS returns the headers for a non-preflight API response. The origin is
// echoed only on an exact allow-list match; there is no wildcard.
func (c *Composer) CORS(env Environment, origin string) http.Header {
	h := http.Header{}
	h.Set("Vary", "Origin")
	if c.OriginAllowed(env, origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	return h
}

// Preflight returns the headers for an OPTIONS response.
func (c *Composer) Preflight(env Environment, origin string) http.Header {
	h := c.CORS(env, origin)
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", preflightMaxAge)
	return h
}

// Apply copies src into dst, replacing existing values.
func Apply(dst, src http.Header) {
	for k, v := range src {
		dst[k] = slices.Clone(v)
	}
}
