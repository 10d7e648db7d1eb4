package session

import (
	"gatekeeper/pkg/platform/httputil"
)

// Reason explains an authorization decision.
type Reason string

const (
	ReasonPublicPath       Reason = "public_path"
	ReasonPublicAPI        Reason = "public_api"
	ReasonLoginPage        Reason = "login_page"
	ReasonAdminAccess      Reason = "admin_access"
	ReasonScopedAccess     Reason = "scoped_access"
	ReasonAuthenticated    Reason = "authenticated"
	ReasonDefault          Reason = "default"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInsufficientRole Reason = "insufficient_role"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allow  bool
	Reason Reason
}

const (
	AdminPrefix = "/admin"
	APIPrefix   = "/api"
	LoginPath   = "/admin/login"
)

// PublicAPIPrefixes are reachable without a credential.
var PublicAPIPrefixes = []string{
	"/api/auth",
	"/api/health",
	"/api/public",
	"/api/vehicles",
	"/api/inquiries",
	"/api/contact",
}

// scopedAdminPaths maps the admin sections a role without CapFullAdmin may
// still open to the capability it needs.
var scopedAdminPaths = []struct {
	prefix     string
	capability Capability
}{
	{"/admin/inquiries", CapInquiries},
	{"/admin/profile", CapProfile},
}

// IsAdminPath reports whether path belongs to the admin UI.
func IsAdminPath(path string) bool {
	return httputil.HasPathPrefix(path, AdminPrefix)
}

// IsAPIPath reports whether path belongs to the JSON API.
func IsAPIPath(path string) bool {
	return httputil.HasPathPrefix(path, APIPrefix)
}

// IsPublicAPI reports whether path is under a public API prefix.
func IsPublicAPI(path string) bool {
	for _, p := range PublicAPIPrefixes {
		if httputil.HasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// Authorize evaluates the first-match authorization table. cred is nil when
// the caller has no valid session.
func Authorize(path string, cred *Credential) Decision {
	admin, api := IsAdminPath(path), IsAPIPath(path)

	switch {
	case !admin && !api:
		return Decision{Allow: true, Reason: ReasonPublicPath}
	case api && IsPublicAPI(path):
		return Decision{Allow: true, Reason: ReasonPublicAPI}
	case admin:
		return authorizeAdmin(path, cred)
	case api:
		if cred == nil {
			return Decision{Reason: ReasonUnauthenticated}
		}
		return Decision{Allow: true, Reason: ReasonAuthenticated}
	}
	return Decision{Allow: true, Reason: ReasonDefault}
}

func authorizeAdmin(path string, cred *Credential) Decision {
	if httputil.HasPathPrefix(path, LoginPath) {
		return Decision{Allow: true, Reason: ReasonLoginPage}
	}
	if cred == nil {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if cred.Role.Can(CapFullAdmin) {
		return Decision{Allow: true, Reason: ReasonAdminAccess}
	}
	for _, s := range scopedAdminPaths {
		if httputil.HasPathPrefix(path, s.prefix) && cred.Role.Can(s.capability) {
			return Decision{Allow: true, Reason: ReasonScopedAccess}
		}
	}
	return Decision{Reason: ReasonInsufficientRole}
}
