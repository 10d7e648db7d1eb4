// Package session resolves the caller's credential and evaluates the
// role/path authorization table.
package session

import (
	"context"
	"time"
)

// Role is the role claim carried by a session credential.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// Credential is the decoded identity of a session.
type Credential struct {
	Subject   string
	Role      Role
	ExpiresAt time.Time
}

// Expired reports whether the credential is no longer valid at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Capability is a permission granted to a role.
type Capability string

const (
	// CapFullAdmin grants every admin page and the admin-only API handlers.
	CapFullAdmin Capability = "admin:full"
	CapInquiries Capability = "admin:inquiries"
	CapProfile   Capability = "admin:profile"
)

// Capabilities is the single role table shared by the gate and the handler
// composer. MANAGER is admin-equivalent in both.
var Capabilities = map[Role][]Capability{
	RoleAdmin:   {CapFullAdmin, CapInquiries, CapProfile},
	RoleManager: {CapFullAdmin, CapInquiries, CapProfile},
	RoleUser:    {CapInquiries, CapProfile},
}

// Can reports whether role holds capability.
func (r Role) Can(capability Capability) bool {
	for _, c := range Capabilities[r] {
		if c == capability {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the credential carries the full-admin capability.
func IsAdmin(cred *Credential) bool {
	return cred != nil && cred.Role.Can(CapFullAdmin)
}

type resolution struct {
	cred *Credential
}

type contextKey struct{}

// WithCredential caches the resolution result for the rest of the request.
// A nil credential is cached too, so absent sessions are not resolved twice.
func WithCredential(ctx context.Context, cred *Credential) context.Context {
	return context.WithValue(ctx, contextKey{}, &resolution{cred: cred})
}

// FromContext returns the cached credential and whether resolution already
// happened for this request.
func FromContext(ctx context.Context) (*Credential, bool) {
	res, ok := ctx.Value(contextKey{}).(*resolution)
	if !ok {
		return nil, false
	}
	return res.cred, true
}
