package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gatekeeper/internal/session/token"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

// DefaultCookieName is the session cookie set by the admin login.
const DefaultCookieName = "session_token"

// Resolver is the primary credential source. It returns (nil, nil) when the
// request carries no session it understands.
type Resolver interface {
	Resolve(r *http.Request) (*Credential, error)
}

// Decoder turns a raw cookie value into a credential. It backs the fallback
// path of the gate.
type Decoder interface {
	Decode(raw string) (*Credential, error)
}

// Gate resolves the session for a request once and caches the result in
// the request context.
type Gate struct {
	primary    Resolver
	fallback   Decoder
	cookieName string
	logger     *slog.Logger
}

type GateOption func(*Gate)

func WithCookieName(name string) GateOption {
	return func(g *Gate) {
		if name != "" {
			g.cookieName = name
		}
	}
}

func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate builds a gate. fallback may be nil, which disables the manual
// decode path.
func NewGate(primary Resolver, fallback Decoder, opts ...GateOption) (*Gate, error) {
	if primary == nil {
		return nil, errors.New("primary resolver is required")
	}
	g := &Gate{
		primary:    primary,
		fallback:   fallback,
		cookieName: DefaultCookieName,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CookieName returns the session cookie name the gate reads.
func (g *Gate) CookieName() string {
	return g.cookieName
}

// HasCookie reports whether the request carries a non-empty session cookie.
func (g *Gate) HasCookie(r *http.Request) bool {
	return g.rawCookie(r) != ""
}

func (g *Gate) rawCookie(r *http.Request) string {
	c, err := r.Cookie(g.cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Resolve returns the caller's credential or nil when there is none. A cached
// resolution in the request context wins. The fallback decoder runs only
// when the primary resolver yields nothing and a session cookie is present.
// Expired credentials count as absent. The returned error is non-nil only
// when a cookie was present but neither path could decode it; the credential
// is nil in that case.
func (g *Gate) Resolve(r *http.Request) (*Credential, error) {
	ctx := r.Context()
	if cred, ok := FromContext(ctx); ok {
		return cred, nil
	}
	now := requestcontext.Now(ctx)

	cred, err := g.primary.Resolve(r)
	if err != nil {
		g.logger.DebugContext(ctx, "primary session resolver failed", "error", err)
	}
	if cred != nil && !cred.Expired(now) {
		return cred, nil
	}

	raw := g.rawCookie(r)
	if raw == "" || g.fallback == nil {
		return nil, nil
	}
	cred, err = g.fallback.Decode(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session")
	}
	if cred == nil || cred.Expired(now) {
		return nil, nil
	}
	g.logger.DebugContext(ctx, "session resolved by fallback decoder", "subject", cred.Subject)
	return cred, nil
}

// Attach resolves the session and returns a context carrying the result,
// so later stages in the same request reuse it.
func (g *Gate) Attach(r *http.Request) (context.Context, *Credential, error) {
	if cred, ok := FromContext(r.Context()); ok {
		return r.Context(), cred, nil
	}
	cred, err := g.Resolve(r)
	return WithCredential(r.Context(), cred), cred, err
}

// CookieResolver is the primary resolver: it reads the session cookie and
// verifies it strictly.
type CookieResolver struct {
	codec      *token.Codec
	cookieName string
}

func NewCookieResolver(codec *token.Codec, cookieName string) *CookieResolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &CookieResolver{codec: codec, cookieName: cookieName}
}

func (c *CookieResolver) Resolve(r *http.Request) (*Credential, error) {
	ck, err := r.Cookie(c.cookieName)
	if err != nil || ck.Value == "" {
		return nil, nil
	}
	claims, err := c.codec.Verify(ck.Value)
	if err != nil {
		return nil, err
	}
	return credentialFrom(claims), nil
}

// TokenDecoder adapts the lenient token decode to Decoder.
type TokenDecoder struct {
	codec *token.Codec
}

func NewTokenDecoder(codec *token.Codec) *TokenDecoder {
	return &TokenDecoder{codec: codec}
}

func (d *TokenDecoder) Decode(raw string) (*Credential, error) {
	claims, err := d.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	return credentialFrom(claims), nil
}

func credentialFrom(claims *token.Claims) *Credential {
	cred := &Credential{Subject: claims.Subject, Role: Role(claims.Role)}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred
}

var (
	_ Resolver = (*CookieResolver)(nil)
	_ Decoder  = (*TokenDecoder)(nil)
)
