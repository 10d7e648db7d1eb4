// Package token mints and parses the signed session cookie.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

// Claims is the payload of a session token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 session tokens with a shared secret.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Codec)

// WithClock overrides the clock used to check expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret, issuer, audience string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	c := &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode mints a token carrying issuer and audience.
func (c *Codec) Encode(ctx context.Context, subject, role string) (string, error) {
	return c.sign(ctx, subject, role, true)
}

// EncodeBare mints a token without issuer and audience, the shape produced by
// older admin tooling. Only Decode accepts it.
func (c *Codec) EncodeBare(ctx context.Context, subject, role string) (string, error) {
	return c.sign(ctx, subject, role, false)
}

func (c *Codec) sign(ctx context.Context, subject, role string, scoped bool) (string, error) {
	if subject == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "subject is required")
	}
	now := requestcontext.Now(ctx)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if scoped {
		claims.Issuer = c.issuer
		claims.Audience = jwt.ClaimStrings{c.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify is the strict parse: HS256 signature, expiry, issuer and audience.
func (c *Codec) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithIssuer(c.issuer)}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}
	return c.parse(raw, opts...)
}

// Decode checks only the signature and expiry.
func (c *Codec) Decode(raw string) (*Claims, error) {
	return c.parse(raw)
}

func (c *Codec) parse(raw string, extra ...jwt.ParserOption) (*Claims, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}, extra...)

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
