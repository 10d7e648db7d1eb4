package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-signing-key", "gatekeeper", "fleet-admin", time.Hour)
	require.NoError(t, err)
	return c
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("", "gatekeeper", "fleet-admin", time.Hour)
	require.Error(t, err)
}

func TestEncodeVerify(t *testing.T) {
	c := newCodec(t)
	raw, err := c.Encode(context.Background(), "user-42", "MANAGER")
	require.NoError(t, err)

	claims, err := c.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "MANAGER", claims.Role)
	assert.Equal(t, "gatekeeper", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestBareTokensDecodeButFailVerify(t *testing.T) {
	c := newCodec(t)
	raw, err := c.EncodeBare(context.Background(), "user-7", "USER")
	require.NoError(t, err)

	_, err = c.Verify(raw)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	claims, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.Subject)
}

func TestExpiredTokensAreRejected(t *testing.T) {
	c := newCodec(t)
	ctx := requestcontext.WithTime(context.Background(), time.Now().Add(-2*time.Hour))
	raw, err := c.Encode(ctx, "user-42", "ADMIN")
	require.NoError(t, err)

	_, err = c.Verify(raw)
	require.ErrorContains(t, err, "token expired")
	_, err = c.Decode(raw)
	require.ErrorContains(t, err, "token expired")
}

func TestClockOption(t *testing.T) {
	c, err := NewCodec("test-signing-key", "gatekeeper", "fleet-admin", time.Minute,
		WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) }))
	require.NoError(t, err)
	raw, err := c.Encode(context.Background(), "user-42", "ADMIN")
	require.NoError(t, err)

	_, err = c.Decode(raw)
	require.ErrorContains(t, err, "token expired")
}

func TestWrongSecretIsRejected(t *testing.T) {
	raw, err := newCodec(t).Encode(context.Background(), "user-42", "ADMIN")
	require.NoError(t, err)

	other, err := NewCodec("another-key", "gatekeeper", "fleet-admin", time.Hour)
	require.NoError(t, err)
	_, err = other.Decode(raw)
	require.ErrorContains(t, err, "invalid token")
}

func TestAlgorithmConfusionIsRejected(t *testing.T) {
	claims := Claims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = newCodec(t).Decode(raw)
	require.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newCodec(t).Decode(unsigned)
	require.Error(t, err)
}

func TestTokensWithoutExpiryAreRejected(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = newCodec(t).Decode(raw)
	require.Error(t, err)
}
