package progressive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/ratelimit/models"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	s := NewRedisStore(client, 25*time.Hour)
	key := models.ProgressiveKey("2001:db8::7")
	now := time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC)

	t.Run("missing key loads as zero state", func(t *testing.T) {
		st, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, st.IsZero())
	})

	t.Run("round trips with millisecond precision and a ttl", func(t *testing.T) {
		want := models.ProgressiveState{
			ViolationCount:  5,
			LastViolationAt: now,
			BannedUntil:     now.Add(2 * time.Minute),
		}
		require.NoError(t, s.Save(ctx, key, want))

		got, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, 25*time.Hour, mr.TTL(key))
	})

	t.Run("saving a zero state deletes the key", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, key, models.ProgressiveState{}))
		assert.False(t, mr.Exists(key))
	})

	t.Run("delete removes the record", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, key, models.ProgressiveState{ViolationCount: 1, LastViolationAt: now}))
		require.NoError(t, s.Delete(ctx, key))
		st, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, st.ViolationCount)
	})
}
