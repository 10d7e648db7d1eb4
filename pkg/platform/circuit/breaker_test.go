package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("opens after consecutive failures", func(t *testing.T) {
		b := New("redis", WithFailureThreshold(2), WithClock(clock))

		fallback, change := b.RecordFailure()
		assert.False(t, fallback)
		assert.False(t, change.Opened)

		fallback, change = b.RecordFailure()
		assert.True(t, fallback)
		assert.True(t, change.Opened)
		assert.Equal(t, StateOpen, b.State())
		assert.Equal(t, "open", b.State().String())
	})

	t.Run("success resets the failure streak while closed", func(t *testing.T) {
		b := New("redis", WithFailureThreshold(2))
		b.RecordFailure()
		b.RecordSuccess()
		fallback, _ := b.RecordFailure()
		assert.False(t, fallback)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("open breaker admits one probe per interval", func(t *testing.T) {
		b := New("redis", WithFailureThreshold(1), WithProbeInterval(time.Second), WithClock(clock))
		b.RecordFailure()

		assert.False(t, b.Allow())
		now = now.Add(time.Second)
		assert.True(t, b.Allow())
		assert.False(t, b.Allow())
	})

	t.Run("closes after consecutive successes", func(t *testing.T) {
		b := New("redis", WithFailureThreshold(1), WithSuccessThreshold(2))
		b.RecordFailure()

		primary, change := b.RecordSuccess()
		assert.False(t, primary)
		assert.False(t, change.Closed)

		primary, change = b.RecordSuccess()
		assert.True(t, primary)
		assert.True(t, change.Closed)
		assert.True(t, b.Allow())
	})

	t.Run("reset closes the circuit", func(t *testing.T) {
		b := New("redis", WithFailureThreshold(1))
		b.RecordFailure()
		b.Reset()
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, "redis", b.Name())
	})
}
