package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("every route points at a defined policy", func(t *testing.T) {
		for _, r := range cfg.Routes {
			_, ok := cfg.Policies[r.Policy]
			assert.True(t, ok, "route %s uses undefined policy %s", r.Prefix, r.Policy)
		}
	})

	t.Run("progressive limiter wraps general-api", func(t *testing.T) {
		p, ok := cfg.Policies[cfg.Progressive.Policy]
		require.True(t, ok)
		assert.Equal(t, PolicyGeneralAPI, p.Name)
	})

	t.Run("policy names match their keys", func(t *testing.T) {
		for name, p := range cfg.Policies {
			assert.Equal(t, name, p.Name)
			assert.Positive(t, p.MaxRequests)
			assert.Positive(t, p.Window)
		}
	})
}

func TestProgressiveConfig_Penalty(t *testing.T) {
	c := ProgressiveConfig{
		EscalationThreshold: 3,
		BasePenalty:         time.Minute,
		PenaltyFactor:       2,
		MaxPenalty:          10 * time.Minute,
	}

	tests := []struct {
		violations int
		want       time.Duration
	}{
		{0, 0},
		{3, 0},
		{4, time.Minute},
		{5, 2 * time.Minute},
		{6, 4 * time.Minute},
		{7, 8 * time.Minute},
		{8, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Penalty(tt.violations), "violations=%d", tt.violations)
	}
}
