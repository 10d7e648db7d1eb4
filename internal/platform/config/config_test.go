package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "session_token", cfg.Session.Cookie)
	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "gatekeeper.security-events", cfg.Kafka.Topic)
	assert.Equal(t, 1000, cfg.Security.GlobalRPS)
	assert.True(t, cfg.Security.CSPEnabled)
	assert.Empty(t, cfg.Database.URL)
	assert.False(t, cfg.IsProduction())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"APP_ENV":              "Production",
		"SESSION_SECRET":       "a-real-secret",
		"SESSION_TTL":          "30m",
		"CORS_ALLOWED_ORIGINS": "https://fleet.example.com,https://www.fleet.example.com",
		"TRUSTED_PROXIES":      "10.0.0.0/8, 192.0.2.10",
		"REDIS_URL":            "redis://localhost:6379/0",
		"HSTS_ENABLED":         "false",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, []string{"https://fleet.example.com", "https://www.fleet.example.com"}, cfg.Security.CORSAllowedOrigins)
	assert.False(t, cfg.Security.HSTSEnabled)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	prefixes, err := cfg.ProxyPrefixes()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.10/32"),
	}, prefixes)
}

func TestProductionRefusesDefaultSecret(t *testing.T) {
	_, err := Parse(map[string]string{"APP_ENV": "production"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")

	_, err = Parse(map[string]string{"APP_ENV": "development"})
	assert.NoError(t, err)
}

func TestInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":   {"SESSION_TTL": "soon"},
		"zero ttl":       {"SESSION_TTL": "0s"},
		"bad proxy":      {"TRUSTED_PROXIES": "not-an-ip"},
		"negative burst": {"GLOBAL_BURST": "-1"},
	}
	for name, environ := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(environ)
			assert.Error(t, err)
		})
	}
}
