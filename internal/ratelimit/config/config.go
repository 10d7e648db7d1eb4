package config

import (
	"time"

	"gatekeeper/internal/ratelimit/models"
)

// Policy names.
const (
	PolicyAuth       = "auth"
	PolicyGeneralAPI = "general-api"
	PolicyUpload     = "upload"
	PolicyContact    = "contact"
)

// Config holds rate limiting configuration. It is built once at process start
// and never mutated afterwards.
type Config struct {
	// Policies are the named fixed-window limits.
	Policies map[string]models.Policy

	// Routes bind path prefixes to named policies. Longest prefix wins.
	Routes []Route

	// APIPrefix marks traffic that falls back to the progressive limiter when
	// no route matches.
	APIPrefix string

	Progressive ProgressiveConfig
	Global      GlobalLimit
}

// Route binds a path prefix to a named policy.
type Route struct {
	Prefix string
	Policy string
}

// ProgressiveConfig tunes escalation for repeat offenders.
type ProgressiveConfig struct {
	// Policy is the underlying fixed-window policy.
	Policy string
	// EscalationThreshold is how many breaches are tolerated before bans begin.
	EscalationThreshold int
	// BasePenalty is the first ban length; each further breach multiplies it by PenaltyFactor.
	BasePenalty   time.Duration
	PenaltyFactor float64
	MaxPenalty    time.Duration
	// QuietPeriod is the violation-free interval after which the record decays to zero.
	QuietPeriod time.Duration
}

// GlobalLimit caps per-instance throughput regardless of identity.
type GlobalLimit struct {
	PerInstancePerSecond int
	Burst                int
}

// DefaultConfig returns the production policy table.
func DefaultConfig() *Config {
	return &Config{
		Policies: map[string]models.Policy{
			PolicyAuth:       {Name: PolicyAuth, MaxRequests: 5, Window: 15 * time.Minute},
			PolicyGeneralAPI: {Name: PolicyGeneralAPI, MaxRequests: 100, Window: time.Minute},
			PolicyUpload:     {Name: PolicyUpload, MaxRequests: 10, Window: time.Minute},
			PolicyContact:    {Name: PolicyContact, MaxRequests: 20, Window: time.Hour},
		},
		Routes: []Route{
			{Prefix: "/api/auth", Policy: PolicyAuth},
			{Prefix: "/api/upload", Policy: PolicyUpload},
			{Prefix: "/api/admin/upload", Policy: PolicyUpload},
			{Prefix: "/api/contact", Policy: PolicyContact},
			{Prefix: "/api/inquiries", Policy: PolicyContact},
		},
		APIPrefix: "/api",
		Progressive: ProgressiveConfig{
			Policy:              PolicyGeneralAPI,
			EscalationThreshold: 3,
			BasePenalty:         time.Minute,
			PenaltyFactor:       2,
			MaxPenalty:          24 * time.Hour,
			QuietPeriod:         time.Hour,
		},
		Global: GlobalLimit{
			PerInstancePerSecond: 1000,
			Burst:                2000,
		},
	}
}

// Penalty returns the ban length for the given violation count:
// BasePenalty * PenaltyFactor^(violations - EscalationThreshold - 1), capped at MaxPenalty.
// Counts at or below the threshold carry no ban.
func (c ProgressiveConfig) Penalty(violations int) time.Duration {
	over := violations - c.EscalationThreshold
	if over <= 0 {
		return 0
	}
	penalty := float64(c.BasePenalty)
	for i := 1; i < over; i++ {
		penalty *= c.PenaltyFactor
		if penalty >= float64(c.MaxPenalty) {
			return c.MaxPenalty
		}
	}
	if d := time.Duration(penalty); d < c.MaxPenalty {
		return d
	}
	return c.MaxPenalty
}
