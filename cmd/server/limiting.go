package main

import (
	"fmt"
	"log/slog"
	"time"

	"gatekeeper/internal/audit"
	platformredis "gatekeeper/internal/platform/redis"
	rlconfig "gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/limiter"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/progressive"
	"gatekeeper/internal/ratelimit/store"
	"gatekeeper/internal/ratelimit/store/memory"
	redisstore "gatekeeper/internal/ratelimit/store/redis"
	"gatekeeper/internal/ratelimit/store/resilient"
	"gatekeeper/internal/ratelimit/workers/cleanup"
)

// limiting is the rate limiting stack for one instance.
type limiting struct {
	registry    *limiter.Registry
	progressive *progressive.Limiter
	cleanup     *cleanup.Service
}

// buildLimiting shares windows and escalation state through Redis when a
// client is given. The window store then degrades to memory behind a circuit
// breaker; without Redis every store is process-local.
func buildLimiting(cfg *rlconfig.Config, rdb *platformredis.Client, m *metrics.Metrics, emitter audit.Emitter, logger *slog.Logger) (*limiting, error) {
	local := memory.New()
	cleanupOpts := []cleanup.Option{
		cleanup.WithLogger(logger),
		cleanup.WithMetrics(m),
		cleanup.WithWindowStore(local),
	}

	var windows store.WindowStore = local
	var states progressive.StateStore
	if rdb != nil {
		windows = resilient.New(redisstore.New(rdb.Client), local,
			resilient.WithLogger(logger),
			resilient.WithMetrics(m),
		)
		states = progressive.NewRedisStore(rdb.Client, cfg.Progressive.MaxPenalty+cfg.Progressive.QuietPeriod+time.Hour)
	} else {
		memStates := progressive.NewMemoryStore()
		states = memStates
		cleanupOpts = append(cleanupOpts, cleanup.WithStateStore(memStates, cfg.Progressive.QuietPeriod))
	}

	registry, err := limiter.NewRegistry(cfg, windows, limiter.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	underlying, ok := registry.Get(cfg.Progressive.Policy)
	if !ok {
		return nil, fmt.Errorf("progressive limiter references unknown policy %q", cfg.Progressive.Policy)
	}
	prog, err := progressive.New(underlying, states, cfg.Progressive,
		progressive.WithLogger(logger),
		progressive.WithEmitter(emitter),
		progressive.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &limiting{
		registry:    registry,
		progressive: prog,
		cleanup:     cleanup.New(cleanupOpts...),
	}, nil
}
