package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/compose"
	"gatekeeper/internal/datagateway"
	"gatekeeper/internal/inquiry"
	inquirystore "gatekeeper/internal/inquiry/store"
	"gatekeeper/internal/pipeline"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/database"
	"gatekeeper/internal/platform/health"
	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/internal/platform/logger"
	"gatekeeper/internal/platform/metrics"
	platformredis "gatekeeper/internal/platform/redis"
	"gatekeeper/internal/platform/tracer"
	rladmin "gatekeeper/internal/ratelimit/admin"
	rlconfig "gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/globalthrottle"
	rlmetrics "gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/security/headers"
	"gatekeeper/internal/session"
	"gatekeeper/internal/session/token"
	httptransport "gatekeeper/internal/transport/http"
	"gatekeeper/migrations"
	"gatekeeper/pkg/platform/middleware/metadata"
	"gatekeeper/pkg/platform/middleware/request"
)

const poolStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("gatekeeper stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("gatekeeper stopped")
}

// run wires every dependency, then serves until ctx is cancelled. The HTTP
// server, cleanup worker and pool-stat reporter share one errgroup.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	env := headers.ParseEnvironment(cfg.Env)
	reg := metrics.NewRegistry(health.Version, string(env))
	healthHandler := health.New(string(env))
	tr := tracer.NewOTel()

	// Security events
	var sink audit.Sink = audit.NewLogSink(log)
	var prod *producer.Producer
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         3,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			return err
		}
		prod = p
		defer prod.Close(10 * time.Second)
		sink = audit.NewKafkaSink(prod, cfg.Kafka.Topic)
		healthHandler.RegisterCheck("kafka", prod.Ping)
	}
	publisher := audit.NewPublisher(sink, audit.WithAsyncBuffer(1024), audit.WithPublisherLogger(log))
	defer publisher.Close()

	// Shared limiter state
	rdb, err := platformredis.New(ctx, cfg.Redis, platformredis.NewMetricsWith(reg))
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close() //nolint:errcheck // shutdown path
		healthHandler.RegisterCheck("redis", rdb.Health)
	} else {
		log.Warn("REDIS_URL not set, rate limits are per instance")
	}

	rlCfg := rlconfig.DefaultConfig()
	rlCfg.Global = rlconfig.GlobalLimit{PerInstancePerSecond: cfg.Security.GlobalRPS, Burst: cfg.Security.GlobalBurst}
	rlm := rlmetrics.NewWith(reg)
	lim, err := buildLimiting(rlCfg, rdb, rlm, publisher, log)
	if err != nil {
		return fmt.Errorf("build rate limiting: %w", err)
	}

	// Inquiry storage
	gateway := datagateway.New(
		datagateway.WithLogger(log),
		datagateway.WithTracer(tr),
		datagateway.WithMetrics(datagateway.NewMetricsWith(reg)),
	)
	var inquiries inquiry.Store = inquirystore.NewMemory()
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
		if err := pool.Migrate(ctx, migrations.FS); err != nil {
			return err
		}
		if err := metrics.RegisterDBStats(reg, pool.DB(), "gatekeeper"); err != nil {
			return fmt.Errorf("register db stats: %w", err)
		}
		healthHandler.RegisterCheck("postgres", pool.Health)
		inquiries = inquirystore.NewPostgres(pool.DB(), gateway)
	} else {
		log.Warn("DATABASE_URL not set, inquiries are kept in memory")
	}

	// Sessions and headers
	codec, err := token.NewCodec(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.Audience, cfg.Session.TTL)
	if err != nil {
		return err
	}
	gate, err := session.NewGate(
		session.NewCookieResolver(codec, cfg.Session.Cookie),
		session.NewTokenDecoder(codec),
		session.WithCookieName(cfg.Session.Cookie),
		session.WithLogger(log),
	)
	if err != nil {
		return err
	}
	composer := headers.New(map[headers.Environment]headers.Policy{
		env: {
			HSTS:           cfg.Security.HSTSEnabled,
			CSP:            cfg.Security.CSPEnabled,
			AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		},
	})
	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		return err
	}

	gk, err := pipeline.New(pipeline.Config{Environment: env, Composer: composer, Gate: gate},
		pipeline.WithPolicies(lim.registry),
		pipeline.WithProgressive(lim.progressive),
		pipeline.WithHTTPSEnforcement(env == headers.Production && cfg.Security.EnforceHTTPS),
		pipeline.WithEmitter(publisher),
		pipeline.WithLogger(log),
		pipeline.WithTracer(tr),
		pipeline.WithMetrics(pipeline.NewMetricsWith(reg)),
	)
	if err != nil {
		return err
	}
	handlers, err := compose.New(compose.Config{Environment: env, Composer: composer, Gate: gate},
		compose.WithPolicies(lim.registry),
		compose.WithEmitter(publisher),
		compose.WithLogger(log),
	)
	if err != nil {
		return err
	}
	svc, err := inquiry.NewService(inquiries, log)
	if err != nil {
		return err
	}
	limitAdmin, err := rladmin.New(lim.registry, lim.progressive,
		rladmin.WithLogger(log),
		rladmin.WithEmitter(publisher),
	)
	if err != nil {
		return err
	}

	router, err := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Metadata: metadata.NewMiddleware(&metadata.Config{
			TrustedProxies:        proxies,
			TrustForwardedHeaders: cfg.Security.TrustForwardedHeaders,
		}),
		Throttle:       globalthrottle.New(rlCfg.Global, globalthrottle.WithLogger(log), globalthrottle.WithMetrics(rlm)),
		Pipeline:       gk,
		Composer:       handlers,
		Health:         healthHandler,
		Metrics:        metrics.Handler(reg),
		RequestMetrics: request.NewMetricsWith(reg),
		Inquiries:      inquiry.NewHandler(svc),
		RateLimitAdmin: rladmin.NewHandler(limitAdmin),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gatekeeper", "addr", cfg.Addr, "environment", env, "version", health.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gatekeeper")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := lim.cleanup.Start(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if rdb != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					rdb.RecordPoolStats()
				}
			}
		})
	}
	return g.Wait()
}
