// Package main is the entry point for the engagement engine API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/api"
	"github.com/onnwee/crowdpulse/internal/badge"
	"github.com/onnwee/crowdpulse/internal/config"
	"github.com/onnwee/crowdpulse/internal/health"
	"github.com/onnwee/crowdpulse/internal/intelligence"
	"github.com/onnwee/crowdpulse/internal/jobs"
	"github.com/onnwee/crowdpulse/internal/middleware"
	"github.com/onnwee/crowdpulse/internal/tracing"
)

const (
	serviceName    = "crowdpulse"
	serviceVersion = "0.1.0"

	limiterSweepInterval = time.Minute
	limiterMaxIdle       = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
	connectTimeout       = 5 * time.Second
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("CROWDPULSE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("CrowdPulse Engagement Engine")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := cfg.TracingConfig(serviceName)
	tcfg.ServiceVersion = serviceVersion
	tp, err := tracing.NewProvider(tcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	go a.sweepLimiter(ctx)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		if err != nil {
			a.close()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	a.close()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// app is the assembled service: engine, stores and router.
type app struct {
	handler  http.Handler
	engine   *intelligence.Engine
	limiter  *middleware.KeyedLimiter
	registry *prometheus.Registry
	logger   *slog.Logger
	closers  []func() error
}

// newApp connects the configured stores and wires the engine behind the router.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry(), logger: logger}
	checkers := make(map[string]health.Checker)

	var (
		db       *sql.DB
		gateway  activity.Gateway
		recorder activity.Recorder
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checkers["database"] = health.NewDBChecker(db)

		pg := activity.NewPostgresGateway(db, logger)
		gateway, recorder = pg, pg
		logger.Info("using postgres activity store")
	} else {
		mem := activity.NewInMemoryStore()
		gateway, recorder = mem, mem
		logger.Warn("DATABASE_URL not set, using in-memory activity store")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		rdb = redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)
		checkers["redis"] = health.NewRedisChecker(rdb)
	}

	var awards badge.AwardStore
	switch cfg.BadgeStore {
	case config.BadgeStorePostgres:
		awards = badge.NewPostgresAwardStore(db)
	case config.BadgeStoreRedis:
		awards = badge.NewRedisAwardStore(rdb)
	default:
		awards = badge.NewInMemoryAwardStore()
	}
	logger.Info("badge award store selected", "backend", cfg.BadgeStore)

	intelMetrics := intelligence.NewMetrics()
	badgeMetrics := badge.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	if err := a.register(intelMetrics, badgeMetrics, jobMetrics, httpMetrics); err != nil {
		a.close()
		return nil, err
	}

	resilient := intelligence.NewResilientGateway(gateway, intelligence.BreakerConfig{
		Name:                "activity-gateway",
		ConsecutiveFailures: uint32(cfg.Intelligence.BreakerFailures),
		OpenTimeout:         cfg.Intelligence.BreakerOpenTimeout,
		Logger:              logger,
		Metrics:             intelMetrics,
	})

	evaluator := badge.NewEvaluator(awards, badge.EvaluatorOptions{
		RankSource: resilient,
		Metrics:    badgeMetrics,
		Logger:     logger,
	})

	broadcaster := intelligence.NewBroadcaster(logger, intelMetrics)
	a.engine = intelligence.NewEngine(intelligence.Config{
		Interval:          cfg.Intelligence.Interval,
		EvaluationTimeout: cfg.Intelligence.EvaluationTimeout,
		Logger:            logger,
		Metrics:           intelMetrics,
		JobMetrics:        jobMetrics,
		OnUpdate:          broadcaster.Publish,
	}, resilient, evaluator)
	a.closers = append([]func() error{func() error { a.engine.Close(); return nil }}, a.closers...)

	a.limiter = middleware.NewKeyedLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.BadgeRPS,
		Burst:             cfg.RateLimit.BadgeBurst,
	})

	a.handler = api.NewRouter(api.RouterConfig{
		ServiceName: serviceName,
		Logger:      logger,
		Intelligence: api.NewIntelligenceHandlers(api.IntelligenceHandlersConfig{
			Engine:      a.engine,
			Broadcaster: broadcaster,
			Recorder:    recorder,
			Logger:      logger,
		}),
		Health:       api.NewHealthHandlers(api.HealthHandlersConfig{Checkers: checkers}),
		HTTPMetrics:  httpMetrics,
		Gatherer:     a.registry,
		BadgeLimiter: a.limiter,
	})
	return a, nil
}

type registerer interface {
	Register(prometheus.Registerer) error
}

func (a *app) register(metrics ...registerer) error {
	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := a.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return fmt.Errorf("failed to register process collector: %w", err)
	}
	for _, m := range metrics {
		if err := m.Register(a.registry); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return nil
}

// sweepLimiter drops idle rate limit entries until ctx is done.
func (a *app) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Cleanup(limiterMaxIdle); n > 0 {
				a.logger.Debug("rate limiter entries evicted", "count", n)
			}
		}
	}
}

// close stops the engine and releases store connections, in that order.
func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
