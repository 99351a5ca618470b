package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/raaihank/civicguard/internal/audit"
	"github.com/raaihank/civicguard/internal/boundary"
	"github.com/raaihank/civicguard/internal/cache"
	"github.com/raaihank/civicguard/internal/config"
	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/generator"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/metrics"
	"github.com/raaihank/civicguard/internal/privacy"
	"github.com/raaihank/civicguard/internal/rules"
	"github.com/raaihank/civicguard/internal/security"
	"github.com/raaihank/civicguard/internal/server"
	"github.com/raaihank/civicguard/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = server.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this address (e.g. http://localhost:8080) and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("CivicGuard %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting CivicGuard",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer app.close()

	if err := config.Watch(func(updated *config.Config) {
		if updated.Logging.Level == log.Level() {
			return
		}
		if err := log.SetLevel(updated.Logging.Level); err != nil {
			log.Warn("Ignoring invalid log level", zap.Error(err))
			return
		}
		log.Info("Log level updated", zap.String("level", updated.Logging.Level))
	}, func(err error) {
		log.Warn("Configuration reload rejected", zap.Error(err))
	}); err != nil {
		log.Debug("Configuration hot reload disabled", zap.Error(err))
	}

	if app.hub != nil {
		go app.hub.Run(ctx)
		app.server.StartStatusBroadcast(ctx, 10*time.Second)
	}
	app.limiter.StartCleanupRoutine(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- app.server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := app.server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		log.Info("Server shutdown complete")
	}
}

// app holds the wired service and the resources to release on exit
type app struct {
	server  *server.Server
	hub     *websocket.Hub
	limiter *security.RateLimiter
	closers []func() error
	log     *logger.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to release resource", zap.Error(err))
		}
	}
}

// build wires the registry, pipeline, audit sinks and HTTP surface
func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{log: log}

	registry, err := rules.Build(cfg.Rules.PackFile)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}
	log.Info("Rule registry loaded",
		zap.String("rules_version", registry.Version()),
		zap.Int("pattern_rules", len(registry.PatternRules())),
		zap.Int("term_rules", len(registry.TermRules())),
		zap.Int("forbidden_terms", len(registry.ForbiddenTerms())),
	)

	gen, breakerState, err := buildGenerator(cfg, registry, log)
	if err != nil {
		return nil, err
	}

	recorders := audit.Multi{audit.NewLogRecorder(log.WithComponent("audit"))}

	if cfg.Audit.Postgres.Enabled {
		store, err := audit.NewStore(ctx, &audit.StoreConfig{
			DatabaseURL:     cfg.Audit.Postgres.DatabaseURL,
			MaxOpenConns:    cfg.Audit.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.Postgres.ConnMaxLifetime,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		recorders = append(recorders, store)
	}

	var stats cache.Counter = cache.NewMemoryCounter()
	if cfg.Cache.Enabled {
		counter, err := cache.NewRedisCounter(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			Retention:      cfg.Cache.Retention,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log)
		if err != nil {
			log.Warn("Redis unavailable, using in-process counters", zap.Error(err))
		} else {
			a.closers = append(a.closers, counter.Close)
			stats = counter
		}
	}
	recorders = append(recorders, stats)

	if cfg.WebSocket.Enabled {
		a.hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastPipeline:    cfg.WebSocket.Events.BroadcastPipeline,
			BroadcastRedactions:  cfg.WebSocket.Events.BroadcastRedactions,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
			AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
		}, log)
		recorders = append(recorders, a.hub)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline := boundary.New(
		privacy.New(registry, log),
		gen,
		draft.NewLeakDetector(registry, draft.LeakOptions{
			IncludeExcerpts: cfg.Boundary.IncludeExcerpts,
			ExcerptRadius:   cfg.Boundary.ExcerptRadius,
		}),
		recorders,
		log,
		boundary.Options{Metrics: metrics.New(reg)},
	)

	a.limiter = security.NewRateLimiter(&cfg.RateLimit)
	a.server = server.New(cfg, server.Deps{
		Pipeline:     pipeline,
		Registry:     registry,
		Stats:        stats,
		Hub:          a.hub,
		Limiter:      a.limiter,
		Gatherer:     reg,
		BreakerState: breakerState,
	}, log)

	return a, nil
}

func buildGenerator(cfg *config.Config, registry *rules.Registry, log *logger.Logger) (generator.Generator, func() string, error) {
	if cfg.Generator.Provider != "anthropic" {
		log.Info("Using deterministic demo generator")
		return generator.NewDemo(registry), nil, nil
	}

	client, err := generator.NewAnthropicClient(generator.AnthropicConfig{
		BaseURL:         cfg.Generator.BaseURL,
		Model:           cfg.Generator.Model,
		MaxTokens:       cfg.Generator.MaxTokens,
		Timeout:         cfg.Generator.Timeout,
		MaxRetries:      cfg.Generator.MaxRetries,
		RetryInterval:   cfg.Generator.RetryInterval,
		BreakerFailures: cfg.Generator.BreakerFailures,
		StressKeywords:  registry.StressKeywords(),
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}
	return client, client.BreakerState, nil
}

// performHealthCheck performs a health check against a running server
func performHealthCheck(addr string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
