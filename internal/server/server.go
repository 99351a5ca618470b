// Package server exposes the boundary pipeline over HTTP
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/civicguard/internal/boundary"
	"github.com/raaihank/civicguard/internal/cache"
	"github.com/raaihank/civicguard/internal/config"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/rules"
	"github.com/raaihank/civicguard/internal/security"
	"github.com/raaihank/civicguard/internal/web"
	"github.com/raaihank/civicguard/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported on /info
const Version = "0.1.0"

// Deps are the collaborators the HTTP surface calls into
type Deps struct {
	Pipeline *boundary.Pipeline
	Registry *rules.Registry
	Stats    cache.Counter
	Hub      *websocket.Hub
	Limiter  *security.RateLimiter
	Gatherer prometheus.Gatherer
	// BreakerState reports the generator circuit state when one exists
	BreakerState func() string
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	deps    Deps
	logger  *logger.Logger
	router  *mux.Router
	server  *http.Server
	started time.Time
}

// New creates a server and registers its routes
func New(cfg *config.Config, deps Deps, log *logger.Logger) *Server {
	if deps.Stats == nil {
		deps.Stats = cache.NewMemoryCounter()
	}
	if deps.Limiter == nil {
		deps.Limiter = security.NewRateLimiter(&cfg.RateLimit)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:  cfg,
		deps:    deps,
		logger:  log.WithComponent("server"),
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet, http.MethodHead)

	if s.config.WebSocket.Enabled && s.deps.Hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting CivicGuard server",
		zap.Int("port", s.config.Server.Port),
		zap.String("generator", s.config.Generator.Provider),
		zap.String("rules_version", s.deps.Registry.Version()),
		zap.Bool("websocket", s.config.WebSocket.Enabled),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping CivicGuard server")
	return s.server.Shutdown(ctx)
}

// StartStatusBroadcast pushes a system status event to dashboard clients
// every interval until ctx is done
func (s *Server) StartStatusBroadcast(ctx context.Context, interval time.Duration) {
	if s.deps.Hub == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.deps.Hub.BroadcastEvent(s.systemStatus(ctx))
			}
		}
	}()
}

func (s *Server) systemStatus(ctx context.Context) websocket.Event {
	status := websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		ActiveRules:      len(s.deps.Registry.Rules()),
		RulesVersion:     s.deps.Registry.Version(),
		ConnectedClients: int(s.deps.Hub.GetStats().ActiveConnections),
	}
	if stats, err := s.deps.Stats.GetStats(ctx); err == nil {
		status.TotalRequests = stats.TotalRequests
		status.Accepted = stats.Outcomes[string(boundary.OutcomeAccepted)]
		status.Rejected = stats.TotalRequests - status.Accepted
	}
	return websocket.Event{Type: websocket.EventTypeSystemStatus, Timestamp: time.Now(), Data: status}
}
