package server

import (
	"fmt"
	"net/http"

	"github.com/agentstation/syncflow/internal/server/handlers"
	"github.com/agentstation/syncflow/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.app,
		s.cache,
		s.broker,
		s.wsHub,
		s.sseBroadcaster,
		s.upgrader,
		s.logger,
		s.startTime,
	)

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/ready", h.HandleReady)

	// Engine and runs
	mux.HandleFunc("GET "+prefix+"/status", h.HandleStatus)
	mux.HandleFunc("GET "+prefix+"/runs", h.HandleListRuns)
	mux.HandleFunc("POST "+prefix+"/runs", h.HandleTriggerRun)
	mux.HandleFunc("POST "+prefix+"/runs/cancel", h.HandleCancelRun)
	mux.HandleFunc("GET "+prefix+"/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET "+prefix+"/runs/{id}/entities", h.HandleRunEntities)

	// Review overrides
	mux.HandleFunc("GET "+prefix+"/overrides", h.HandleListOverrides)
	mux.HandleFunc("PUT "+prefix+"/overrides", h.HandleSetOverride)
	mux.HandleFunc("DELETE "+prefix+"/overrides", h.HandleDeleteOverride)

	// Admin endpoints
	mux.HandleFunc("GET "+prefix+"/config", h.HandleConfig)
	mux.HandleFunc("GET "+prefix+"/stats", h.HandleStats)

	// Real-time endpoints
	mux.HandleFunc("GET "+prefix+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+prefix+"/updates/stream", h.HandleSSE)

	// Metrics endpoint (optional)
	if s.config.MetricsEnabled {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}
}

// handleMetrics writes broker and client gauges in the Prometheus text
// format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	running := 0
	if engine, err := s.app.Engine(); err == nil && engine.Status().Active != nil {
		running = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = fmt.Fprintf(w, "# TYPE syncflow_run_active gauge\n")
	_, _ = fmt.Fprintf(w, "syncflow_run_active %d\n", running)
	_, _ = fmt.Fprintf(w, "# TYPE syncflow_events_published_total counter\n")
	_, _ = fmt.Fprintf(w, "syncflow_events_published_total %d\n", s.broker.EventsPublished())
	_, _ = fmt.Fprintf(w, "# TYPE syncflow_events_dropped_total counter\n")
	_, _ = fmt.Fprintf(w, "syncflow_events_dropped_total %d\n", s.broker.EventsDropped())
	_, _ = fmt.Fprintf(w, "# TYPE syncflow_realtime_clients gauge\n")
	_, _ = fmt.Fprintf(w, "syncflow_realtime_clients{transport=\"websocket\"} %d\n", s.wsHub.ClientCount())
	_, _ = fmt.Fprintf(w, "syncflow_realtime_clients{transport=\"sse\"} %d\n", s.sseBroadcaster.ClientCount())
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if cfg.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, s.logger)
		handler = middleware.RateLimit(rateLimiter)(handler)
	}

	// Authentication (if enabled)
	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.APIKey = cfg.APIKey
		if cfg.AuthHeader != "" {
			authConfig.HeaderName = cfg.AuthHeader
		}
		authConfig.PublicPaths = []string{"/health", cfg.PathPrefix + "/health", cfg.PathPrefix + "/ready"}
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}
