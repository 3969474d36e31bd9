package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/server/cache"
	"github.com/agentstation/syncflow/internal/server/events"
	"github.com/agentstation/syncflow/internal/server/events/adapters"
	"github.com/agentstation/syncflow/internal/server/sse"
	ws "github.com/agentstation/syncflow/internal/server/websocket"
	"github.com/agentstation/syncflow/pkg/report"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app            application.Application
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	startTime      time.Time
}

// New creates a new server instance with the given configuration.
func New(app application.Application, cfg Config) (*Server, error) {
	logger := app.Logger()

	// Set defaults
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/api/v1"
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	// Both transports see the broker's stream in the same order
	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))

	// Create context for managing background services
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		app:            app,
		cache:          cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	if err := server.connectHooks(); err != nil {
		cancel()
		return nil, err
	}

	logger.Debug().Msg("Server instance created")
	return server, nil
}

// connectHooks registers engine hooks that publish run progress to the
// broker. A finished run invalidates every cached history view.
func (s *Server) connectHooks() error {
	engine, err := s.app.Engine()
	if err != nil {
		return err
	}

	engine.OnRunStarted(func(runID, trigger string) {
		s.broker.Publish(events.RunStarted, map[string]any{
			"run_id":  runID,
			"trigger": trigger,
		})
	})

	engine.OnPhaseChanged(func(runID string, phase report.Phase) {
		s.broker.Publish(events.RunPhase, map[string]any{
			"run_id": runID,
			"phase":  phase,
		})
	})

	engine.OnRunCompleted(func(entry *report.Entry) {
		s.cache.Clear()
		s.broker.Publish(events.RunCompleted, entry.Summary())
		s.logger.Debug().
			Str("run_id", entry.Report.RunID).
			Msg("Run completed event published")
	})

	s.logger.Info().Msg("Engine hooks connected to event broker")
	return nil
}

// Start starts background services (broker, WebSocket hub, SSE broadcaster).
func (s *Server) Start() {
	s.logger.Debug().Msg("Starting background services")

	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.broker.Run(s.ctx) }()
	go func() { defer s.wg.Done(); s.wsHub.Run(s.ctx) }()
	go func() { defer s.wg.Done(); s.sseBroadcaster.Run(s.ctx) }()
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown stops the background services and waits for them until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Background services shut down successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
