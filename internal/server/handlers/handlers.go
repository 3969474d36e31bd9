// Package handlers provides HTTP request handlers for the syncflow API.
package handlers

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/server/cache"
	"github.com/agentstation/syncflow/internal/server/events"
	"github.com/agentstation/syncflow/internal/server/sse"
	ws "github.com/agentstation/syncflow/internal/server/websocket"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	app            application.Application
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	startTime      time.Time
}

// New creates a new Handlers instance.
func New(
	app application.Application,
	cache *cache.Cache,
	broker *events.Broker,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader websocket.Upgrader,
	logger *zerolog.Logger,
	startTime time.Time,
) *Handlers {
	return &Handlers{
		app:            app,
		cache:          cache,
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		logger:         logger,
		startTime:      startTime,
	}
}
