package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/syncflow/internal/server/events"
	ws "github.com/agentstation/syncflow/internal/server/websocket"
)

// HandleWebSocket handles WebSocket connections at /api/v1/updates/ws.
// @Summary WebSocket updates
// @Description WebSocket connection for run progress and override events
// @Tags updates
// @Success 101 "Switching Protocols"
// @Router /api/v1/updates/ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(uuid.NewString(), h.wsHub, conn)
	client.Send(ws.Message{
		Type:      string(events.ClientConnected),
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"message":   "Connected to syncflow run updates",
			"client_id": client.ID(),
		},
	})
	h.wsHub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE handles Server-Sent Events at /api/v1/updates/stream.
// @Summary SSE updates stream
// @Description Server-Sent Events stream of run progress and override events
// @Tags updates
// @Produce text/event-stream
// @Success 200 "Event stream"
// @Router /api/v1/updates/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
