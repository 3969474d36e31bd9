package handlers

import (
	"net/http"

	"github.com/agentstation/syncflow/internal/server/response"
)

// HandleHealth handles GET /api/v1/health.
// @Summary Health check
// @Description Health check endpoint (liveness check)
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Router /api/v1/health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "syncflow-api",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready.
// @Summary Readiness check
// @Description Readiness check including engine state and real-time clients
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	engine, err := h.app.Engine()
	if err != nil || engine == nil {
		response.ServiceUnavailable(w, "Engine not available")
		return
	}

	response.OK(w, map[string]any{
		"status": "ready",
		"engine": engine.Status().State,
		"cache": map[string]any{
			"items": h.cache.ItemCount(),
		},
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
	})
}
