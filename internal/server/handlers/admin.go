package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/agentstation/syncflow/internal/server/response"
)

// HandleConfig handles GET /api/v1/config.
// @Summary Effective configuration
// @Description The loaded configuration with secrets masked
// @Tags admin
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Security ApiKeyAuth
// @Router /api/v1/config [get].
func (h *Handlers) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.app.Config()
	if cfg == nil {
		response.ServiceUnavailable(w, "Configuration not loaded")
		return
	}
	response.OK(w, cfg.Sanitized())
}

// HandleStats handles GET /api/v1/stats.
// @Summary Server statistics
// @Description Runtime, engine, event, real-time, and cache statistics
// @Tags admin
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Security ApiKeyAuth
// @Router /api/v1/stats [get].
func (h *Handlers) HandleStats(w http.ResponseWriter, _ *http.Request) {
	engine, ok := h.engine(w)
	if !ok {
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response.OK(w, map[string]any{
		"runtime": map[string]any{
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"memory_mb":      memStats.Alloc / 1024 / 1024,
			"memory_sys_mb":  memStats.Sys / 1024 / 1024,
		},
		"engine": engine.Status(),
		"events": map[string]any{
			"published_total": h.broker.EventsPublished(),
			"dropped_total":   h.broker.EventsDropped(),
			"queue_depth":     h.broker.QueueDepth(),
		},
		"realtime": map[string]any{
			"websocket_clients": h.wsHub.ClientCount(),
			"sse_clients":       h.sseBroadcaster.ClientCount(),
		},
		"cache": h.cache.GetStats(),
	})
}
