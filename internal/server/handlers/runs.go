package handlers

import (
	"net/http"
	"strconv"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/internal/server/cache"
	"github.com/agentstation/syncflow/internal/server/filter"
	"github.com/agentstation/syncflow/internal/server/response"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/report"
)

// engine resolves the engine or writes a 503.
func (h *Handlers) engine(w http.ResponseWriter) (syncflow.Client, bool) {
	engine, err := h.app.Engine()
	if err != nil {
		h.logger.Error().Err(err).Msg("Engine unavailable")
		response.ServiceUnavailable(w, "Engine not available")
		return nil, false
	}
	return engine, true
}

// HandleStatus handles GET /api/v1/status.
// @Summary Engine status
// @Description Whether a run is active, its phase, and the last run's outcome
// @Tags runs
// @Produce json
// @Success 200 {object} response.Response{data=syncflow.Status}
// @Security ApiKeyAuth
// @Router /api/v1/status [get].
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	engine, ok := h.engine(w)
	if !ok {
		return
	}
	response.OK(w, engine.Status())
}

// HandleListRuns handles GET /api/v1/runs.
// @Summary List runs
// @Description Run summaries, newest first
// @Tags runs
// @Produce json
// @Param offset query int false "Results to skip"
// @Param limit query int false "Maximum results (default 20, max 200)"
// @Param status query string false "success, partial, or failed"
// @Param trigger query string false "manual, schedule, or api"
// @Success 200 {object} response.Response{data=history.Page}
// @Failure 400 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/runs [get].
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	f, err := filter.ParseRunFilter(r)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	key := cache.RunsKey(r.URL.RawQuery)
	if cached, found := h.cache.Get(key); found {
		response.OK(w, cached)
		return
	}

	engine, ok := h.engine(w)
	if !ok {
		return
	}
	page, err := engine.History(r.Context(), f)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	h.cache.Set(key, page)
	response.OK(w, page)
}

// HandleTriggerRun handles POST /api/v1/runs.
// @Summary Trigger a run
// @Description Start a run in the background. With wait=true the request
// @Description blocks until the run is published and recorded.
// @Tags runs
// @Produce json
// @Param wait query bool false "Wait for the run to finish"
// @Success 202 {object} response.Response{data=object}
// @Success 200 {object} response.Response{data=report.Summary}
// @Failure 409 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/runs [post].
func (h *Handlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w)
	if !ok {
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		entry, err := engine.Run(r.Context(), syncflow.TriggerAPI)
		if err != nil {
			response.ErrorFromType(w, err)
			return
		}
		response.OK(w, entry.Summary())
		return
	}

	runID, err := engine.Trigger(r.Context(), syncflow.TriggerAPI)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	logging.FromContext(r.Context()).Info().Str("run_id", runID).Msg("Run triggered")

	response.Accepted(w, map[string]any{
		"run_id":  runID,
		"trigger": syncflow.TriggerAPI,
	})
}

// HandleCancelRun handles POST /api/v1/runs/cancel.
// @Summary Cancel the active run
// @Description Cancels the active run unless it has begun publishing
// @Tags runs
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 409 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/runs/cancel [post].
func (h *Handlers) HandleCancelRun(w http.ResponseWriter, _ *http.Request) {
	engine, ok := h.engine(w)
	if !ok {
		return
	}
	if err := engine.Cancel(); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{"status": "cancel_requested"})
}

// HandleGetRun handles GET /api/v1/runs/{id}.
// @Summary Get a run
// @Description One run's sealed report and addenda, without merged entities
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Response{data=object}
// @Failure 404 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/runs/{id} [get].
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	rep := entry.Report
	rep.Entities = nil
	response.OK(w, map[string]any{
		"summary": entry.Summary(),
		"report":  rep,
		"addenda": entry.Addenda,
	})
}

// HandleRunEntities handles GET /api/v1/runs/{id}/entities.
// @Summary List a run's merged entities
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Param needs_review query bool false "Only entities with (or without) fields awaiting review"
// @Param source query string false "Only entities the source contributed to"
// @Param key query string false "Entity key substring"
// @Success 200 {object} response.Response{data=object}
// @Failure 404 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/runs/{id}/entities [get].
func (h *Handlers) HandleRunEntities(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	entities := filter.ParseEntityFilter(r).Apply(entry.Report.Entities)
	response.OK(w, map[string]any{
		"run_id":   entry.Report.RunID,
		"entities": entities,
		"count":    len(entities),
	})
}

// entry loads the run named by the path, through the cache.
func (h *Handlers) entry(w http.ResponseWriter, r *http.Request) (*report.Entry, bool) {
	runID := r.PathValue("id")
	key := cache.EntryKey(runID)
	if cached, found := h.cache.Get(key); found {
		return cached.(*report.Entry), true
	}

	engine, ok := h.engine(w)
	if !ok {
		return nil, false
	}
	entry, err := engine.Entry(r.Context(), runID)
	if err != nil {
		response.ErrorFromType(w, err)
		return nil, false
	}

	h.cache.Set(key, entry)
	return entry, true
}
