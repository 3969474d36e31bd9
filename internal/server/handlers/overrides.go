package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agentstation/syncflow/internal/server/events"
	"github.com/agentstation/syncflow/internal/server/response"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/logging"
)

// maxOverrideBody bounds PUT /overrides request bodies.
const maxOverrideBody = 64 << 10

// HandleListOverrides handles GET /api/v1/overrides.
// @Summary List overrides
// @Description Reviewer-chosen values that Manual rules reuse on later runs
// @Tags overrides
// @Produce json
// @Success 200 {object} response.Response{data=[]history.Override}
// @Security ApiKeyAuth
// @Router /api/v1/overrides [get].
func (h *Handlers) HandleListOverrides(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w)
	if !ok {
		return
	}
	list, err := engine.Overrides(r.Context())
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if list == nil {
		list = []history.Override{}
	}
	response.OK(w, map[string]any{
		"overrides": list,
		"count":     len(list),
	})
}

// HandleSetOverride handles PUT /api/v1/overrides.
// @Summary Set an override
// @Description Record the value a reviewer chose for one entity field
// @Tags overrides
// @Accept json
// @Produce json
// @Param override body history.Override true "Override; value is {kind, value}"
// @Success 200 {object} response.Response{data=history.Override}
// @Failure 400 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/overrides [put].
func (h *Handlers) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	var o history.Override
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOverrideBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		response.BadRequest(w, "Invalid override", err.Error())
		return
	}
	if o.EntityKey == "" || o.Field == "" {
		response.BadRequest(w, "Invalid override", "entity_key and field are required")
		return
	}
	if o.Value.IsAbsent() {
		response.BadRequest(w, "Invalid override", "value is required")
		return
	}

	engine, ok := h.engine(w)
	if !ok {
		return
	}
	if err := engine.SetOverride(r.Context(), o); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	logging.FromContext(r.Context()).Info().
		Str("entity", o.EntityKey).
		Str("field", o.Field).
		Msg("Override set")
	h.broker.Publish(events.OverrideSet, o)
	response.OK(w, o)
}

// HandleDeleteOverride handles DELETE /api/v1/overrides.
// @Summary Delete an override
// @Tags overrides
// @Produce json
// @Param entity_key query string true "Entity key"
// @Param field query string true "Canonical field name"
// @Success 200 {object} response.Response{data=object}
// @Failure 404 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/overrides [delete].
func (h *Handlers) HandleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	entityKey := r.URL.Query().Get("entity_key")
	field := r.URL.Query().Get("field")
	if entityKey == "" || field == "" {
		response.BadRequest(w, "Invalid override", "entity_key and field query parameters are required")
		return
	}

	engine, ok := h.engine(w)
	if !ok {
		return
	}
	if err := engine.DeleteOverride(r.Context(), entityKey, field); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	data := map[string]any{"entity_key": entityKey, "field": field}
	h.broker.Publish(events.OverrideDeleted, data)
	response.OK(w, data)
}
