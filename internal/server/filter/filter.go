// Package filter parses query parameters for the run history and entity
// endpoints.
package filter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

// ParseRunFilter extracts run history filter parameters from an HTTP request.
// Pagination is clamped by history.Filter.Normalize.
func ParseRunFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()

	f := history.Filter{
		Offset:  parseIntOrDefault(q.Get("offset"), 0),
		Limit:   parseIntOrDefault(q.Get("limit"), 0),
		Status:  q.Get("status"),
		Trigger: q.Get("trigger"),
	}

	switch f.Status {
	case "", report.StatusSuccess, report.StatusPartial, report.StatusFailed:
	default:
		return history.Filter{}, &errors.ValidationError{
			Field:   "status",
			Value:   f.Status,
			Message: "must be one of success, partial, failed",
		}
	}

	return f.Normalize(), nil
}

// EntityFilter selects merged entities from a run report.
type EntityFilter struct {
	// NeedsReview keeps only entities with (true) or without (false)
	// fields awaiting review. Nil keeps both.
	NeedsReview *bool
	// Source keeps entities the source contributed to.
	Source string
	// KeyContains keeps entities whose key contains the text.
	KeyContains string
}

// ParseEntityFilter extracts entity filter parameters from an HTTP request.
func ParseEntityFilter(r *http.Request) EntityFilter {
	q := r.URL.Query()

	f := EntityFilter{
		Source:      q.Get("source"),
		KeyContains: strings.ToLower(q.Get("key")),
	}
	if v := q.Get("needs_review"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.NeedsReview = &b
		}
	}
	return f
}

// Apply returns the entities that pass the filter, in input order.
func (f EntityFilter) Apply(entities []records.MergedEntity) []records.MergedEntity {
	out := make([]records.MergedEntity, 0, len(entities))
	for _, e := range entities {
		if f.NeedsReview != nil && (len(e.PendingReview()) > 0) != *f.NeedsReview {
			continue
		}
		if f.Source != "" && !contributed(e, f.Source) {
			continue
		}
		if f.KeyContains != "" && !strings.Contains(e.EntityKey, f.KeyContains) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func contributed(e records.MergedEntity, source string) bool {
	for _, id := range e.Sources {
		if id.String() == source {
			return true
		}
	}
	return false
}

// parseIntOrDefault parses an integer or returns the default.
func parseIntOrDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultVal
}
