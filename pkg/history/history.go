// Package history persists sealed run reports, their post-seal addenda, and
// the manual overrides that feed later runs.
//
// Two stores are provided: MemoryStore keeps a bounded ring of recent runs,
// and SQLiteStore keeps a durable log in a SQLite database.
package history

import (
	"context"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

// Recorder receives sealed reports and addenda.
type Recorder interface {
	// Record stores a sealed report. A run ID may be recorded once.
	Record(ctx context.Context, r *report.RunReport) error
	// Append attaches an addendum to a recorded run.
	Append(ctx context.Context, a report.Addendum) error
}

// Overrides stores manual override values keyed by entity and field.
type Overrides interface {
	SetOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, entityKey, field string) error
	ListOverrides(ctx context.Context) ([]Override, error)
}

// Store is the full history store.
type Store interface {
	Recorder
	Overrides

	// Get returns one run with its addenda.
	Get(ctx context.Context, runID string) (*report.Entry, error)
	// Latest returns the most recently started run.
	Latest(ctx context.Context) (*report.Entry, error)
	// Query returns run summaries, newest first.
	Query(ctx context.Context, f Filter) (Page, error)
	// Close releases the store's resources.
	Close() error
}

// Filter selects and paginates runs.
type Filter struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	// Status matches report.Outcome.Status: success, partial, or failed.
	Status  string `json:"status,omitempty"`
	Trigger string `json:"trigger,omitempty"`
}

// Normalize clamps the pagination fields.
func (f Filter) Normalize() Filter {
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit <= 0 {
		f.Limit = constants.DefaultPageSize
	}
	if f.Limit > constants.MaxPageSize {
		f.Limit = constants.MaxPageSize
	}
	return f
}

func (f Filter) matches(s report.Summary) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Trigger != "" && s.Trigger != f.Trigger {
		return false
	}
	return true
}

// Page is one page of run summaries.
type Page struct {
	Runs   []report.Summary `json:"runs" yaml:"runs"`
	Total  int              `json:"total" yaml:"total"`
	Offset int              `json:"offset" yaml:"offset"`
	Limit  int              `json:"limit" yaml:"limit"`
}

// Override is a value a reviewer chose for one entity field. Manual rules
// reuse it on later runs.
type Override struct {
	EntityKey string        `json:"entity_key" yaml:"entity_key"`
	Field     string        `json:"field" yaml:"field"`
	Value     records.Value `json:"value" yaml:"value"`
	SetAt     utc.Time      `json:"set_at" yaml:"set_at"`
	SetBy     string        `json:"set_by,omitempty" yaml:"set_by,omitempty"`
	Note      string        `json:"note,omitempty" yaml:"note,omitempty"`
}

// OverrideKey identifies one overridden field.
type OverrideKey struct {
	EntityKey string
	Field     string
}

// OverrideMap indexes overrides for lookup during resolution.
func OverrideMap(list []Override) map[OverrideKey]records.Value {
	m := make(map[OverrideKey]records.Value, len(list))
	for _, o := range list {
		m[OverrideKey{EntityKey: o.EntityKey, Field: o.Field}] = o.Value
	}
	return m
}
