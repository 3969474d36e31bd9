package syncflow

import (
	"context"
	"fmt"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/matcher"
	"github.com/agentstation/syncflow/pkg/report"
)

// Compile-time interface checks to ensure proper implementation.
var (
	_ Monitor  = (*client)(nil)
	_ Reviewer = (*client)(nil)
)

// Monitor reports engine status and run history.
type Monitor interface {
	// Status returns whether a run is active and the last run's outcome.
	Status() Status

	// History returns run summaries, newest first.
	History(ctx context.Context, f history.Filter) (history.Page, error)

	// Entry returns one run's sealed report and its addenda.
	Entry(ctx context.Context, runID string) (*report.Entry, error)
}

// Reviewer manages the manual overrides that Manual rules reuse.
type Reviewer interface {
	SetOverride(ctx context.Context, o history.Override) error
	DeleteOverride(ctx context.Context, entityKey, field string) error
	Overrides(ctx context.Context) ([]history.Override, error)
}

// State is the engine's activity.
type State string

// Engine states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// ActiveRun describes the run in progress.
type ActiveRun struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Trigger   string       `json:"trigger" yaml:"trigger"`
	Phase     report.Phase `json:"phase" yaml:"phase"`
	StartedAt utc.Time     `json:"started_at" yaml:"started_at"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State  State           `json:"state" yaml:"state"`
	Active *ActiveRun      `json:"active,omitempty" yaml:"active,omitempty"`
	Last   *report.Summary `json:"last,omitempty" yaml:"last,omitempty"`
}

// String renders the status for display, for example
// "running (resolving)" or "idle, last run completed cleanly".
func (s Status) String() string {
	var out string
	if s.State == StateRunning && s.Active != nil {
		out = fmt.Sprintf("running (%s)", s.Active.Phase)
	} else {
		out = string(StateIdle)
	}
	if s.Last != nil {
		out += ", last run " + s.Last.Outcome.String()
	}
	return out
}

// Status implements Monitor.
func (c *client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: StateIdle}
	if r := c.active; r != nil {
		st.State = StateRunning
		st.Active = &ActiveRun{
			RunID:     r.id,
			Trigger:   r.trigger,
			Phase:     r.phase,
			StartedAt: r.startedAt,
		}
	}
	if c.last != nil {
		sum := c.last.Summary()
		st.Last = &sum
	}
	return st
}

// History implements Monitor.
func (c *client) History(ctx context.Context, f history.Filter) (history.Page, error) {
	return c.history.Query(ctx, f)
}

// Entry implements Monitor.
func (c *client) Entry(ctx context.Context, runID string) (*report.Entry, error) {
	if runID == "" {
		return nil, &errors.ValidationError{Field: "run_id", Message: "run id is required"}
	}
	return c.history.Get(ctx, runID)
}

// SetOverride implements Reviewer. The entity key is canonicalized the same
// way the matcher does, so "  ACME Corp" and "acme corp" name one entity.
func (c *client) SetOverride(ctx context.Context, o history.Override) error {
	o.EntityKey = matcher.CanonicalKey(o.EntityKey)
	if o.SetAt.Time.IsZero() {
		o.SetAt = c.options.now()
	}
	return c.history.SetOverride(ctx, o)
}

// DeleteOverride implements Reviewer.
func (c *client) DeleteOverride(ctx context.Context, entityKey, field string) error {
	return c.history.DeleteOverride(ctx, matcher.CanonicalKey(entityKey), field)
}

// Overrides implements Reviewer.
func (c *client) Overrides(ctx context.Context) ([]history.Override, error) {
	return c.history.ListOverrides(ctx)
}
