// Package report defines the run report, the lock-protected builder that
// accumulates it during a run, and the post-seal addenda that record what
// happened after sealing.
package report

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// SourceStatus is a source's outcome within one run.
type SourceStatus string

// Source outcomes. Partial means the snapshot arrived but some records were skipped.
const (
	SourceOK      SourceStatus = "ok"
	SourceFailed  SourceStatus = "failed"
	SourcePartial SourceStatus = "partial"
)

// SourceResult records one source's contribution to a run.
type SourceResult struct {
	SourceID   records.SourceID `json:"source_id" yaml:"source_id"`
	Status     SourceStatus     `json:"status" yaml:"status"`
	Fetched    int              `json:"fetched" yaml:"fetched"`
	Normalized int              `json:"normalized" yaml:"normalized"`
	Skipped    int              `json:"skipped" yaml:"skipped"`
	Duration   time.Duration    `json:"duration" yaml:"duration"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Counts are the run's aggregate counters.
type Counts struct {
	EntitiesProcessed      int `json:"entities_processed" yaml:"entities_processed"`
	ConflictsFound         int `json:"conflicts_found" yaml:"conflicts_found"`
	ConflictsAutoResolved  int `json:"conflicts_auto_resolved" yaml:"conflicts_auto_resolved"`
	ConflictsNeedingReview int `json:"conflicts_needing_review" yaml:"conflicts_needing_review"`
	RecordsNormalized      int `json:"records_normalized" yaml:"records_normalized"`
	RecordsSkipped         int `json:"records_skipped" yaml:"records_skipped"`
}

// RunReport is the audit record of one run. It is immutable once sealed.
type RunReport struct {
	RunID       string                 `json:"run_id" yaml:"run_id"`
	Trigger     string                 `json:"trigger" yaml:"trigger"`
	Phase       Phase                  `json:"phase" yaml:"phase"`
	Transitions []Phase                `json:"transitions" yaml:"transitions"`
	StartedAt   utc.Time               `json:"started_at" yaml:"started_at"`
	FinishedAt  utc.Time               `json:"finished_at" yaml:"finished_at"`
	Sources     []SourceResult         `json:"sources" yaml:"sources"`
	Counts      Counts                 `json:"counts" yaml:"counts"`
	Entities    []records.MergedEntity `json:"entities,omitempty" yaml:"-"`
	Errors      []Issue                `json:"errors,omitempty" yaml:"errors,omitempty"`
	Reason      string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Duration returns how long the run took. Unsealed reports return zero.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.Time.IsZero() {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt.Time)
}

// Source returns the result for one source.
func (r *RunReport) Source(id records.SourceID) (SourceResult, bool) {
	for _, s := range r.Sources {
		if s.SourceID == id {
			return s, true
		}
	}
	return SourceResult{}, false
}

// Builder accumulates a RunReport. All methods are safe for concurrent use.
type Builder struct {
	mu       sync.Mutex
	report   RunReport
	sources  map[records.SourceID]SourceResult
	entities map[string]records.MergedEntity
	sealed   bool
}

// NewBuilder starts a report in the Pending phase.
func NewBuilder(runID, trigger string, startedAt utc.Time) *Builder {
	return &Builder{
		report: RunReport{
			RunID:       runID,
			Trigger:     trigger,
			Phase:       Pending,
			Transitions: []Phase{Pending},
			StartedAt:   startedAt,
		},
		sources:  make(map[records.SourceID]SourceResult),
		entities: make(map[string]records.MergedEntity),
	}
}

// RunID returns the run ID.
func (b *Builder) RunID() string {
	return b.report.RunID
}

// Phase returns the current phase.
func (b *Builder) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.report.Phase
}

// Advance moves the report to the next phase.
func (b *Builder) Advance(next Phase) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return errors.ErrSealed
	}
	return b.transition(next)
}

func (b *Builder) transition(next Phase) error {
	if !b.report.Phase.CanTransition(next) {
		return &errors.ValidationError{
			Field:   "phase",
			Value:   next,
			Message: fmt.Sprintf("cannot move from %s to %s", b.report.Phase, next),
		}
	}
	b.report.Phase = next
	b.report.Transitions = append(b.report.Transitions, next)
	return nil
}

// SetSource records a source's result, replacing any earlier one.
func (b *Builder) SetSource(res SourceResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.sources[res.SourceID] = res
}

// Source returns the result recorded for a source so far.
func (b *Builder) Source(id records.SourceID) (SourceResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.sources[id]
	return res, ok
}

// AddIssue attaches an issue.
func (b *Builder) AddIssue(issue Issue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.report.Errors = append(b.report.Errors, issue)
}

// AddError converts err to an Issue and attaches it.
func (b *Builder) AddError(err error) {
	if err == nil {
		return
	}
	b.AddIssue(IssueFrom(err))
}

// Update applies fn to the counters under the builder's lock.
func (b *Builder) Update(fn func(*Counts)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	fn(&b.report.Counts)
}

// AddEntity records one merged entity and folds its decisions into the counters.
func (b *Builder) AddEntity(e records.MergedEntity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.entities[e.EntityKey] = e
	b.report.Counts.EntitiesProcessed++
	for _, d := range e.Decisions {
		b.report.Counts.ConflictsFound++
		if d.Status == records.Resolved {
			b.report.Counts.ConflictsAutoResolved++
		} else {
			b.report.Counts.ConflictsNeedingReview++
		}
	}
}

// Entities returns the merged entities recorded so far, ordered by key.
func (b *Builder) Entities() []records.MergedEntity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedEntities()
}

func (b *Builder) sortedEntities() []records.MergedEntity {
	keys := make([]string, 0, len(b.entities))
	for k := range b.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]records.MergedEntity, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.entities[k])
	}
	return out
}

// Fail records the reason a run failed. The phase moves at Seal.
func (b *Builder) Fail(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.report.Reason = reason
}

// Seal moves the report to its terminal phase, stamps the finish time, and
// returns the immutable report. final must be Completed or Failed.
func (b *Builder) Seal(final Phase, finishedAt utc.Time) (*RunReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return nil, errors.ErrSealed
	}
	if !final.Terminal() {
		return nil, &errors.ValidationError{Field: "phase", Value: final, Message: "seal requires a terminal phase"}
	}
	if err := b.transition(final); err != nil {
		return nil, err
	}

	b.sealed = true
	b.report.FinishedAt = finishedAt

	ids := make([]records.SourceID, 0, len(b.sources))
	for id := range b.sources {
		ids = append(ids, id)
	}
	for _, id := range records.SortSourceIDs(ids) {
		b.report.Sources = append(b.report.Sources, b.sources[id])
	}
	b.report.Entities = b.sortedEntities()

	sealed := b.report
	sealed.Transitions = append([]Phase(nil), b.report.Transitions...)
	sealed.Errors = append([]Issue(nil), b.report.Errors...)
	sortIssues(sealed.Errors)
	return &sealed, nil
}
