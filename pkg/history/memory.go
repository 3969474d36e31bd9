package history

import (
	"context"
	"sort"
	"sync"

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/report"
)

// MemoryStore keeps the most recent runs in memory. Older runs are evicted
// once the limit is reached. Overrides are never evicted.
type MemoryStore struct {
	mu        sync.RWMutex
	limit     int
	entries   []*report.Entry // oldest first
	overrides map[OverrideKey]Override
}

// NewMemoryStore returns a store holding up to limit runs. A non-positive
// limit uses the default.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	return &MemoryStore{
		limit:     limit,
		overrides: make(map[OverrideKey]Override),
	}
}

// Record implements Recorder.
func (s *MemoryStore) Record(_ context.Context, r *report.RunReport) error {
	if r == nil || r.RunID == "" {
		return &errors.ValidationError{Field: "run_id", Message: "report has no run id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(r.RunID) != nil {
		return &errors.ValidationError{Field: "run_id", Value: r.RunID, Message: "run already recorded"}
	}

	s.entries = append(s.entries, &report.Entry{Report: *r})
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]*report.Entry(nil), s.entries[over:]...)
	}
	return nil
}

// Append implements Recorder.
func (s *MemoryStore) Append(_ context.Context, a report.Addendum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(a.RunID)
	if e == nil {
		return &errors.NotFoundError{Resource: "run", ID: a.RunID}
	}
	e.Addenda = append(e.Addenda, a)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, runID string) (*report.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.find(runID)
	if e == nil {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	return clone(e), nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (*report.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, &errors.NotFoundError{Resource: "run", ID: "latest"}
	}
	return clone(s.newest()[0]), nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filter) (Page, error) {
	f = f.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []report.Summary
	for _, e := range s.newest() {
		sum := e.Summary()
		if f.matches(sum) {
			matched = append(matched, sum)
		}
	}

	page := Page{Total: len(matched), Offset: f.Offset, Limit: f.Limit, Runs: []report.Summary{}}
	if f.Offset < len(matched) {
		end := min(f.Offset+f.Limit, len(matched))
		page.Runs = matched[f.Offset:end]
	}
	return page, nil
}

// SetOverride implements Overrides.
func (s *MemoryStore) SetOverride(_ context.Context, o Override) error {
	if err := validateOverride(o); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[OverrideKey{EntityKey: o.EntityKey, Field: o.Field}] = o
	return nil
}

// DeleteOverride implements Overrides.
func (s *MemoryStore) DeleteOverride(_ context.Context, entityKey, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := OverrideKey{EntityKey: entityKey, Field: field}
	if _, ok := s.overrides[key]; !ok {
		return &errors.NotFoundError{Resource: "override", ID: entityKey + "." + field}
	}
	delete(s.overrides, key)
	return nil
}

// ListOverrides implements Overrides. Results are ordered by entity then field.
func (s *MemoryStore) ListOverrides(_ context.Context) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Override, 0, len(s.overrides))
	for _, o := range s.overrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityKey != out[j].EntityKey {
			return out[i].EntityKey < out[j].EntityKey
		}
		return out[i].Field < out[j].Field
	})
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) find(runID string) *report.Entry {
	for _, e := range s.entries {
		if e.Report.RunID == runID {
			return e
		}
	}
	return nil
}

// newest returns entries ordered by start time, newest first.
func (s *MemoryStore) newest() []*report.Entry {
	out := make([]*report.Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Report.StartedAt.Time.After(out[j].Report.StartedAt.Time)
	})
	return out
}

func clone(e *report.Entry) *report.Entry {
	c := *e
	c.Addenda = append([]report.Addendum(nil), e.Addenda...)
	return &c
}

func validateOverride(o Override) error {
	if o.EntityKey == "" {
		return &errors.ValidationError{Field: "entity_key", Message: "entity key is required"}
	}
	if o.Field == "" {
		return &errors.ValidationError{Field: "field", Message: "field is required"}
	}
	if o.Value.IsAbsent() {
		return &errors.ValidationError{Field: "value", Message: "override value is required"}
	}
	return nil
}
