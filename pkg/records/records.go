// Package records defines the data model shared by every stage of a sync run:
// raw source snapshots, normalized records, entity groups, field conflicts,
// resolution decisions, and merged entities.
//
// All types are values. A Record or ResolvedField is never mutated after it
// is built; stages produce new values instead.
package records

import (
	"slices"
	"sort"

	"github.com/agentstation/utc"
)

// SourceID identifies a configured source.
type SourceID string

// String returns the string representation of a source ID.
func (id SourceID) String() string {
	return string(id)
}

// IsValid reports whether the ID is non-empty.
func (id SourceID) IsValid() bool {
	return id != ""
}

// SortSourceIDs sorts IDs ascending in place and returns them.
func SortSourceIDs(ids []SourceID) []SourceID {
	slices.Sort(ids)
	return ids
}

// RawRecord is one record as a source returned it, keyed by source field name.
type RawRecord map[string]any

// SourceSnapshot is one source's view at fetch time.
type SourceSnapshot struct {
	SourceID  SourceID    `json:"source_id" yaml:"source_id"`
	FetchedAt utc.Time    `json:"fetched_at" yaml:"fetched_at"`
	Records   []RawRecord `json:"records" yaml:"records"`
}

// Record is a normalized entity observation from one source.
type Record struct {
	SourceID   SourceID         `json:"source_id"`
	EntityKey  string           `json:"entity_key"`
	Fields     map[string]Value `json:"fields"`
	ObservedAt utc.Time         `json:"observed_at"`
}

// Get returns the value of a field. Absent fields report false.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r.Fields[field]
	if !ok || v.IsAbsent() {
		return Value{}, false
	}
	return v, true
}

// EntityGroup holds every record sharing one entity key, at most one per source.
type EntityGroup struct {
	EntityKey string              `json:"entity_key"`
	Records   map[SourceID]Record `json:"records"`
}

// Sources returns the contributing source IDs in ascending order.
func (g EntityGroup) Sources() []SourceID {
	ids := make([]SourceID, 0, len(g.Records))
	for id := range g.Records {
		ids = append(ids, id)
	}
	return SortSourceIDs(ids)
}

// FieldNames returns the union of non-absent fields across the group, sorted.
func (g EntityGroup) FieldNames() []string {
	seen := make(map[string]struct{})
	for _, rec := range g.Records {
		for name, v := range rec.Fields {
			if !v.IsAbsent() {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldConflict records two or more sources reporting different values for
// one field of one entity.
type FieldConflict struct {
	EntityKey string              `json:"entity_key"`
	Field     string              `json:"field"`
	Values    map[SourceID]Value  `json:"values"`
	Records   map[SourceID]Record `json:"-"`
}

// Sources returns the reporting source IDs in ascending order.
func (c FieldConflict) Sources() []SourceID {
	ids := make([]SourceID, 0, len(c.Values))
	for id := range c.Values {
		ids = append(ids, id)
	}
	return SortSourceIDs(ids)
}

// Resolution is the outcome of resolving a single field.
type Resolution string

// Field resolution outcomes.
const (
	Resolved    Resolution = "resolved"
	NeedsReview Resolution = "needs_review"
	Failed      Resolution = "failed"
)

// ResolvedField is the audit unit for one conflict decision.
type ResolvedField struct {
	EntityKey    string             `json:"entity_key"`
	Field        string             `json:"field"`
	Value        Value              `json:"value"`
	Rule         string             `json:"rule"`
	Winner       SourceID           `json:"winner,omitempty"`
	LosingValues map[SourceID]Value `json:"losing_values,omitempty"`
	Status       Resolution         `json:"status"`
	Reason       string             `json:"reason,omitempty"`
}

// MergedEntity is the single merged view of one entity.
type MergedEntity struct {
	EntityKey string           `json:"entity_key"`
	Sources   []SourceID       `json:"sources"`
	Fields    map[string]Value `json:"fields"`
	Decisions []ResolvedField  `json:"decisions,omitempty"`
}

// Get returns a merged field value.
func (e MergedEntity) Get(field string) (Value, bool) {
	v, ok := e.Fields[field]
	if !ok || v.IsAbsent() {
		return Value{}, false
	}
	return v, true
}

// PendingReview returns the decisions still awaiting a manual override.
func (e MergedEntity) PendingReview() []ResolvedField {
	var pending []ResolvedField
	for _, d := range e.Decisions {
		if d.Status == NeedsReview {
			pending = append(pending, d)
		}
	}
	return pending
}
