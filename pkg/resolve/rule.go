// Package resolve settles field conflicts with configured rules.
//
// A Rule is a closed set of strategies dispatched by a single Apply. Rules
// bind to canonical field names; bindings may use a trailing "*" or a glob
// pattern, and the binding "*" is the wildcard fallback.
package resolve

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// Strategy names a resolution strategy.
type Strategy string

// Supported strategies.
const (
	PriorityOrder Strategy = "priority_order"
	MostRecent    Strategy = "most_recent"
	Manual        Strategy = "manual"
	Numeric       Strategy = "numeric"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case PriorityOrder, MostRecent, Manual, Numeric:
		return true
	}
	return false
}

// Aggregation is the Numeric strategy's reducer.
type Aggregation string

// Supported aggregations.
const (
	Sum Aggregation = "sum"
	Max Aggregation = "max"
	Min Aggregation = "min"
	Avg Aggregation = "avg"
)

// IsValid reports whether a is a known aggregation.
func (a Aggregation) IsValid() bool {
	switch a {
	case Sum, Max, Min, Avg:
		return true
	}
	return false
}

// TieBreak decides MostRecent ties on equal timestamps.
type TieBreak string

// Supported tie-breaks. The zero value behaves as TieBreakPriority.
const (
	TieBreakPriority TieBreak = "priority"
	TieBreakSource   TieBreak = "source"
	TieBreakManual   TieBreak = "manual"
)

// IsValid reports whether t is a known tie-break. Empty is valid.
func (t TieBreak) IsValid() bool {
	switch t {
	case "", TieBreakPriority, TieBreakSource, TieBreakManual:
		return true
	}
	return false
}

// Rule is a resolution policy for one field.
type Rule struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	// Priority is the PriorityOrder source list, and the MostRecent
	// tie-break order. Empty means the engine's global priority list.
	Priority []records.SourceID `json:"priority,omitempty" yaml:"priority,omitempty"`
	// TimestampField is the canonical field MostRecent compares. Empty
	// means each record's observation time.
	TimestampField string      `json:"timestamp_field,omitempty" yaml:"timestamp_field,omitempty"`
	TieBreak       TieBreak    `json:"tie_break,omitempty" yaml:"tie_break,omitempty"`
	Aggregation    Aggregation `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

// ByPriority returns a PriorityOrder rule.
func ByPriority(order ...records.SourceID) Rule {
	return Rule{Strategy: PriorityOrder, Priority: order}
}

// ByMostRecent returns a MostRecent rule comparing the given timestamp
// field, or observation time when field is empty.
func ByMostRecent(field string) Rule {
	return Rule{Strategy: MostRecent, TimestampField: field}
}

// ByManual returns a Manual rule.
func ByManual() Rule {
	return Rule{Strategy: Manual}
}

// ByNumeric returns a Numeric rule.
func ByNumeric(agg Aggregation) Rule {
	return Rule{Strategy: Numeric, Aggregation: agg}
}

// WithTieBreak returns a copy of r using the given tie-break.
func (r Rule) WithTieBreak(t TieBreak) Rule {
	r.TieBreak = t
	return r
}

// String renders the rule as recorded in decisions,
// e.g. "priority_order[crm,sheet]" or "numeric[max]".
func (r Rule) String() string {
	switch r.Strategy {
	case PriorityOrder:
		return fmt.Sprintf("%s[%s]", r.Strategy, joinIDs(r.Priority))
	case MostRecent:
		field := r.TimestampField
		if field == "" {
			field = "observed_at"
		}
		return fmt.Sprintf("%s[%s]", r.Strategy, field)
	case Numeric:
		return fmt.Sprintf("%s[%s]", r.Strategy, r.Aggregation)
	default:
		return string(r.Strategy)
	}
}

// Validate checks that the rule's parameters fit its strategy.
func (r Rule) Validate() error {
	if !r.Strategy.IsValid() {
		return &errors.ValidationError{
			Field:   "strategy",
			Value:   r.Strategy,
			Message: "must be one of priority_order, most_recent, manual, numeric",
		}
	}
	if r.Strategy == Numeric && !r.Aggregation.IsValid() {
		return &errors.ValidationError{
			Field:   "aggregation",
			Value:   r.Aggregation,
			Message: "must be one of sum, max, min, avg",
		}
	}
	if !r.TieBreak.IsValid() {
		return &errors.ValidationError{
			Field:   "tie_break",
			Value:   r.TieBreak,
			Message: "must be one of priority, source, manual",
		}
	}
	seen := make(map[records.SourceID]struct{}, len(r.Priority))
	for _, id := range r.Priority {
		if !id.IsValid() {
			return &errors.ValidationError{Field: "priority", Message: "source id cannot be empty"}
		}
		if _, dup := seen[id]; dup {
			return &errors.ValidationError{Field: "priority", Value: id, Message: "source listed twice"}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Binding attaches a rule to a field name or pattern.
type Binding struct {
	Field string `json:"field" yaml:"field"`
	Rule  Rule   `json:"rule" yaml:"rule"`
}

// MatchesPattern reports whether field matches pattern. Patterns may be an
// exact name, a prefix ending in "*", or a filepath.Match glob.
func MatchesPattern(field, pattern string) bool {
	if field == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(field, strings.TrimSuffix(pattern, "*"))
	}
	matched, err := filepath.Match(pattern, field)
	return err == nil && matched
}

func joinIDs(ids []records.SourceID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
