package resolve

import (
	"fmt"
	"time"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// Apply resolves one conflict with one rule.
//
// fallback is the global source priority used when the rule carries no list
// of its own. prior is the manual override recorded for this field, if any.
// A Manual rule without an override, or a MostRecent tie under the manual
// tie-break, returns a NeedsReview decision and no error. A conflict the rule
// cannot settle returns a Failed decision and an UnresolvedConflictError.
func Apply(c records.FieldConflict, rule Rule, prior *records.Value, fallback []records.SourceID) (records.ResolvedField, error) {
	if len(rule.Priority) == 0 {
		rule.Priority = fallback
	}

	switch rule.Strategy {
	case PriorityOrder:
		return applyPriority(c, rule)
	case MostRecent:
		return applyMostRecent(c, rule)
	case Manual:
		return applyManual(c, rule, prior), nil
	case Numeric:
		return applyNumeric(c, rule)
	default:
		return fail(c, rule.String(), fmt.Sprintf("unknown strategy %q", rule.Strategy))
	}
}

func applyPriority(c records.FieldConflict, rule Rule) (records.ResolvedField, error) {
	if len(rule.Priority) == 0 {
		return fail(c, rule.String(), "no source priority configured")
	}
	winner := ordered(rule.Priority, c.Sources())[0]
	return decide(c, rule, winner, c.Values[winner], "highest priority source"), nil
}

func applyMostRecent(c records.FieldConflict, rule Rule) (records.ResolvedField, error) {
	var latest time.Time
	var tied []records.SourceID
	for _, id := range c.Sources() {
		t := observed(c.Records[id], rule.TimestampField)
		switch {
		case len(tied) == 0 || t.After(latest):
			latest = t
			tied = []records.SourceID{id}
		case t.Equal(latest):
			tied = append(tied, id)
		}
	}

	if len(tied) == 1 {
		return decide(c, rule, tied[0], c.Values[tied[0]], "most recent observation"), nil
	}

	// tied is already in lexical order
	switch rule.TieBreak {
	case TieBreakManual:
		return review(c, rule, fmt.Sprintf("%d sources share the latest timestamp", len(tied))), nil
	case TieBreakSource:
		return decide(c, rule, tied[0], c.Values[tied[0]], "timestamp tie broken by source id"), nil
	default:
		winner := ordered(rule.Priority, tied)[0]
		return decide(c, rule, winner, c.Values[winner], "timestamp tie broken by priority"), nil
	}
}

func applyManual(c records.FieldConflict, rule Rule, prior *records.Value) records.ResolvedField {
	if prior == nil || prior.IsAbsent() {
		return review(c, rule, "awaiting manual override")
	}
	return decide(c, rule, "", *prior, "manual override")
}

func applyNumeric(c records.FieldConflict, rule Rule) (records.ResolvedField, error) {
	ids := c.Sources()
	nums := make([]float64, len(ids))
	for i, id := range ids {
		f, ok := c.Values[id].Float()
		if !ok {
			return fail(c, rule.String(), fmt.Sprintf("source %s reported a non-numeric value", id))
		}
		nums[i] = f
	}

	var result float64
	var winner records.SourceID
	switch rule.Aggregation {
	case Sum, Avg:
		for _, f := range nums {
			result += f
		}
		if rule.Aggregation == Avg {
			result /= float64(len(nums))
		}
	case Max, Min:
		best := 0
		for i := 1; i < len(nums); i++ {
			if (rule.Aggregation == Max && nums[i] > nums[best]) || (rule.Aggregation == Min && nums[i] < nums[best]) {
				best = i
			}
		}
		result, winner = nums[best], ids[best]
	default:
		return fail(c, rule.String(), fmt.Sprintf("unknown aggregation %q", rule.Aggregation))
	}

	return decide(c, rule, winner, records.Number(result), fmt.Sprintf("%s of %d sources", rule.Aggregation, len(nums))), nil
}

// ordered returns the reporting sources in priority order. Sources missing
// from the priority list follow in lexical order.
func ordered(priority, reporting []records.SourceID) []records.SourceID {
	present := make(map[records.SourceID]bool, len(reporting))
	for _, id := range reporting {
		present[id] = true
	}

	out := make([]records.SourceID, 0, len(reporting))
	for _, id := range priority {
		if present[id] {
			out = append(out, id)
			delete(present, id)
		}
	}
	var rest []records.SourceID
	for _, id := range reporting {
		if present[id] {
			rest = append(rest, id)
		}
	}
	return append(out, records.SortSourceIDs(rest)...)
}

// observed returns the time MostRecent compares for one record. Records
// without the designated timestamp field sort as oldest.
func observed(rec records.Record, field string) time.Time {
	if field == "" {
		return rec.ObservedAt.Time
	}
	v, ok := rec.Get(field)
	if !ok {
		return time.Time{}
	}
	t, ok := v.Time()
	if !ok {
		return time.Time{}
	}
	return t.Time
}

func decide(c records.FieldConflict, rule Rule, winner records.SourceID, value records.Value, reason string) records.ResolvedField {
	losing := make(map[records.SourceID]records.Value)
	for id, v := range c.Values {
		if id != winner && !v.Equal(value, 0) {
			losing[id] = v
		}
	}
	return records.ResolvedField{
		EntityKey:    c.EntityKey,
		Field:        c.Field,
		Value:        value,
		Rule:         rule.String(),
		Winner:       winner,
		LosingValues: losing,
		Status:       records.Resolved,
		Reason:       reason,
	}
}

func review(c records.FieldConflict, rule Rule, reason string) records.ResolvedField {
	return records.ResolvedField{
		EntityKey:    c.EntityKey,
		Field:        c.Field,
		Rule:         rule.String(),
		LosingValues: candidates(c),
		Status:       records.NeedsReview,
		Reason:       reason,
	}
}

func fail(c records.FieldConflict, rule, reason string) (records.ResolvedField, error) {
	return records.ResolvedField{
		EntityKey:    c.EntityKey,
		Field:        c.Field,
		Rule:         rule,
		LosingValues: candidates(c),
		Status:       records.Failed,
		Reason:       reason,
	}, errors.NewUnresolvedConflictError(c.EntityKey, c.Field, reason)
}

func candidates(c records.FieldConflict) map[records.SourceID]records.Value {
	out := make(map[records.SourceID]records.Value, len(c.Values))
	for id, v := range c.Values {
		out[id] = v
	}
	return out
}
