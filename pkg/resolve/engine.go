package resolve

import (
	"fmt"
	"slices"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// Wildcard is the binding that applies to any field without its own rule.
const Wildcard = "*"

// Engine selects a rule per field and applies it.
type Engine struct {
	priority []records.SourceID
	exact    map[string]Rule
	patterns []Binding
	wildcard *Rule
}

// NewEngine validates the bindings and returns an engine. priority is the
// global source priority list used for fields with no binding.
func NewEngine(priority []records.SourceID, bindings ...Binding) (*Engine, error) {
	if err := ByPriority(priority...).Validate(); err != nil {
		return nil, errors.WrapValidation("priority", err)
	}

	e := &Engine{
		priority: slices.Clone(priority),
		exact:    make(map[string]Rule),
	}

	for i, b := range bindings {
		if b.Field == "" {
			return nil, &errors.ValidationError{Field: fmt.Sprintf("rules[%d].field", i), Message: "field is required"}
		}
		if err := b.Rule.Validate(); err != nil {
			return nil, errors.WrapValidation(fmt.Sprintf("rules[%d]", i), err)
		}

		switch {
		case b.Field == Wildcard:
			if e.wildcard != nil {
				return nil, &errors.ValidationError{Field: fmt.Sprintf("rules[%d].field", i), Value: b.Field, Message: "wildcard bound twice"}
			}
			r := b.Rule
			e.wildcard = &r
		case isPattern(b.Field):
			e.patterns = append(e.patterns, b)
		default:
			if _, dup := e.exact[b.Field]; dup {
				return nil, &errors.ValidationError{Field: fmt.Sprintf("rules[%d].field", i), Value: b.Field, Message: "field bound twice"}
			}
			e.exact[b.Field] = b.Rule
		}
	}

	return e, nil
}

// Priority returns the global source priority list.
func (e *Engine) Priority() []records.SourceID {
	return slices.Clone(e.priority)
}

// RuleFor returns the rule for a field: an exact binding, then the longest
// matching pattern, then the wildcard, then PriorityOrder over the global
// list. It reports false when none of those exist.
func (e *Engine) RuleFor(field string) (Rule, bool) {
	if r, ok := e.exact[field]; ok {
		return r, true
	}

	var best *Binding
	for i, b := range e.patterns {
		if MatchesPattern(field, b.Field) && (best == nil || len(b.Field) > len(best.Field)) {
			best = &e.patterns[i]
		}
	}
	if best != nil {
		return best.Rule, true
	}

	if e.wildcard != nil {
		return *e.wildcard, true
	}
	if len(e.priority) > 0 {
		return ByPriority(e.priority...), true
	}
	return Rule{}, false
}

// Resolve settles one conflict. prior is the manual override for the field,
// if one exists.
func (e *Engine) Resolve(c records.FieldConflict, prior *records.Value) (records.ResolvedField, error) {
	rule, ok := e.RuleFor(c.Field)
	if !ok {
		return fail(c, "none", "no rule bound and no source priority configured")
	}
	return Apply(c, rule, prior, e.priority)
}

func isPattern(field string) bool {
	for _, r := range field {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}
