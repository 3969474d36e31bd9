// Package detect finds field-level disagreement inside an entity group.
package detect

import (
	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/records"
)

// Detector compares the values sources report for each field.
type Detector struct {
	epsilon float64
}

// New returns a detector. Numbers within epsilon of each other agree; a
// negative epsilon selects the default.
func New(epsilon float64) *Detector {
	if epsilon < 0 {
		epsilon = constants.DefaultEpsilon
	}
	return &Detector{epsilon: epsilon}
}

// Epsilon returns the numeric tolerance.
func (d *Detector) Epsilon() float64 {
	return d.epsilon
}

// Analysis splits a group's fields into agreed values and conflicts.
type Analysis struct {
	EntityKey string
	// Agreed holds fields where every reporting source agrees, including
	// fields only one source reports.
	Agreed    map[string]records.Value
	Conflicts []records.FieldConflict
}

// Analyze examines every field reported by at least one source in the group.
// A source that does not report a field is left out of that field's check.
// Conflicts are ordered by field name.
func (d *Detector) Analyze(g records.EntityGroup) Analysis {
	a := Analysis{
		EntityKey: g.EntityKey,
		Agreed:    make(map[string]records.Value),
	}

	sources := g.Sources()
	for _, field := range g.FieldNames() {
		values := make(map[records.SourceID]records.Value)
		var reporters []records.SourceID
		for _, id := range sources {
			if v, ok := g.Records[id].Get(field); ok {
				values[id] = v
				reporters = append(reporters, id)
			}
		}

		if d.agree(reporters, values) {
			a.Agreed[field] = values[reporters[0]]
			continue
		}

		recs := make(map[records.SourceID]records.Record, len(reporters))
		for _, id := range reporters {
			recs[id] = g.Records[id]
		}
		a.Conflicts = append(a.Conflicts, records.FieldConflict{
			EntityKey: g.EntityKey,
			Field:     field,
			Values:    values,
			Records:   recs,
		})
	}

	return a
}

// Detect returns the field conflicts in a group.
func (d *Detector) Detect(g records.EntityGroup) []records.FieldConflict {
	return d.Analyze(g).Conflicts
}

// agree checks every pair so that epsilon tolerance cannot chain across
// three or more sources.
func (d *Detector) agree(ids []records.SourceID, values map[records.SourceID]records.Value) bool {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if !values[ids[i]].Equal(values[ids[j]], d.epsilon) {
				return false
			}
		}
	}
	return true
}
