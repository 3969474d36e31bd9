package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/detect"
	"github.com/agentstation/syncflow/pkg/records"
)

func group(recs map[records.SourceID]map[string]records.Value) records.EntityGroup {
	g := records.EntityGroup{EntityKey: "acme corp", Records: make(map[records.SourceID]records.Record)}
	for id, fields := range recs {
		g.Records[id] = records.Record{SourceID: id, EntityKey: "acme corp", Fields: fields}
	}
	return g
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		group     records.EntityGroup
		epsilon   float64
		conflicts []string
		agreed    map[string]records.Value
	}{
		{
			name: "all agree",
			group: group(map[records.SourceID]map[string]records.Value{
				"crm":   {"name": records.String("Acme Inc")},
				"sheet": {"name": records.String("Acme Inc")},
			}),
			agreed: map[string]records.Value{"name": records.String("Acme Inc")},
		},
		{
			name: "string disagreement",
			group: group(map[records.SourceID]map[string]records.Value{
				"crm":   {"name": records.String("Acme Inc")},
				"sheet": {"name": records.String("ACME")},
			}),
			conflicts: []string{"name"},
			agreed:    map[string]records.Value{},
		},
		{
			name: "absence is not disagreement",
			group: group(map[records.SourceID]map[string]records.Value{
				"crm":     {"amount": records.Number(100), "status": {}},
				"tracker": {"status": records.Enum("Done")},
				"sheet":   {"amount": records.Number(100)},
			}),
			agreed: map[string]records.Value{
				"amount": records.Number(100),
				"status": records.Enum("Done"),
			},
		},
		{
			name: "numbers within epsilon",
			group: group(map[records.SourceID]map[string]records.Value{
				"crm":   {"amount": records.Number(100.001)},
				"sheet": {"amount": records.Number(100.002)},
			}),
			epsilon: 0.01,
			agreed:  map[string]records.Value{"amount": records.Number(100.001)},
		},
		{
			name: "epsilon does not chain",
			group: group(map[records.SourceID]map[string]records.Value{
				"a": {"amount": records.Number(0)},
				"b": {"amount": records.Number(0.6)},
				"c": {"amount": records.Number(1.2)},
			}),
			epsilon:   1,
			conflicts: []string{"amount"},
			agreed:    map[string]records.Value{},
		},
		{
			name: "conflicts ordered by field",
			group: group(map[records.SourceID]map[string]records.Value{
				"crm":   {"stage": records.Enum("Proposal"), "amount": records.Number(24000)},
				"sheet": {"stage": records.Enum("Negotiation"), "amount": records.Number(25000)},
			}),
			conflicts: []string{"amount", "stage"},
			agreed:    map[string]records.Value{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := detect.New(tt.epsilon).Analyze(tt.group)

			var fields []string
			for _, c := range a.Conflicts {
				fields = append(fields, c.Field)
				assert.GreaterOrEqual(t, len(c.Values), 2)
				assert.Len(t, c.Records, len(c.Values))
			}
			assert.Equal(t, tt.conflicts, fields)
			assert.Len(t, a.Agreed, len(tt.agreed))
			for field, want := range tt.agreed {
				assert.True(t, want.Equal(a.Agreed[field], 0), field)
			}
		})
	}
}

func TestDetectExcludesMissingSource(t *testing.T) {
	g := group(map[records.SourceID]map[string]records.Value{
		"crm":   {"name": records.String("Acme Inc")},
		"sheet": {"name": records.String("ACME")},
	})

	conflicts := detect.New(0).Detect(g)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []records.SourceID{"crm", "sheet"}, conflicts[0].Sources())
	_, hasTracker := conflicts[0].Values["tracker"]
	assert.False(t, hasTracker)
}
