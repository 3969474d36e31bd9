package table

import (
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/internal/cmd/emoji"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

func TestRunsToTableData(t *testing.T) {
	runs := []report.Summary{
		{
			RunID:     "run-1",
			Trigger:   "manual",
			Phase:     report.Completed,
			Status:    report.StatusPartial,
			Outcome:   report.Outcome{Kind: report.OutcomeWarnings, NeedsReview: 1},
			StartedAt: utc.New(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
			Duration:  1500 * time.Millisecond,
			Counts: report.Counts{
				EntitiesProcessed:      3,
				ConflictsFound:         2,
				ConflictsNeedingReview: 1,
			},
			SourcesOK:     2,
			SourcesFailed: 1,
		},
	}

	data := RunsToTableData(runs)
	require.Len(t, data.Rows, 1)
	row := data.Rows[0]
	assert.Len(t, row, len(data.Headers))
	assert.Equal(t, "run-1", row[0])
	assert.Equal(t, emoji.Warning+" partial", row[2])
	assert.Equal(t, "2025-01-02 03:04:05", row[4])
	assert.Equal(t, "1.5s", row[5])
	assert.Equal(t, "2/3", row[9])
	assert.Equal(t, emoji.Optional, row[10])
}

func TestNarrowDropsWideColumns(t *testing.T) {
	data := Data{
		Headers:         []string{"A", "B", "C"},
		Rows:            [][]string{{"1", "2", "3"}},
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignCenter},
		WideColumns:     []int{1},
	}

	narrow := data.Narrow()
	assert.Equal(t, []string{"A", "C"}, narrow.Headers)
	assert.Equal(t, [][]string{{"1", "3"}}, narrow.Rows)
	assert.Equal(t, []Align{AlignLeft, AlignCenter}, narrow.ColumnAlignment)
	assert.Empty(t, narrow.WideColumns)

	// the original is untouched
	assert.Len(t, data.Headers, 3)
}

func TestEntitiesToTableData(t *testing.T) {
	entities := []records.MergedEntity{
		{
			EntityKey: "acme corp",
			Sources:   []records.SourceID{"crm", "tracker"},
			Fields: map[string]records.Value{
				"name":  records.String("Acme Corp"),
				"value": records.Number(1200),
			},
			Decisions: []records.ResolvedField{
				{
					EntityKey: "acme corp",
					Field:     "value",
					Value:     records.Number(1200),
					Rule:      "source_priority",
					Status:    records.Resolved,
				},
				{
					EntityKey: "acme corp",
					Field:     "stage",
					Rule:      "manual",
					Status:    records.NeedsReview,
					LosingValues: map[records.SourceID]records.Value{
						"tracker": records.Enum("Closed Won"),
						"crm":     records.Enum("Negotiation"),
					},
				},
			},
		},
	}

	data := EntitiesToTableData(entities)
	require.Len(t, data.Rows, 3)

	// fields are sorted, including the one left for review
	assert.Equal(t, []string{"acme corp", "name", "Acme Corp", "agreed", "crm, tracker"}, data.Rows[0])
	assert.Equal(t, "stage", data.Rows[1][1])
	assert.Equal(t, "crm=Negotiation, tracker=Closed Won", data.Rows[1][2])
	assert.Equal(t, emoji.Warning+" manual", data.Rows[1][3])
	assert.Equal(t, emoji.Success+" source_priority", data.Rows[2][3])

	review := ReviewToTableData(entities)
	require.Len(t, review.Rows, 1)
	assert.Equal(t, "stage", review.Rows[0][1])
}

func TestOverridesToTableData(t *testing.T) {
	data := OverridesToTableData([]history.Override{
		{EntityKey: "acme corp", Field: "stage", Value: records.Enum("Closed Won"), SetBy: "ops"},
	})
	require.Len(t, data.Rows, 1)
	assert.Equal(t, []string{"acme corp", "stage", "Closed Won", "enum", "-", "ops", "-"}, data.Rows[0])
}

func TestSourcesToTableData(t *testing.T) {
	data := SourcesToTableData([]report.SourceResult{
		{SourceID: "crm", Status: report.SourceOK, Fetched: 4, Normalized: 4},
		{SourceID: "sheet", Status: report.SourceFailed, Error: "timeout"},
	})
	require.Len(t, data.Rows, 2)
	assert.Equal(t, emoji.Success+" ok", data.Rows[0][1])
	assert.Equal(t, "-", data.Rows[0][6])
	assert.Equal(t, emoji.Error+" failed", data.Rows[1][1])
	assert.Equal(t, "timeout", data.Rows[1][6])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", FormatDuration(0))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond+300*time.Microsecond))
	assert.Equal(t, "2.35s", FormatDuration(2345*time.Millisecond))
}
