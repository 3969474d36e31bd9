package report_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

var (
	started  = utc.New(time.Date(2024, 2, 1, 7, 0, 0, 0, time.UTC))
	finished = utc.New(time.Date(2024, 2, 1, 7, 0, 3, 0, time.UTC))
)

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to report.Phase
		want     bool
	}{
		{report.Pending, report.Fetching, true},
		{report.Fetching, report.Normalizing, true},
		{report.Resolving, report.Publishing, true},
		{report.Publishing, report.Completed, true},
		{report.Pending, report.Matching, false},
		{report.Matching, report.Fetching, false},
		{report.Fetching, report.Failed, true},
		{report.Publishing, report.Failed, true},
		{report.Completed, report.Failed, false},
		{report.Failed, report.Pending, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, report.Resolving.Cancellable())
	assert.False(t, report.Publishing.Cancellable())
	assert.False(t, report.Completed.Cancellable())
}

func TestBuilderSealFailedRun(t *testing.T) {
	b := report.NewBuilder("run-1", "manual", started)
	require.NoError(t, b.Advance(report.Fetching))
	b.SetSource(report.SourceResult{SourceID: "tracker", Status: report.SourceFailed, Error: "boom"})
	b.SetSource(report.SourceResult{SourceID: "crm", Status: report.SourceFailed, Error: "boom"})
	b.AddError(errors.NewAllSourcesFailedError([]string{"crm", "tracker"}, nil))
	b.Fail("all sources failed")

	r, err := b.Seal(report.Failed, finished)
	require.NoError(t, err)

	assert.Equal(t, []report.Phase{report.Pending, report.Fetching, report.Failed}, r.Transitions)
	assert.Equal(t, report.Failed, r.Phase)
	assert.Equal(t, finished, r.FinishedAt)
	assert.Equal(t, 3*time.Second, r.Duration())
	require.Len(t, r.Sources, 2)
	assert.Equal(t, records.SourceID("crm"), r.Sources[0].SourceID)
	assert.Equal(t, report.IssueAllSources, r.Errors[0].Kind)

	_, err = b.Seal(report.Failed, finished)
	assert.ErrorIs(t, err, errors.ErrSealed)
	assert.ErrorIs(t, b.Advance(report.Normalizing), errors.ErrSealed)

	b.AddIssue(report.Issue{Message: "late"})
	assert.Len(t, r.Errors, 1, "sealed report does not change")
}

func TestBuilderRejectsSkippedPhase(t *testing.T) {
	b := report.NewBuilder("run-1", "manual", started)
	err := b.Advance(report.Resolving)
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, report.Pending, b.Phase())

	_, err = b.Seal(report.Publishing, finished)
	assert.Error(t, err)
}

func TestBuilderConcurrentEntities(t *testing.T) {
	b := report.NewBuilder("run-2", "schedule", started)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := records.MergedEntity{EntityKey: fmt.Sprintf("entity-%02d", i)}
			if i%5 == 0 {
				e.Decisions = []records.ResolvedField{
					{Field: "name", Status: records.Resolved},
					{Field: "stage", Status: records.NeedsReview},
				}
			}
			b.AddEntity(e)
			b.Update(func(c *report.Counts) { c.RecordsNormalized++ })
		}(i)
	}
	wg.Wait()

	for _, p := range []report.Phase{report.Fetching, report.Normalizing, report.Matching, report.Resolving, report.Publishing} {
		require.NoError(t, b.Advance(p))
	}
	r, err := b.Seal(report.Completed, finished)
	require.NoError(t, err)

	assert.Equal(t, 50, r.Counts.EntitiesProcessed)
	assert.Equal(t, 50, r.Counts.RecordsNormalized)
	assert.Equal(t, 20, r.Counts.ConflictsFound)
	assert.Equal(t, 10, r.Counts.ConflictsAutoResolved)
	assert.Equal(t, 10, r.Counts.ConflictsNeedingReview)
	require.Len(t, r.Entities, 50)
	assert.Equal(t, "entity-00", r.Entities[0].EntityKey)
	assert.Equal(t, "entity-49", r.Entities[49].EntityKey)
}

func TestBuilderSealOrdersIssues(t *testing.T) {
	b := report.NewBuilder("run-3", "manual", started)

	var wg sync.WaitGroup
	for i := 9; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.AddError(errors.NewUnresolvedConflictError(fmt.Sprintf("entity-%d", i), "stage", "no priority"))
		}(i)
	}
	wg.Wait()
	b.AddError(errors.NewSourceFetchError("tracker", time.Second, true, context.DeadlineExceeded))

	for _, p := range []report.Phase{report.Fetching, report.Normalizing, report.Matching, report.Resolving, report.Publishing} {
		require.NoError(t, b.Advance(p))
	}
	r, err := b.Seal(report.Completed, finished)
	require.NoError(t, err)

	require.Len(t, r.Errors, 11)
	assert.Equal(t, report.IssueSourceTimeout, r.Errors[0].Kind)
	for i, issue := range r.Errors[1:] {
		assert.Equal(t, report.IssueUnresolved, issue.Kind)
		assert.Equal(t, fmt.Sprintf("entity-%d", i), issue.EntityKey)
	}
}

func TestIssueFrom(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     report.IssueKind
		severity report.Severity
	}{
		{"normalization", errors.NewNormalizationError("crm", 3, "amount", "bad"), report.IssueNormalization, report.SeverityWarning},
		{"duplicate", errors.NewDuplicateRecordError("crm", "acme", 2), report.IssueDuplicate, report.SeverityWarning},
		{"fetch", errors.NewSourceFetchError("crm", time.Second, false, fmt.Errorf("refused")), report.IssueSourceFetch, report.SeverityWarning},
		{"timeout", errors.NewSourceFetchError("crm", time.Second, true, context.DeadlineExceeded), report.IssueSourceTimeout, report.SeverityWarning},
		{"unresolved", errors.NewUnresolvedConflictError("acme", "name", "no rule"), report.IssueUnresolved, report.SeverityWarning},
		{"publish", errors.NewPublishError("sheet.csv", fmt.Errorf("disk full")), report.IssuePublish, report.SeverityError},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), report.IssueCanceled, report.SeverityError},
		{"other", fmt.Errorf("boom"), report.IssueInternal, report.SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := report.IssueFrom(tt.err)
			assert.Equal(t, tt.kind, issue.Kind)
			assert.Equal(t, tt.severity, issue.Severity)
			assert.Equal(t, tt.err.Error(), issue.Message)
		})
	}

	issue := report.IssueFrom(errors.NewNormalizationError("crm", 0, "amount", "bad"))
	require.NotNil(t, issue.RecordIndex)
	assert.Equal(t, 0, *issue.RecordIndex)
	assert.Equal(t, "crm", issue.SourceID)
	assert.Equal(t, "amount", issue.Field)
}

func TestEntryOutcome(t *testing.T) {
	completed := report.RunReport{RunID: "r", Phase: report.Completed, StartedAt: started, FinishedAt: finished}

	tests := []struct {
		name   string
		entry  report.Entry
		kind   report.OutcomeKind
		text   string
		status string
	}{
		{
			name:   "clean",
			entry:  report.Entry{Report: completed, Addenda: []report.Addendum{{Kind: report.AddendumPublish, Rows: 5}}},
			kind:   report.OutcomeClean,
			text:   "completed cleanly",
			status: "success",
		},
		{
			name: "needs review",
			entry: func() report.Entry {
				r := completed
				r.Counts.ConflictsNeedingReview = 3
				return report.Entry{Report: r}
			}(),
			kind:   report.OutcomeWarnings,
			text:   "completed with warnings (3 fields need review)",
			status: "partial",
		},
		{
			name:   "publish failed",
			entry:  report.Entry{Report: completed, Addenda: []report.Addendum{{Kind: report.AddendumPublish, Error: "disk full"}}},
			kind:   report.OutcomeWarnings,
			text:   "completed with warnings (1 issues)",
			status: "partial",
		},
		{
			name: "failed",
			entry: func() report.Entry {
				r := completed
				r.Phase = report.Failed
				r.Reason = "all sources failed"
				return report.Entry{Report: r}
			}(),
			kind:   report.OutcomeFailed,
			text:   "failed (all sources failed)",
			status: "failed",
		},
		{
			name: "canceled during failed publish",
			entry: report.Entry{Report: completed, Addenda: []report.Addendum{{
				Kind: report.AddendumPublish, Error: "disk full", FinalPhase: report.Failed, Note: "canceled during publish",
			}}},
			kind:   report.OutcomeFailed,
			text:   "failed (canceled during publish)",
			status: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.entry.Outcome()
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, tt.text, o.String())
			assert.Equal(t, tt.status, tt.entry.Summary().Status)
		})
	}
}

func TestEntrySummary(t *testing.T) {
	entry := report.Entry{
		Report: report.RunReport{
			RunID:      "r-9",
			Trigger:    "schedule",
			Phase:      report.Completed,
			StartedAt:  started,
			FinishedAt: finished,
			Sources: []report.SourceResult{
				{SourceID: "crm", Status: report.SourceOK},
				{SourceID: "sheet", Status: report.SourcePartial},
				{SourceID: "tracker", Status: report.SourceFailed},
			},
		},
		Addenda: []report.Addendum{{Kind: report.AddendumPublish, Destination: "sheet.csv", Rows: 4}},
	}

	s := entry.Summary()
	assert.Equal(t, "r-9", s.RunID)
	assert.Equal(t, report.Completed, s.Phase)
	assert.Equal(t, 2, s.SourcesOK)
	assert.Equal(t, 1, s.SourcesFailed)
	assert.True(t, s.Published)
	assert.Equal(t, "sheet.csv", s.Destination)
	assert.Equal(t, 3*time.Second, s.Duration)
}
