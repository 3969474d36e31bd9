package syncflow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/normalize"
	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
	"github.com/agentstation/syncflow/pkg/resolve"
	"github.com/agentstation/syncflow/pkg/sources"
)

func schema() normalize.Schema {
	return normalize.Schema{
		EntityKey:  "account",
		ObservedAt: "updated",
		Fields: []normalize.FieldMapping{
			{From: "name", To: "name", Coerce: normalize.CoerceString},
			{From: "amount", To: "amount", Coerce: normalize.CoerceCurrency},
			{From: "stage", To: "stage", Coerce: normalize.CoerceEnum},
			{From: "owner", To: "owner", Coerce: normalize.CoerceString},
		},
	}
}

func static(id records.SourceID, recs ...records.RawRecord) sources.Source {
	return sources.Func(id, func(context.Context) ([]records.RawRecord, error) {
		return recs, nil
	})
}

func failing(id records.SourceID) sources.Source {
	return sources.Func(id, func(context.Context) ([]records.RawRecord, error) {
		return nil, fmt.Errorf("connection refused")
	})
}

// blocking waits for release or for its context to end.
func blocking(id records.SourceID, release <-chan struct{}, recs ...records.RawRecord) sources.Source {
	return sources.Func(id, func(ctx context.Context) ([]records.RawRecord, error) {
		select {
		case <-release:
			return recs, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func crmRecords() []records.RawRecord {
	return []records.RawRecord{
		{"account": "Acme Corp", "name": "Acme Inc", "amount": "$100", "stage": "Negotiation", "owner": "sarah", "updated": "2024-02-01T06:00:00Z"},
		{"account": "Globex", "name": "Globex LLC", "amount": "$75,000", "updated": "2024-02-01T06:00:00Z"},
	}
}

func sheetRecords() []records.RawRecord {
	return []records.RawRecord{
		{"account": " acme  CORP ", "name": "ACME", "amount": "150", "stage": "Closed Won", "owner": "sarah", "updated": "2024-02-01T07:00:00Z"},
		{"account": "Initech", "name": "Initech", "amount": "12000", "updated": "2024-02-01T07:00:00Z"},
	}
}

type engine struct {
	client    syncflow.Client
	publisher *publish.Memory
	store     history.Store
}

func newEngine(t *testing.T, srcs []sources.Source, opts ...syncflow.Option) engine {
	t.Helper()
	logging.DisableLoggingForTest(t)

	pub := publish.NewMemory("sheet")
	store := history.NewMemoryStore(0)

	schemas := make(map[records.SourceID]normalize.Schema)
	for _, src := range srcs {
		schemas[src.ID()] = schema()
	}

	base := []syncflow.Option{
		syncflow.WithSources(srcs...),
		syncflow.WithSchemas(schemas),
		syncflow.WithPublisher(pub),
		syncflow.WithHistory(store),
		syncflow.WithSourceTimeout(2 * time.Second),
	}
	client, err := syncflow.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return engine{client: client, publisher: pub, store: store}
}

// completions delivers finished runs.
func completions(c syncflow.Client) <-chan *report.Entry {
	ch := make(chan *report.Entry, 8)
	c.OnRunCompleted(func(e *report.Entry) { ch <- e })
	return ch
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func decision(t *testing.T, e records.MergedEntity, field string) records.ResolvedField {
	t.Helper()
	for _, d := range e.Decisions {
		if d.Field == field {
			return d
		}
	}
	t.Fatalf("no decision for %s.%s", e.EntityKey, field)
	return records.ResolvedField{}
}

func TestRunMergesAcrossSources(t *testing.T) {
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), static("sheet", sheetRecords()...)},
		syncflow.WithPriority("crm", "sheet"),
		syncflow.WithRules(
			resolve.Binding{Field: "amount", Rule: resolve.ByMostRecent("")},
			resolve.Binding{Field: "stage", Rule: resolve.ByManual()},
		),
	)

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	r := entry.Report
	assert.Equal(t, report.Completed, r.Phase)
	assert.Equal(t, []report.Phase{
		report.Pending, report.Fetching, report.Normalizing, report.Matching,
		report.Resolving, report.Publishing, report.Completed,
	}, r.Transitions)
	assert.False(t, r.FinishedAt.Time.IsZero())

	require.Len(t, r.Entities, 3)
	assert.Equal(t, "acme corp", r.Entities[0].EntityKey)
	assert.Equal(t, "globex", r.Entities[1].EntityKey)
	assert.Equal(t, "initech", r.Entities[2].EntityKey)

	acme := r.Entities[0]
	assert.Equal(t, []records.SourceID{"crm", "sheet"}, acme.Sources)

	// agreed fields pass through untouched
	owner, ok := acme.Get("owner")
	require.True(t, ok)
	assert.Equal(t, records.String("sarah"), owner)

	name := decision(t, acme, "name")
	assert.Equal(t, records.Resolved, name.Status)
	assert.Equal(t, records.String("Acme Inc"), name.Value)
	assert.Equal(t, map[records.SourceID]records.Value{"sheet": records.String("ACME")}, name.LosingValues)

	amount := decision(t, acme, "amount")
	assert.Equal(t, records.Number(150), amount.Value)
	assert.Equal(t, records.SourceID("sheet"), amount.Winner)

	stage := decision(t, acme, "stage")
	assert.Equal(t, records.NeedsReview, stage.Status)
	_, ok = acme.Get("stage")
	assert.False(t, ok, "fields awaiting review stay out of the merged view")

	assert.Equal(t, 3, r.Counts.EntitiesProcessed)
	assert.Equal(t, 3, r.Counts.ConflictsFound)
	assert.Equal(t, 2, r.Counts.ConflictsAutoResolved)
	assert.Equal(t, 1, r.Counts.ConflictsNeedingReview)
	assert.Equal(t, 4, r.Counts.RecordsNormalized)

	assert.Equal(t, "completed with warnings (1 fields need review)", entry.Outcome().String())

	require.Len(t, entry.Addenda, 1)
	assert.Equal(t, 3, entry.Addenda[0].Rows)
	assert.Len(t, e.publisher.Last(), 3)

	stored, err := e.client.Entry(context.Background(), r.RunID)
	require.NoError(t, err)
	require.Len(t, stored.Addenda, 1)
	assert.Equal(t, "sheet", stored.Addenda[0].Destination)
}

func TestRunIsDeterministic(t *testing.T) {
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), static("sheet", sheetRecords()...)},
		syncflow.WithPriority("crm", "sheet"),
		syncflow.WithParallelism(4),
	)

	first, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)
	second, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	a, err := json.Marshal(first.Report.Entities)
	require.NoError(t, err)
	b, err := json.Marshal(second.Report.Entities)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Report.Counts, second.Report.Counts)
	assert.NotEqual(t, first.Report.RunID, second.Report.RunID)
}

func TestRunManualOverrideReused(t *testing.T) {
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), static("sheet", sheetRecords()...)},
		syncflow.WithPriority("crm", "sheet"),
		syncflow.WithRules(resolve.Binding{Field: "stage", Rule: resolve.ByManual()}),
	)
	ctx := context.Background()

	entry, err := e.client.Run(ctx, syncflow.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Report.Counts.ConflictsNeedingReview)
	assert.Equal(t, report.Completed, entry.Report.Phase)

	require.NoError(t, e.client.SetOverride(ctx, history.Override{
		EntityKey: "ACME Corp",
		Field:     "stage",
		Value:     records.Enum("Negotiation"),
		SetBy:     "sarah",
	}))

	entry, err = e.client.Run(ctx, syncflow.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Report.Counts.ConflictsNeedingReview)
	assert.Equal(t, report.OutcomeClean, entry.Outcome().Kind)

	stage, ok := entry.Report.Entities[0].Get("stage")
	require.True(t, ok)
	assert.Equal(t, records.Enum("Negotiation"), stage)

	list, err := e.client.Overrides(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "acme corp", list[0].EntityKey)
	assert.False(t, list[0].SetAt.Time.IsZero())

	require.NoError(t, e.client.DeleteOverride(ctx, " Acme corp", "stage"))
}

func TestRunAllSourcesFail(t *testing.T) {
	e := newEngine(t, []sources.Source{failing("crm"), failing("sheet")}, syncflow.WithPriority("crm", "sheet"))

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	r := entry.Report
	assert.Equal(t, []report.Phase{report.Pending, report.Fetching, report.Failed}, r.Transitions)
	assert.Equal(t, report.Failed, r.Phase)
	assert.False(t, r.FinishedAt.Time.IsZero())
	assert.Zero(t, e.publisher.Calls())
	assert.Empty(t, entry.Addenda)

	assert.Equal(t, "failed (all sources failed)", entry.Outcome().String())
	require.Len(t, r.Sources, 2)
	for _, src := range r.Sources {
		assert.Equal(t, report.SourceFailed, src.Status)
	}

	var kinds []report.IssueKind
	for _, issue := range r.Errors {
		kinds = append(kinds, issue.Kind)
	}
	assert.Contains(t, kinds, report.IssueAllSources)
	assert.Contains(t, kinds, report.IssueSourceFetch)

	page, err := e.client.History(context.Background(), history.Filter{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestRunPartialSourceFailure(t *testing.T) {
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), failing("tracker"), static("sheet", sheetRecords()...)},
		syncflow.WithPriority("crm", "tracker", "sheet"),
	)

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	r := entry.Report
	assert.Equal(t, report.Completed, r.Phase)
	tracker, ok := r.Source("tracker")
	require.True(t, ok)
	assert.Equal(t, report.SourceFailed, tracker.Status)

	for _, ent := range r.Entities {
		assert.NotContains(t, ent.Sources, records.SourceID("tracker"))
		for _, d := range ent.Decisions {
			assert.NotContains(t, d.LosingValues, records.SourceID("tracker"))
			assert.NotEqual(t, records.SourceID("tracker"), d.Winner)
		}
	}

	var fetchIssues int
	for _, issue := range r.Errors {
		if issue.Kind == report.IssueSourceFetch {
			fetchIssues++
			assert.Equal(t, "tracker", issue.SourceID)
		}
	}
	assert.Equal(t, 1, fetchIssues, "a failed source is recorded once")
}

func TestRunSourceTimeout(t *testing.T) {
	never := make(chan struct{})
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), blocking("sheet", never)},
		syncflow.WithPriority("crm", "sheet"),
		syncflow.WithSourceTimeout(50*time.Millisecond),
	)

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, report.Completed, entry.Report.Phase)

	sheet, ok := entry.Report.Source("sheet")
	require.True(t, ok)
	assert.Equal(t, report.SourceFailed, sheet.Status)

	var timedOut bool
	for _, issue := range entry.Report.Errors {
		if issue.Kind == report.IssueSourceTimeout {
			timedOut = true
		}
	}
	assert.True(t, timedOut)
}

func TestRunSkipsMalformedRecords(t *testing.T) {
	crm := append(crmRecords(), records.RawRecord{"name": "No Key Ltd"}, records.RawRecord{"account": "Bad", "amount": "lots"})
	e := newEngine(t, []sources.Source{static("crm", crm...)}, syncflow.WithPriority("crm"))

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	r := entry.Report
	assert.Equal(t, report.Completed, r.Phase)
	assert.Equal(t, 2, r.Counts.RecordsNormalized)
	assert.Equal(t, 2, r.Counts.RecordsSkipped)

	crmResult, _ := r.Source("crm")
	assert.Equal(t, report.SourcePartial, crmResult.Status)
	assert.Equal(t, 4, crmResult.Fetched)

	require.Len(t, r.Errors, 2)
	assert.Equal(t, report.IssueNormalization, r.Errors[0].Kind)
	require.NotNil(t, r.Errors[0].RecordIndex)
	assert.Equal(t, 2, *r.Errors[0].RecordIndex)
}

func TestRunUnresolvedWithoutPriority(t *testing.T) {
	e := newEngine(t, []sources.Source{static("crm", crmRecords()...), static("sheet", sheetRecords()...)})

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, report.Completed, entry.Report.Phase)

	acme := entry.Report.Entities[0]
	name := decision(t, acme, "name")
	assert.Equal(t, records.Failed, name.Status)

	var unresolved int
	for _, issue := range entry.Report.Errors {
		if issue.Kind == report.IssueUnresolved {
			unresolved++
			assert.Equal(t, "acme corp", issue.EntityKey)
		}
	}
	assert.Equal(t, 3, unresolved)

	// entities without conflicts are unaffected
	globex := entry.Report.Entities[1]
	v, ok := globex.Get("amount")
	require.True(t, ok)
	assert.Equal(t, records.Number(75000), v)
}

func TestRunRejectsConcurrentTrigger(t *testing.T) {
	release := make(chan struct{})
	e := newEngine(t,
		[]sources.Source{blocking("crm", release, crmRecords()...)},
		syncflow.WithPriority("crm"),
	)
	done := completions(e.client)

	id, err := e.client.Trigger(context.Background(), syncflow.TriggerAPI)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = e.client.Run(context.Background(), syncflow.TriggerSchedule)
	assert.ErrorIs(t, err, errors.ErrRunInProgress)
	_, err = e.client.Trigger(context.Background(), syncflow.TriggerManual)
	assert.ErrorIs(t, err, errors.ErrRunInProgress)

	st := e.client.Status()
	assert.Equal(t, syncflow.StateRunning, st.State)
	require.NotNil(t, st.Active)
	assert.Equal(t, id, st.Active.RunID)

	close(release)
	entry := wait(t, done)
	assert.Equal(t, id, entry.Report.RunID)
	assert.Equal(t, syncflow.TriggerAPI, entry.Report.Trigger)

	st = e.client.Status()
	assert.Equal(t, syncflow.StateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, id, st.Last.RunID)
	assert.Equal(t, "idle, last run completed cleanly", st.String())
}

func TestCancelBeforePublishing(t *testing.T) {
	never := make(chan struct{})
	e := newEngine(t, []sources.Source{blocking("crm", never)}, syncflow.WithPriority("crm"))

	fetching := make(chan struct{}, 1)
	e.client.OnPhaseChanged(func(_ string, phase report.Phase) {
		if phase == report.Fetching {
			fetching <- struct{}{}
		}
	})
	done := completions(e.client)

	assert.ErrorIs(t, e.client.Cancel(), errors.ErrNotRunning)

	_, err := e.client.Trigger(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)
	wait(t, fetching)

	require.NoError(t, e.client.Cancel())
	entry := wait(t, done)

	assert.Equal(t, report.Failed, entry.Report.Phase)
	assert.Equal(t, "canceled", entry.Report.Reason)
	assert.Zero(t, e.publisher.Calls())
	assert.Equal(t, "failed (canceled)", entry.Outcome().String())
}

// gatedPublisher blocks until released, then fails.
type gatedPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedPublisher) Destination() string { return "gated" }

func (p *gatedPublisher) Publish(ctx context.Context, _ []records.MergedEntity) (publish.Result, error) {
	p.once.Do(func() { close(p.started) })
	<-p.release
	return publish.Result{}, fmt.Errorf("sheet locked")
}

func TestCancelDuringPublishing(t *testing.T) {
	pub := &gatedPublisher{started: make(chan struct{}), release: make(chan struct{})}
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...)},
		syncflow.WithPriority("crm"),
		syncflow.WithPublisher(pub),
	)
	done := completions(e.client)

	_, err := e.client.Trigger(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)
	wait(t, pub.started)

	assert.Equal(t, report.Publishing, e.client.Status().Active.Phase)
	assert.ErrorIs(t, e.client.Cancel(), errors.ErrCancelRejected)

	close(pub.release)
	entry := wait(t, done)

	assert.Equal(t, report.Completed, entry.Report.Phase, "the sealed report is not rewritten")
	assert.Equal(t, report.Failed, entry.FinalPhase())
	assert.Equal(t, "failed (canceled during publish)", entry.Outcome().String())
}

func TestPublishFailureIsRecordedAsAddendum(t *testing.T) {
	e := newEngine(t, []sources.Source{static("crm", crmRecords()...)}, syncflow.WithPriority("crm"))
	e.publisher.FailWith(fmt.Errorf("quota exceeded"))

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, report.Completed, entry.Report.Phase)
	assert.Empty(t, entry.Report.Errors, "the sealed report predates the publish")
	require.Len(t, entry.Addenda, 1)
	assert.Contains(t, entry.Addenda[0].Error, "quota exceeded")
	assert.Equal(t, report.OutcomeWarnings, entry.Outcome().Kind)

	stored, err := e.store.Get(context.Background(), entry.Report.RunID)
	require.NoError(t, err)
	require.Len(t, stored.Addenda, 1)
	assert.False(t, stored.Summary().Published)
}

func TestNewValidation(t *testing.T) {
	logging.DisableLoggingForTest(t)

	_, err := syncflow.New(syncflow.WithSources(static("crm")))
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr, "every source needs a schema")

	_, err = syncflow.New(syncflow.WithRules(resolve.Binding{Field: "amount", Rule: resolve.ByNumeric("median")}))
	assert.Error(t, err)

	_, err = syncflow.New(syncflow.WithParallelism(0))
	assert.True(t, errors.IsValidationError(err))
}

func TestAutoRuns(t *testing.T) {
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...)},
		syncflow.WithPriority("crm"),
		syncflow.WithAutoRunInterval(20*time.Millisecond),
	)
	done := completions(e.client)

	require.NoError(t, e.client.AutoRunsOn())
	entry := wait(t, done)
	assert.Equal(t, syncflow.TriggerSchedule, entry.Report.Trigger)
	require.NoError(t, e.client.AutoRunsOff())

	bad := newEngine(t, nil, syncflow.WithAutoRunInterval(0))
	assert.True(t, errors.IsValidationError(bad.client.AutoRunsOn()))
}

func TestClosedEngineRejectsRuns(t *testing.T) {
	e := newEngine(t, []sources.Source{static("crm", crmRecords()...)}, syncflow.WithPriority("crm"))
	require.NoError(t, e.client.Close())

	_, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestRunPerSourceTimeout(t *testing.T) {
	release := make(chan struct{})
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), blocking("sheet", release, sheetRecords()...)},
		syncflow.WithPriority("crm", "sheet"),
		syncflow.WithSourceTimeout(50*time.Millisecond),
		syncflow.WithSourceTimeouts(map[records.SourceID]time.Duration{"sheet": 5 * time.Second}),
	)

	go func() {
		time.Sleep(200 * time.Millisecond)
		close(release)
	}()

	entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
	require.NoError(t, err)

	sheet, ok := entry.Report.Source("sheet")
	require.True(t, ok)
	assert.Equal(t, report.SourceOK, sheet.Status, "sheet outlives the shared timeout")
	assert.Equal(t, 2, sheet.Fetched)
}

func TestWithSourceTimeoutsRejectsNonPositive(t *testing.T) {
	_, err := syncflow.New(syncflow.WithSourceTimeouts(map[records.SourceID]time.Duration{"crm": 0}))
	assert.True(t, errors.IsValidationError(err))
}

func TestRunSurvivesPanickingHooks(t *testing.T) {
	e := newEngine(t,
		[]sources.Source{static("crm", crmRecords()...), static("sheet", sheetRecords()...)},
		syncflow.WithPriority("crm", "sheet"),
	)
	e.client.OnRunStarted(func(string, string) { panic("notifier bug") })
	e.client.OnPhaseChanged(func(string, report.Phase) { panic("notifier bug") })
	e.client.OnRunCompleted(func(*report.Entry) { panic("notifier bug") })

	for range 2 {
		entry, err := e.client.Run(context.Background(), syncflow.TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, report.Completed, entry.Report.Phase)
	}
	assert.Equal(t, syncflow.StateIdle, e.client.Status().State)

	closed := make(chan error, 1)
	go func() { closed <- e.client.Close() }()
	require.NoError(t, wait(t, closed))
}
