package history_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

func sealed(id string, minute int, phase report.Phase, needsReview int) *report.RunReport {
	start := utc.New(time.Date(2024, 2, 1, 7, minute, 0, 0, time.UTC))
	return &report.RunReport{
		RunID:       id,
		Trigger:     "manual",
		Phase:       phase,
		Transitions: []report.Phase{report.Pending, report.Fetching, phase},
		StartedAt:   start,
		FinishedAt:  utc.New(start.Time.Add(2 * time.Second)),
		Counts:      report.Counts{EntitiesProcessed: 3, ConflictsNeedingReview: needsReview},
		Entities: []records.MergedEntity{{
			EntityKey: "acme corp",
			Sources:   []records.SourceID{"crm", "sheet"},
			Fields:    map[string]records.Value{"amount": records.Number(50000), "name": records.String("Acme Inc")},
		}},
	}
}

// stores runs every test against both implementations.
func stores(t *testing.T) map[string]history.Store {
	t.Helper()
	sqlite, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]history.Store{
		"memory": history.NewMemoryStore(0),
		"sqlite": sqlite,
	}
}

func TestStoreRecordAndGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Record(ctx, sealed("run-1", 0, report.Completed, 0)))

			err := store.Record(ctx, sealed("run-1", 0, report.Completed, 0))
			assert.True(t, errors.IsValidationError(err), "run ids are recorded once")

			e, err := store.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, "run-1", e.Report.RunID)
			require.Len(t, e.Report.Entities, 1)
			amount, ok := e.Report.Entities[0].Get("amount")
			require.True(t, ok)
			assert.True(t, amount.Equal(records.Number(50000), 0))

			_, err = store.Get(ctx, "missing")
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestStoreAppendChangesOutcome(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Record(ctx, sealed("run-1", 0, report.Completed, 0)))

			page, err := store.Query(ctx, history.Filter{Status: "success"})
			require.NoError(t, err)
			assert.Equal(t, 1, page.Total)

			require.NoError(t, store.Append(ctx, report.Addendum{
				RunID:      "run-1",
				Kind:       report.AddendumPublish,
				RecordedAt: utc.Now(),
				Error:      "disk full",
			}))

			e, err := store.Get(ctx, "run-1")
			require.NoError(t, err)
			require.Len(t, e.Addenda, 1)
			assert.Equal(t, report.OutcomeWarnings, e.Outcome().Kind)

			page, err = store.Query(ctx, history.Filter{Status: "partial"})
			require.NoError(t, err)
			assert.Equal(t, 1, page.Total)

			err = store.Append(ctx, report.Addendum{RunID: "nope"})
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestStoreQueryPagination(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 7; i++ {
				phase := report.Completed
				if i%3 == 0 {
					phase = report.Failed
				}
				require.NoError(t, store.Record(ctx, sealed(fmt.Sprintf("run-%d", i), i, phase, 0)))
			}

			page, err := store.Query(ctx, history.Filter{Limit: 3})
			require.NoError(t, err)
			assert.Equal(t, 7, page.Total)
			require.Len(t, page.Runs, 3)
			assert.Equal(t, "run-6", page.Runs[0].RunID, "newest first")
			assert.Equal(t, "run-4", page.Runs[2].RunID)

			page, err = store.Query(ctx, history.Filter{Offset: 6, Limit: 3})
			require.NoError(t, err)
			require.Len(t, page.Runs, 1)
			assert.Equal(t, "run-0", page.Runs[0].RunID)

			page, err = store.Query(ctx, history.Filter{Offset: 50})
			require.NoError(t, err)
			assert.Empty(t, page.Runs)

			page, err = store.Query(ctx, history.Filter{Status: "failed"})
			require.NoError(t, err)
			assert.Equal(t, 3, page.Total)

			latest, err := store.Latest(ctx)
			require.NoError(t, err)
			assert.Equal(t, "run-6", latest.Report.RunID)
		})
	}
}

func TestStoreOverrides(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			at := utc.New(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
			require.NoError(t, store.SetOverride(ctx, history.Override{EntityKey: "acme corp", Field: "stage", Value: records.Enum("Negotiation"), SetAt: at}))
			require.NoError(t, store.SetOverride(ctx, history.Override{EntityKey: "acme corp", Field: "amount", Value: records.Number(1), SetAt: at}))
			require.NoError(t, store.SetOverride(ctx, history.Override{EntityKey: "acme corp", Field: "amount", Value: records.Number(52000), SetAt: at, SetBy: "sarah"}))

			err := store.SetOverride(ctx, history.Override{EntityKey: "acme corp", Field: "stage"})
			assert.True(t, errors.IsValidationError(err))

			list, err := store.ListOverrides(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "amount", list[0].Field)
			assert.Equal(t, "sarah", list[0].SetBy)
			assert.True(t, list[0].Value.Equal(records.Number(52000), 0))

			m := history.OverrideMap(list)
			assert.Equal(t, records.Enum("Negotiation"), m[history.OverrideKey{EntityKey: "acme corp", Field: "stage"}])

			require.NoError(t, store.DeleteOverride(ctx, "acme corp", "stage"))
			assert.True(t, errors.IsNotFound(store.DeleteOverride(ctx, "acme corp", "stage")))
		})
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, sealed(fmt.Sprintf("run-%d", i), i, report.Completed, 0)))
	}

	page, err := store.Query(ctx, history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	_, err = store.Get(ctx, "run-1")
	assert.True(t, errors.IsNotFound(err))
	_, err = store.Get(ctx, "run-2")
	assert.NoError(t, err)
}

func TestSQLiteRetentionAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := history.OpenSQLite(path, history.WithRetention(2))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Record(ctx, sealed(fmt.Sprintf("run-%d", i), i, report.Completed, 1)))
	}
	require.NoError(t, store.Close())

	reopened, err := history.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	page, err := reopened.Query(ctx, history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "run-3", page.Runs[0].RunID)
	assert.Equal(t, "partial", page.Runs[0].Status)
}
