package history

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/pkg/errors"
	pkghistory "github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/report"
)

func execute(t *testing.T, app application.Application, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHistory(t *testing.T) {
	logging.DisableLoggingForTest(t)
	engine := application.TestEngine(t)
	app := application.TestApp(engine)

	var ids []string
	for range 3 {
		entry, err := engine.Run(context.Background(), syncflow.TriggerManual)
		require.NoError(t, err)
		ids = append(ids, entry.Report.RunID)
	}

	t.Run("list newest first", func(t *testing.T) {
		out, err := execute(t, app, "--limit", "2")
		require.NoError(t, err)

		var page pkghistory.Page
		require.NoError(t, json.Unmarshal([]byte(out), &page))
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Runs, 2)
		assert.Equal(t, ids[2], page.Runs[0].RunID)
	})

	t.Run("filter by trigger", func(t *testing.T) {
		out, err := execute(t, app, "--trigger", "schedule")
		require.NoError(t, err)

		var page pkghistory.Page
		require.NoError(t, json.Unmarshal([]byte(out), &page))
		assert.Zero(t, page.Total)
	})

	t.Run("show one run", func(t *testing.T) {
		out, err := execute(t, app, ids[0])
		require.NoError(t, err)

		var entry report.Entry
		require.NoError(t, json.Unmarshal([]byte(out), &entry))
		assert.Equal(t, ids[0], entry.Report.RunID)
		assert.Empty(t, entry.Report.Entities)

		out, err = execute(t, app, ids[0], "--entities")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &entry))
		assert.NotEmpty(t, entry.Report.Entities)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := execute(t, app, "missing")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}
