package publish_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/records"
)

func entities() []records.MergedEntity {
	return []records.MergedEntity{
		{
			EntityKey: "acme corp",
			Sources:   []records.SourceID{"crm", "tracker"},
			Fields: map[string]records.Value{
				"name":         records.String("Acme Corp - Enterprise License"),
				"amount":       records.Number(50000),
				"issue_status": records.Enum("In Progress"),
			},
			Decisions: []records.ResolvedField{{Field: "stage", Status: records.NeedsReview}},
		},
		{
			EntityKey: "megacorp",
			Sources:   []records.SourceID{"crm"},
			Fields:    map[string]records.Value{"amount": records.Number(500000)},
		},
	}
}

func TestLayoutRows(t *testing.T) {
	synced := utc.New(time.Date(2024, 2, 1, 7, 0, 0, 0, time.UTC))
	layout := publish.DefaultLayout()

	header := layout.Header()
	assert.Equal(t, "Source", header[0])
	assert.Equal(t, "Last Synced", header[len(header)-1])

	rows := layout.Rows(entities(), synced)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"crm, tracker", "acme corp", "Acme Corp - Enterprise License", "50000", "", "", "", "In Progress", "", "stage", "2024-02-01T07:00:00Z",
	}, rows[0])
	assert.Equal(t, "500000", rows[1][3])
	assert.Equal(t, "", rows[1][2])
}

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	m := publish.NewMemory("")
	assert.Equal(t, "memory", m.Destination())

	res, err := m.Publish(ctx, entities())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Len(t, m.Last(), 2)

	m.FailWith(errors.New("sheet locked"))
	_, err = m.Publish(ctx, nil)
	assert.EqualError(t, err, "sheet locked")
	assert.Len(t, m.Last(), 2, "failed publish keeps previous data")
	assert.Equal(t, 2, m.Calls())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Publish(canceled, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
