package publish

import (
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/records"
)

// Special column fields that are not entity fields.
const (
	FieldKey     = "$key"
	FieldSources = "$sources"
	FieldSynced  = "$synced"
	FieldReview  = "$review"
)

// Column maps one sheet column to an entity field or a special field.
type Column struct {
	Header string `json:"header" yaml:"header" mapstructure:"header"`
	Field  string `json:"field" yaml:"field" mapstructure:"field"`
}

// Layout is an ordered set of sheet columns.
type Layout []Column

// DefaultLayout is the column layout of the merged sheet.
func DefaultLayout() Layout {
	return Layout{
		{Header: "Source", Field: FieldSources},
		{Header: "Key", Field: FieldKey},
		{Header: "Name", Field: "name"},
		{Header: "Amount", Field: "amount"},
		{Header: "Stage", Field: "stage"},
		{Header: "Close Date", Field: "close_date"},
		{Header: "Issue Key", Field: "issue_key"},
		{Header: "Issue Status", Field: "issue_status"},
		{Header: "Assignee", Field: "assignee"},
		{Header: "Needs Review", Field: FieldReview},
		{Header: "Last Synced", Field: FieldSynced},
	}
}

// Header returns the header row.
func (l Layout) Header() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.Header
	}
	return out
}

// Rows renders one row per entity, in the order given. Absent fields render
// as empty cells.
func (l Layout) Rows(entities []records.MergedEntity, syncedAt utc.Time) [][]string {
	synced := syncedAt.Time.UTC().Format(time.RFC3339)
	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		row := make([]string, len(l))
		for i, c := range l {
			switch c.Field {
			case FieldKey:
				row[i] = e.EntityKey
			case FieldSources:
				ids := make([]string, len(e.Sources))
				for j, id := range e.Sources {
					ids[j] = id.String()
				}
				row[i] = strings.Join(ids, ", ")
			case FieldSynced:
				row[i] = synced
			case FieldReview:
				var fields []string
				for _, d := range e.PendingReview() {
					fields = append(fields, d.Field)
				}
				row[i] = strings.Join(fields, ", ")
			default:
				if v, ok := e.Get(c.Field); ok {
					row[i] = v.String()
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}
