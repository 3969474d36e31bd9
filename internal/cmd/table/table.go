// Package table converts engine results into table rows for CLI output.
package table

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/internal/cmd/emoji"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment

	// WideColumns lists header indexes shown only in wide output.
	WideColumns []int
}

// Narrow returns a copy of d without its wide-only columns.
func (d Data) Narrow() Data {
	if len(d.WideColumns) == 0 {
		return d
	}
	keep := func(i int) bool { return !slices.Contains(d.WideColumns, i) }

	out := Data{}
	for i, h := range d.Headers {
		if keep(i) {
			out.Headers = append(out.Headers, h)
		}
	}
	for i, a := range d.ColumnAlignment {
		if keep(i) {
			out.ColumnAlignment = append(out.ColumnAlignment, a)
		}
	}
	for _, row := range d.Rows {
		narrow := make([]string, 0, len(out.Headers))
		for i, cell := range row {
			if keep(i) {
				narrow = append(narrow, cell)
			}
		}
		out.Rows = append(out.Rows, narrow)
	}
	return out
}

// RunsToTableData converts run summaries to table format.
func RunsToTableData(runs []report.Summary) Data {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID,
			r.Trigger,
			OutcomeIcon(r.Outcome.Kind) + " " + r.Status,
			string(r.Phase),
			FormatTime(r.StartedAt),
			FormatDuration(r.Duration),
			strconv.Itoa(r.Counts.EntitiesProcessed),
			strconv.Itoa(r.Counts.ConflictsFound),
			strconv.Itoa(r.Counts.ConflictsNeedingReview),
			fmt.Sprintf("%d/%d", r.SourcesOK, r.SourcesOK+r.SourcesFailed),
			FormatPublished(r),
		})
	}

	return Data{
		Headers: []string{"Run ID", "Trigger", "Status", "Phase", "Started", "Duration",
			"Entities", "Conflicts", "Review", "Sources", "Published"},
		Rows: rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignRight,
			AlignRight, AlignRight, AlignRight, AlignCenter, AlignLeft},
		WideColumns: []int{3, 9, 10},
	}
}

// SummaryToTableData converts a single run summary to a property table.
func SummaryToTableData(s report.Summary) Data {
	rows := [][]string{
		{"Run ID", s.RunID},
		{"Trigger", s.Trigger},
		{"Outcome", OutcomeIcon(s.Outcome.Kind) + " " + s.Outcome.String()},
		{"Phase", string(s.Phase)},
		{"Started", FormatTime(s.StartedAt)},
		{"Finished", FormatTime(s.FinishedAt)},
		{"Duration", FormatDuration(s.Duration)},
		{"Sources", fmt.Sprintf("%d ok, %d failed", s.SourcesOK, s.SourcesFailed)},
		{"Entities", strconv.Itoa(s.Counts.EntitiesProcessed)},
		{"Conflicts", fmt.Sprintf("%d found, %d auto-resolved, %d need review",
			s.Counts.ConflictsFound, s.Counts.ConflictsAutoResolved, s.Counts.ConflictsNeedingReview)},
		{"Records", fmt.Sprintf("%d normalized, %d skipped", s.Counts.RecordsNormalized, s.Counts.RecordsSkipped)},
		{"Published", FormatPublished(s)},
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}
}

// SourcesToTableData converts per-source fetch results to table format.
func SourcesToTableData(results []report.SourceResult) Data {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, []string{
			r.SourceID.String(),
			SourceIcon(r.Status) + " " + string(r.Status),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Normalized),
			strconv.Itoa(r.Skipped),
			FormatDuration(r.Duration),
			errText,
		})
	}
	return Data{
		Headers:         []string{"Source", "Status", "Fetched", "Normalized", "Skipped", "Duration", "Error"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight, AlignLeft},
	}
}

// IssuesToTableData converts run issues to table format.
func IssuesToTableData(issues []report.Issue) Data {
	rows := make([][]string, 0, len(issues))
	for _, i := range issues {
		rows = append(rows, []string{
			string(i.Severity),
			string(i.Kind),
			dash(i.SourceID),
			dash(i.EntityKey),
			dash(i.Field),
			i.Message,
		})
	}
	return Data{
		Headers: []string{"Severity", "Kind", "Source", "Entity", "Field", "Message"},
		Rows:    rows,
	}
}

// EntitiesToTableData converts merged entities to table format, one row per
// field. Fields waiting for review show the competing values instead.
func EntitiesToTableData(entities []records.MergedEntity) Data {
	var rows [][]string
	for _, e := range entities {
		sources := JoinSources(e.Sources)

		decided := make(map[string]records.ResolvedField, len(e.Decisions))
		for _, d := range e.Decisions {
			decided[d.Field] = d
		}

		fields := make([]string, 0, len(e.Fields)+len(decided))
		for f := range e.Fields {
			fields = append(fields, f)
		}
		for f := range decided {
			if _, ok := e.Fields[f]; !ok {
				fields = append(fields, f)
			}
		}
		slices.Sort(fields)

		for _, f := range fields {
			value := "-"
			if v, ok := e.Fields[f]; ok {
				value = v.String()
			}
			resolution := "agreed"
			if d, ok := decided[f]; ok {
				resolution = DecisionIcon(d.Status) + " " + d.Rule
				if d.Status != records.Resolved {
					value = FormatCandidates(d.LosingValues)
				}
			}
			rows = append(rows, []string{e.EntityKey, f, value, resolution, sources})
		}
	}

	return Data{
		Headers:     []string{"Entity", "Field", "Value", "Resolution", "Sources"},
		Rows:        rows,
		WideColumns: []int{4},
	}
}

// ReviewToTableData lists the fields across entities that need review.
func ReviewToTableData(entities []records.MergedEntity) Data {
	var rows [][]string
	for _, e := range entities {
		for _, d := range e.PendingReview() {
			rows = append(rows, []string{
				e.EntityKey,
				d.Field,
				FormatCandidates(d.LosingValues),
				d.Reason,
			})
		}
	}
	return Data{
		Headers: []string{"Entity", "Field", "Candidates", "Reason"},
		Rows:    rows,
	}
}

// OverridesToTableData converts stored overrides to table format.
func OverridesToTableData(overrides []history.Override) Data {
	rows := make([][]string, 0, len(overrides))
	for _, o := range overrides {
		rows = append(rows, []string{
			o.EntityKey,
			o.Field,
			o.Value.String(),
			o.Value.Kind().String(),
			FormatTime(o.SetAt),
			dash(o.SetBy),
			dash(o.Note),
		})
	}
	return Data{
		Headers:     []string{"Entity", "Field", "Value", "Kind", "Set At", "Set By", "Note"},
		Rows:        rows,
		WideColumns: []int{3, 6},
	}
}

// FormatCandidates renders per-source values as "crm=a, sheet=b".
func FormatCandidates(values map[records.SourceID]records.Value) string {
	if len(values) == 0 {
		return "-"
	}
	ids := make([]records.SourceID, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	ids = records.SortSourceIDs(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s=%s", id, values[id]))
	}
	return strings.Join(parts, ", ")
}

// JoinSources renders source IDs as a comma separated list.
func JoinSources(ids []records.SourceID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

// FormatPublished describes where a run's output went.
func FormatPublished(s report.Summary) string {
	if !s.Published {
		return emoji.Optional
	}
	if s.Destination == "" {
		return emoji.Success
	}
	return emoji.Success + " " + s.Destination
}

// FormatTime formats a timestamp for tables, "-" when unset.
func FormatTime(t utc.Time) string {
	if t.Time.IsZero() {
		return "-"
	}
	return t.Time.Format("2006-01-02 15:04:05")
}

// FormatDuration rounds a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

// OutcomeIcon returns the status symbol for a run outcome.
func OutcomeIcon(kind report.OutcomeKind) string {
	switch kind {
	case report.OutcomeClean:
		return emoji.Success
	case report.OutcomeWarnings:
		return emoji.Warning
	case report.OutcomeFailed:
		return emoji.Error
	default:
		return emoji.Unknown
	}
}

// SourceIcon returns the status symbol for a source result.
func SourceIcon(status report.SourceStatus) string {
	switch status {
	case report.SourceOK:
		return emoji.Success
	case report.SourcePartial:
		return emoji.Warning
	default:
		return emoji.Error
	}
}

// DecisionIcon returns the status symbol for a field decision.
func DecisionIcon(status records.Resolution) string {
	switch status {
	case records.Resolved:
		return emoji.Success
	case records.NeedsReview:
		return emoji.Warning
	default:
		return emoji.Error
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
