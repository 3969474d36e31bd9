package report

import (
	"cmp"
	"context"
	stderrors "errors"
	"slices"

	"github.com/agentstation/syncflow/pkg/errors"
)

// IssueKind classifies a problem recorded during a run.
type IssueKind string

// Issue kinds, one per error in the run taxonomy.
const (
	IssueNormalization IssueKind = "normalization"
	IssueDuplicate     IssueKind = "duplicate_record"
	IssueSourceFetch   IssueKind = "source_fetch"
	IssueSourceTimeout IssueKind = "source_timeout"
	IssueUnresolved    IssueKind = "unresolved_conflict"
	IssuePublish       IssueKind = "publish"
	IssueAllSources    IssueKind = "all_sources_failed"
	IssueCanceled      IssueKind = "canceled"
	IssueInternal      IssueKind = "internal"
)

// Severity of an issue. Warnings never end a run.
type Severity string

// Severities.
const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one error attached to a run report, with enough context to
// drive manual review.
type Issue struct {
	Kind        IssueKind `json:"kind" yaml:"kind"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	SourceID    string    `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	EntityKey   string    `json:"entity_key,omitempty" yaml:"entity_key,omitempty"`
	Field       string    `json:"field,omitempty" yaml:"field,omitempty"`
	RecordIndex *int      `json:"record_index,omitempty" yaml:"record_index,omitempty"`
	Message     string    `json:"message" yaml:"message"`
}

// IssueFrom converts an error from any pipeline stage into an Issue.
func IssueFrom(err error) Issue {
	issue := Issue{Severity: SeverityWarning, Message: err.Error()}

	var (
		normErr    *errors.NormalizationError
		dupErr     *errors.DuplicateRecordError
		fetchErr   *errors.SourceFetchError
		unresolved *errors.UnresolvedConflictError
		pubErr     *errors.PublishError
		allErr     *errors.AllSourcesFailedError
	)

	// AllSourcesFailedError wraps the per-source errors, so it goes first.
	switch {
	case stderrors.As(err, &allErr):
		issue.Kind = IssueAllSources
		issue.Severity = SeverityError
	case stderrors.As(err, &normErr):
		idx := normErr.RecordIndex
		issue.Kind = IssueNormalization
		issue.SourceID = normErr.SourceID
		issue.Field = normErr.Field
		issue.RecordIndex = &idx
	case stderrors.As(err, &dupErr):
		issue.Kind = IssueDuplicate
		issue.SourceID = dupErr.SourceID
		issue.EntityKey = dupErr.EntityKey
	case stderrors.As(err, &fetchErr):
		issue.Kind = IssueSourceFetch
		if errors.IsTimeout(fetchErr) {
			issue.Kind = IssueSourceTimeout
		}
		issue.SourceID = fetchErr.SourceID
	case stderrors.As(err, &unresolved):
		issue.Kind = IssueUnresolved
		issue.EntityKey = unresolved.EntityKey
		issue.Field = unresolved.Field
	case stderrors.As(err, &pubErr):
		issue.Kind = IssuePublish
		issue.Severity = SeverityError
	case stderrors.Is(err, context.Canceled) || errors.IsCanceled(err):
		issue.Kind = IssueCanceled
		issue.Severity = SeverityError
	default:
		issue.Kind = IssueInternal
		issue.Severity = SeverityError
	}

	return issue
}

// stage orders issue kinds by the pipeline phase that raises them.
var stage = map[IssueKind]int{
	IssueSourceFetch:   0,
	IssueSourceTimeout: 0,
	IssueAllSources:    1,
	IssueNormalization: 2,
	IssueDuplicate:     3,
	IssueUnresolved:    4,
	IssuePublish:       5,
	IssueCanceled:      6,
	IssueInternal:      7,
}

// sortIssues orders issues by stage, then source, entity, field and record,
// so identical runs list their issues identically however work was
// scheduled.
func sortIssues(issues []Issue) {
	slices.SortStableFunc(issues, func(a, b Issue) int {
		return cmp.Or(
			cmp.Compare(stage[a.Kind], stage[b.Kind]),
			cmp.Compare(a.SourceID, b.SourceID),
			cmp.Compare(a.EntityKey, b.EntityKey),
			cmp.Compare(a.Field, b.Field),
			cmp.Compare(recordIndex(a), recordIndex(b)),
		)
	})
}

func recordIndex(i Issue) int {
	if i.RecordIndex == nil {
		return -1
	}
	return *i.RecordIndex
}
