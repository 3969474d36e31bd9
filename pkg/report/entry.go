package report

import (
	"fmt"
	"time"

	"github.com/agentstation/utc"
)

// AddendumKind names what an addendum records.
type AddendumKind string

// Addendum kinds.
const (
	AddendumPublish AddendumKind = "publish"
)

// Addendum records an outcome that happened after the report was sealed,
// such as the publish result. The sealed report itself never changes.
type Addendum struct {
	RunID       string       `json:"run_id" yaml:"run_id"`
	Kind        AddendumKind `json:"kind" yaml:"kind"`
	RecordedAt  utc.Time     `json:"recorded_at" yaml:"recorded_at"`
	Destination string       `json:"destination,omitempty" yaml:"destination,omitempty"`
	Rows        int          `json:"rows" yaml:"rows"`
	Error       string       `json:"error,omitempty" yaml:"error,omitempty"`
	// FinalPhase overrides the sealed phase when set. A publish that fails
	// after cancellation was requested moves the run to Failed.
	FinalPhase Phase  `json:"final_phase,omitempty" yaml:"final_phase,omitempty"`
	Note       string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Entry is a sealed report plus its addenda, as stored in history.
type Entry struct {
	Report  RunReport  `json:"report" yaml:"report"`
	Addenda []Addendum `json:"addenda,omitempty" yaml:"addenda,omitempty"`
}

// FinalPhase returns the run's terminal phase after applying addenda.
func (e *Entry) FinalPhase() Phase {
	phase := e.Report.Phase
	for _, a := range e.Addenda {
		if a.FinalPhase != "" {
			phase = a.FinalPhase
		}
	}
	return phase
}

// Publish returns the publish addendum, if one was recorded.
func (e *Entry) Publish() (Addendum, bool) {
	for i := len(e.Addenda) - 1; i >= 0; i-- {
		if e.Addenda[i].Kind == AddendumPublish {
			return e.Addenda[i], true
		}
	}
	return Addendum{}, false
}

// OutcomeKind is the user-visible result class of a run.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeClean    OutcomeKind = "clean"
	OutcomeWarnings OutcomeKind = "warnings"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome distinguishes a clean run, a run with warnings, and a failed run.
type Outcome struct {
	Kind        OutcomeKind `json:"kind" yaml:"kind"`
	NeedsReview int         `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
	Warnings    int         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Reason      string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// String renders the outcome for status displays.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeClean:
		return "completed cleanly"
	case OutcomeWarnings:
		if o.NeedsReview > 0 {
			return fmt.Sprintf("completed with warnings (%d fields need review)", o.NeedsReview)
		}
		return fmt.Sprintf("completed with warnings (%d issues)", o.Warnings)
	default:
		return fmt.Sprintf("failed (%s)", o.Reason)
	}
}

// Run statuses, as used by history filters.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Status maps the outcome onto the success/partial/failed vocabulary.
func (o Outcome) Status() string {
	switch o.Kind {
	case OutcomeClean:
		return StatusSuccess
	case OutcomeWarnings:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Outcome classifies the run.
func (e *Entry) Outcome() Outcome {
	if e.FinalPhase() == Failed {
		reason := e.Report.Reason
		for _, a := range e.Addenda {
			if a.FinalPhase == Failed && a.Note != "" {
				reason = a.Note
			}
		}
		if reason == "" {
			reason = "unknown error"
		}
		return Outcome{Kind: OutcomeFailed, Reason: reason}
	}

	warnings := len(e.Report.Errors)
	for _, a := range e.Addenda {
		if a.Error != "" {
			warnings++
		}
	}
	needsReview := e.Report.Counts.ConflictsNeedingReview

	if warnings == 0 && needsReview == 0 {
		return Outcome{Kind: OutcomeClean}
	}
	return Outcome{Kind: OutcomeWarnings, NeedsReview: needsReview, Warnings: warnings}
}

// Summary is the condensed view of a run used by status and history listings.
type Summary struct {
	RunID         string        `json:"run_id" yaml:"run_id"`
	Trigger       string        `json:"trigger" yaml:"trigger"`
	Phase         Phase         `json:"phase" yaml:"phase"`
	Status        string        `json:"status" yaml:"status"`
	Outcome       Outcome       `json:"outcome" yaml:"outcome"`
	StartedAt     utc.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt    utc.Time      `json:"finished_at" yaml:"finished_at"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	Counts        Counts        `json:"counts" yaml:"counts"`
	SourcesOK     int           `json:"sources_ok" yaml:"sources_ok"`
	SourcesFailed int           `json:"sources_failed" yaml:"sources_failed"`
	Destination   string        `json:"destination,omitempty" yaml:"destination,omitempty"`
	Published     bool          `json:"published" yaml:"published"`
}

// Summary condenses the entry.
func (e *Entry) Summary() Summary {
	outcome := e.Outcome()
	s := Summary{
		RunID:      e.Report.RunID,
		Trigger:    e.Report.Trigger,
		Phase:      e.FinalPhase(),
		Status:     outcome.Status(),
		Outcome:    outcome,
		StartedAt:  e.Report.StartedAt,
		FinishedAt: e.Report.FinishedAt,
		Duration:   e.Report.Duration(),
		Counts:     e.Report.Counts,
	}
	for _, src := range e.Report.Sources {
		if src.Status == SourceFailed {
			s.SourcesFailed++
		} else {
			s.SourcesOK++
		}
	}
	if pub, ok := e.Publish(); ok {
		s.Destination = pub.Destination
		s.Published = pub.Error == ""
	}
	return s
}
