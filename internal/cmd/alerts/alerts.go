// Package alerts provides a structured system for status notifications.
package alerts

import (
	"fmt"
	"io"
	"time"

	"github.com/agentstation/syncflow/pkg/report"
)

// Alert represents a system status notification.
type Alert struct {
	Level     Level
	Message   string
	Details   []string
	Timestamp time.Time
	Err       error
}

// New creates a new alert with the given level and message.
func New(level Level, message string) *Alert {
	return &Alert{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewError creates a new error alert.
func NewError(message string) *Alert {
	return New(LevelError, message)
}

// NewWarning creates a new warning alert.
func NewWarning(message string) *Alert {
	return New(LevelWarning, message)
}

// NewInfo creates a new info alert.
func NewInfo(message string) *Alert {
	return New(LevelInfo, message)
}

// NewSuccess creates a new success alert.
func NewSuccess(message string) *Alert {
	return New(LevelSuccess, message)
}

// ForRun summarizes a finished run: success when clean, a warning listing
// the review and issue counts, or an error carrying the failure reason.
func ForRun(s report.Summary) *Alert {
	msg := fmt.Sprintf("Run %s %s", s.RunID, s.Outcome.String())

	var a *Alert
	switch s.Outcome.Kind {
	case report.OutcomeClean:
		a = NewSuccess(msg)
	case report.OutcomeWarnings:
		a = NewWarning(msg)
		if s.Outcome.NeedsReview > 0 {
			a.WithDetails("Set overrides with: syncflow override set <entity> <field> <value>")
		}
	default:
		a = NewError(msg)
	}

	if s.SourcesFailed > 0 {
		a.WithDetails(fmt.Sprintf("%d of %d sources failed", s.SourcesFailed, s.SourcesOK+s.SourcesFailed))
	}
	if s.Published && s.Destination != "" {
		a.WithDetails("Published to " + s.Destination)
	}
	return a
}

// WithError adds an underlying error to the alert.
func (a *Alert) WithError(err error) *Alert {
	a.Err = err
	return a
}

// WithDetails adds additional context details to the alert.
func (a *Alert) WithDetails(details ...string) *Alert {
	a.Details = append(a.Details, details...)
	return a
}

// String returns a string representation of the alert.
func (a *Alert) String() string {
	message := fmt.Sprintf("%s %s", a.Level.Icon(), a.Message)
	if a.Err != nil {
		message += fmt.Sprintf(": %v", a.Err)
	}
	return message
}

// Writer handles alert output to different formats and destinations.
type Writer interface {
	WriteAlert(alert *Alert) error
}

// WriterFunc is an adapter to allow functions to be used as Writers.
type WriterFunc func(*Alert) error

// WriteAlert calls the function.
func (f WriterFunc) WriteAlert(alert *Alert) error {
	return f(alert)
}

// MultiWriter creates a writer that writes to multiple writers.
func MultiWriter(writers ...Writer) Writer {
	return WriterFunc(func(alert *Alert) error {
		for _, w := range writers {
			if err := w.WriteAlert(alert); err != nil {
				return err
			}
		}
		return nil
	})
}

// DiscardWriter is a Writer that discards all alerts.
var DiscardWriter Writer = WriterFunc(func(*Alert) error { return nil })

// NewWriterTo creates a Writer that writes to an io.Writer.
func NewWriterTo(w io.Writer) Writer {
	return WriterFunc(func(alert *Alert) error {
		_, err := fmt.Fprintln(w, alert.String())
		return err
	})
}
