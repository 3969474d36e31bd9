// Package emoji provides symbol constants for CLI output.
// These symbols create a consistent visual language across all commands.
package emoji

// Symbol constants for status indicators, alerts and table cells.
const (
	// Success marks completed runs, resolved fields and healthy sources.
	Success = "✓"

	// Error marks failed runs, failed sources and unresolved fields.
	Error = "✗"

	// Warning marks runs with warnings and fields waiting for review.
	Warning = "!"

	// Optional marks values that are unset or skipped, such as an
	// unpublished run.
	Optional = "-"

	// Unknown represents unknown or indeterminate states.
	Unknown = "?"

	// Info represents informational messages.
	Info = "i"

	// Running marks a run in progress.
	Running = "..."
)
