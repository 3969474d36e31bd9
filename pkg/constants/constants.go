// Package constants provides shared constants used throughout the syncflow codebase.
// This includes timeouts, limits, file permissions, and other configuration values
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultSourceTimeout bounds a single source fetch within a run
	DefaultSourceTimeout = 30 * time.Second

	// DefaultHTTPTimeout is the transport timeout for HTTP source requests
	DefaultHTTPTimeout = 30 * time.Second

	// RunContextTimeout bounds a scheduled run end to end
	RunContextTimeout = 10 * time.Minute

	// DefaultRunInterval is the default interval between scheduled runs
	DefaultRunInterval = 24 * time.Hour

	// ShutdownTimeout is how long a server waits to drain on shutdown
	ShutdownTimeout = 30 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// DefaultHistoryLimit is how many runs the in-memory history keeps
	DefaultHistoryLimit = 50

	// DefaultPageSize is the default number of items per page for paginated results
	DefaultPageSize = 20

	// MaxPageSize caps a single history page
	MaxPageSize = 200

	// DefaultEpsilon is the tolerance used when comparing numeric field values
	DefaultEpsilon = 1e-9
)
