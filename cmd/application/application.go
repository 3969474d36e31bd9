// Package application provides the application interface for syncflow commands.
//
// The Application interface is the contract between the application layer and
// command implementations (and the HTTP server), so commands can be tested
// against a mock instead of a live engine.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            engine, err := app.Engine()
//	            if err != nil {
//	                return err
//	            }
//	            entry, err := engine.Run(cmd.Context(), syncflow.TriggerManual)
//	            // ... render entry
//	            return err
//	        },
//	    }
//	}
//
// Testing with Mocks:
//
//	mock := &application.Mock{
//	    EngineFunc: func() (syncflow.Client, error) {
//	        return testEngine, nil
//	    },
//	}
//	cmd := NewCommand(mock)
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/internal/config"
)

// Application provides what commands and the server need.
// The App struct from cmd/syncflow/app implements this interface.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Engine returns the sync engine, built from the configuration on first
	// use and shared afterwards.
	Engine() (syncflow.Client, error)

	// Config returns the loaded configuration.
	Config() *config.Config

	// ConfigPath returns the --config file, empty when the standard
	// locations are searched.
	ConfigPath() string

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
