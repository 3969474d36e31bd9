package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/internal/config"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
//
// Example Usage:
//
//	mock := &application.Mock{
//	    EngineFunc: func() (syncflow.Client, error) {
//	        return testEngine, nil
//	    },
//	    LoggerFunc: func() *zerolog.Logger {
//	        logger := zerolog.Nop()
//	        return &logger
//	    },
//	}
//	cmd := status.NewCommand(mock)
//	// ... test command
type Mock struct {
	EngineFunc       func() (syncflow.Client, error)
	ConfigFunc       func() *config.Config
	ConfigPathFunc   func() string
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

// Engine returns an engine using the mock function or nil.
func (m *Mock) Engine() (syncflow.Client, error) {
	if m.EngineFunc != nil {
		return m.EngineFunc()
	}
	return nil, nil
}

// Config returns a config using the mock function or the demo default.
func (m *Mock) Config() *config.Config {
	if m.ConfigFunc != nil {
		return m.ConfigFunc()
	}
	return config.Default()
}

// ConfigPath returns the config path using the mock function or "".
func (m *Mock) ConfigPath() string {
	if m.ConfigPathFunc != nil {
		return m.ConfigPathFunc()
	}
	return ""
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns builtBy using the mock function or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}

// Ensure Mock implements Application at compile time.
var _ Application = (*Mock)(nil)
