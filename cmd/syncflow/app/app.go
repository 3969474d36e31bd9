// Package app provides the application context and dependency management
// for the syncflow CLI. It centralizes configuration, logging, and the
// lifecycle of the sync engine shared by every command.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/config"
	"github.com/agentstation/syncflow/pkg/errors"
)

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)

// App represents the syncflow application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	// CLI settings
	config *Config

	// Logger
	logger *zerolog.Logger

	// Engine configuration and instance (lazy-initialized, singleton)
	mu       sync.RWMutex
	settings *config.Config
	engine   syncflow.Client
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = cfg

	logger := NewLogger(cfg)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the --format flag value, empty when unset.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// ConfigPath returns the --config file, empty when unset.
func (a *App) ConfigPath() string {
	return a.config.ConfigFile
}

// Config returns the engine configuration, loading it on first use from
// --config or the standard locations.
func (a *App) Config() *config.Config {
	settings, err := a.loadSettings()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to load configuration, using demo defaults")
		return config.Default()
	}
	return settings
}

// loadSettings loads the engine configuration once.
func (a *App) loadSettings() (*config.Config, error) {
	a.mu.RLock()
	if a.settings != nil {
		s := a.settings
		a.mu.RUnlock()
		return s, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.settings != nil {
		return a.settings, nil
	}

	settings, err := config.Load(a.config.ConfigFile)
	if err != nil {
		return nil, err
	}
	a.settings = settings
	return settings, nil
}

// Engine returns the sync engine, creating it lazily if needed.
// This is thread-safe and ensures only one instance is created.
func (a *App) Engine() (syncflow.Client, error) {
	a.mu.RLock()
	if a.engine != nil {
		e := a.engine
		a.mu.RUnlock()
		return e, nil
	}
	a.mu.RUnlock()

	settings, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.engine != nil {
		return a.engine, nil
	}

	opts, err := buildEngineOptions(settings)
	if err != nil {
		return nil, err
	}
	engine, err := syncflow.New(opts...)
	if err != nil {
		return nil, errors.WrapResource("create", "engine", "", err)
	}

	a.logger.Debug().
		Str("config", settings.File).
		Int("sources", len(settings.Sources)).
		Str("history", string(settings.History.Driver)).
		Str("publish", string(settings.Publish.Type)).
		Msg("Sync engine ready")

	a.engine = engine
	return engine, nil
}

// Shutdown performs graceful shutdown of the application. It stops scheduled
// runs, waits for an active run to settle, and closes the history store.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	engine := a.engine
	a.engine = nil
	a.mu.Unlock()

	if engine == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- engine.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.NewTimeoutError("shutdown", "", "engine did not close before the deadline")
	}
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets custom CLI settings.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithSettings sets the engine configuration, skipping file loading.
func WithSettings(settings *config.Config) Option {
	return func(a *App) error {
		a.settings = settings
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithEngine sets a custom engine instance (useful for testing).
func WithEngine(engine syncflow.Client) Option {
	return func(a *App) error {
		a.engine = engine
		return nil
	}
}
