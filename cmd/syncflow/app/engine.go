package app

import (
	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/internal/config"
	"github.com/agentstation/syncflow/internal/publishers/file"
	"github.com/agentstation/syncflow/internal/sources/registry"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/publish"
)

// buildEngineOptions constructs engine options from the configuration.
func buildEngineOptions(cfg *config.Config) ([]syncflow.Option, error) {
	srcs, err := registry.All(cfg.Sources)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg.Publish)
	if err != nil {
		return nil, err
	}

	store, err := newHistory(cfg.History)
	if err != nil {
		return nil, err
	}

	opts := []syncflow.Option{
		syncflow.WithSources(srcs...),
		syncflow.WithSchemas(cfg.Schemas()),
		syncflow.WithSourceTimeouts(cfg.SourceTimeouts()),
		syncflow.WithPriority(cfg.PriorityIDs()...),
		syncflow.WithRules(cfg.Bindings()...),
		syncflow.WithPublisher(publisher),
		syncflow.WithHistory(store),
	}

	if cfg.Epsilon > 0 {
		opts = append(opts, syncflow.WithEpsilon(cfg.Epsilon))
	}
	if cfg.Parallelism > 0 {
		opts = append(opts, syncflow.WithParallelism(cfg.Parallelism))
	}
	if cfg.SourceTimeout > 0 {
		opts = append(opts, syncflow.WithSourceTimeout(cfg.SourceTimeout))
	}
	if cfg.RunTimeout > 0 {
		opts = append(opts, syncflow.WithRunTimeout(cfg.RunTimeout))
	}
	if cfg.Schedule.Enabled {
		opts = append(opts,
			syncflow.WithAutoRunInterval(cfg.Schedule.Interval),
			syncflow.WithAutoRuns(true),
		)
	}

	return opts, nil
}

// newPublisher creates the configured publish destination.
func newPublisher(cfg config.PublishConfig) (publish.Publisher, error) {
	switch cfg.Type {
	case config.PublishMemory:
		return publish.NewMemory("memory"), nil
	case config.PublishFile, "":
		return file.New(cfg.Path,
			file.WithFormat(cfg.Format),
			file.WithLayout(cfg.Layout()),
		)
	default:
		return nil, &errors.ValidationError{
			Field:   "publish.type",
			Value:   cfg.Type,
			Message: "must be one of file, memory",
		}
	}
}

// newHistory opens the configured history store. The limit bounds the
// in-memory store; SQLite keeps every run unless a retention is set.
func newHistory(cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Driver {
	case config.HistorySQLite:
		return history.OpenSQLite(cfg.Path, history.WithRetention(cfg.Retention))
	case config.HistoryMemory, "":
		return history.NewMemoryStore(cfg.Limit), nil
	default:
		return nil, &errors.ValidationError{
			Field:   "history.driver",
			Value:   cfg.Driver,
			Message: "must be one of memory, sqlite",
		}
	}
}
