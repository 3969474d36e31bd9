package application

import (
	"testing"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/internal/config"
	"github.com/agentstation/syncflow/internal/sources/registry"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/publish"
)

// TestEngine builds an engine over the built-in demo datasets with an
// in-memory publisher and history. Extra options are applied last, so they
// can replace sources or collaborators. The engine is closed when the test
// ends.
func TestEngine(t testing.TB, extra ...syncflow.Option) syncflow.Client {
	t.Helper()
	cfg := config.Default()

	srcs, err := registry.All(cfg.Sources)
	if err != nil {
		t.Fatalf("building demo sources: %v", err)
	}

	opts := []syncflow.Option{
		syncflow.WithSources(srcs...),
		syncflow.WithSchemas(cfg.Schemas()),
		syncflow.WithPriority(cfg.PriorityIDs()...),
		syncflow.WithRules(cfg.Bindings()...),
		syncflow.WithPublisher(publish.NewMemory("sheet")),
		syncflow.WithHistory(history.NewMemoryStore(0)),
	}
	engine, err := syncflow.New(append(opts, extra...)...)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// TestApp returns a Mock serving engine, with JSON output so commands print
// machine-readable results.
func TestApp(engine syncflow.Client) *Mock {
	return &Mock{
		EngineFunc:       func() (syncflow.Client, error) { return engine, nil },
		OutputFormatFunc: func() string { return "json" },
	}
}
