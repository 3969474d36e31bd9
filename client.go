// Package syncflow provides the merge and conflict-resolution engine.
// It reconciles records describing the same entities across several
// independent sources into one merged view, and records an auditable report
// of every run.
//
// A run fetches every source concurrently, normalizes each snapshot onto the
// canonical schema, groups records by entity key, detects field-level
// disagreement, resolves it with the configured rules, publishes the merged
// dataset, and hands the sealed report to the history store. At most one run
// is active at a time.
//
// Example usage:
//
//	client, err := syncflow.New(
//	    syncflow.WithSources(crm, tracker, sheet),
//	    syncflow.WithSchemas(schemas),
//	    syncflow.WithPriority("crm", "tracker", "sheet"),
//	    syncflow.WithRules(
//	        resolve.Binding{Field: "amount", Rule: resolve.ByMostRecent("")},
//	        resolve.Binding{Field: "stage", Rule: resolve.ByManual()},
//	    ),
//	    syncflow.WithPublisher(sheetPublisher),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Register event hooks
//	client.OnRunCompleted(func(entry *report.Entry) {
//	    log.Printf("run %s: %s", entry.Report.RunID, entry.Outcome())
//	})
//
//	// Run synchronously
//	entry, err := client.Run(ctx, syncflow.TriggerManual)
//	if errors.Is(err, errors.ErrRunInProgress) {
//	    log.Print("a run is already in progress")
//	}
package syncflow

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/agentstation/syncflow/pkg/detect"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/normalize"
	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/report"
	"github.com/agentstation/syncflow/pkg/resolve"
	"github.com/agentstation/syncflow/pkg/sources"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Client is the sync engine.
type Client interface {

	// Runner starts and cancels runs
	Runner

	// Monitor reports status and history
	Monitor

	// Reviewer manages manual overrides
	Reviewer

	// AutoRunner provides access to scheduled run controls
	AutoRunner

	// Hooks provides access to event callback registration
	Hooks

	// Close stops scheduled runs, cancels any active run, and releases the
	// sources and the history store.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {

	// options are the configured options for the client
	options *options

	// pipeline stages
	sources    *sources.Sources
	normalizer *normalize.Normalizer
	detector   *detect.Detector
	engine     *resolve.Engine
	publisher  publish.Publisher
	history    history.Store

	// run state
	mu     sync.Mutex
	active *run          // nil when idle
	last   *report.Entry // most recent finished run
	closed bool

	// auto run state
	autoMu    sync.Mutex
	runTicker *time.Ticker       // ticker that triggers scheduled runs
	stopCh    chan struct{}      // stop channel for the scheduler
	runCancel context.CancelFunc // cancel function for the scheduler goroutine

	// event hooks for the run lifecycle
	hooks *hooks

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Client with the given options.
func New(opts ...Option) (Client, error) {
	o, err := defaults().apply(opts...)
	if err != nil {
		return nil, err
	}

	engine, err := resolve.NewEngine(o.priority, o.rules...)
	if err != nil {
		return nil, errors.WrapResource("create", "resolution engine", "", err)
	}

	for _, src := range o.sources {
		if _, ok := o.schemas[src.ID()]; !ok {
			return nil, &errors.ConfigError{
				Component: "sources",
				Message:   "no schema configured for source " + src.ID().String(),
			}
		}
	}

	store := o.history
	if store == nil {
		store = history.NewMemoryStore(0)
	}

	c := &client{
		options:    o,
		sources:    sources.NewSources(o.sources...),
		normalizer: normalize.New(o.schemas),
		detector:   detect.New(o.epsilon),
		engine:     engine,
		publisher:  o.publisher,
		history:    store,
		stopCh:     make(chan struct{}),
		hooks:      newHooks(),
	}

	log := logging.Debug()
	log.Int("sources", c.sources.Len()).
		Int("rules", len(o.rules)).
		Int("parallelism", o.parallelism).
		Dur("source_timeout", o.sourceTimeout).
		Msg("Sync engine created")

	// a durable store remembers the last run across restarts
	if last, err := store.Latest(context.Background()); err == nil {
		c.last = last
	}

	if o.autoRunsEnabled {
		if err := c.AutoRunsOn(); err != nil {
			return nil, errors.WrapResource("start", "auto-runs", "", err)
		}
	}

	return c, nil
}

// Close implements Client.
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		if err := c.AutoRunsOff(); err != nil {
			c.closeErr = err
			return
		}

		c.mu.Lock()
		c.closed = true
		active := c.active
		if active != nil && active.phase.Cancellable() {
			active.cancelRequested = true
			active.cancel()
		}
		c.mu.Unlock()
		if active != nil {
			<-active.done
		}

		var errs []error
		if err := cleanup(c.sources.List()); err != nil {
			errs = append(errs, err)
		}
		if err := c.history.Close(); err != nil {
			errs = append(errs, errors.WrapResource("close", "history", "", err))
		}
		c.closeErr = stderrors.Join(errs...)
	})
	return c.closeErr
}
