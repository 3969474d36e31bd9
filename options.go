package syncflow

import (
	"runtime"
	"time"

	"github.com/agentstation/utc"
	"github.com/google/uuid"

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/normalize"
	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/resolve"
	"github.com/agentstation/syncflow/pkg/sources"
)

// options holds the client configuration.
type options struct {
	// collaborators
	sources   []sources.Source
	schemas   map[records.SourceID]normalize.Schema
	publisher publish.Publisher
	history   history.Store

	// resolution
	priority    []records.SourceID
	rules       []resolve.Binding
	epsilon     float64
	parallelism int

	// run limits
	sourceTimeout  time.Duration
	sourceTimeouts map[records.SourceID]time.Duration
	runTimeout     time.Duration

	// auto runs
	autoRunsEnabled bool
	autoRunInterval time.Duration

	// seams for tests
	now   func() utc.Time
	newID func() string
}

// defaults returns the default options.
func defaults() *options {
	return &options{
		schemas:         make(map[records.SourceID]normalize.Schema),
		epsilon:         constants.DefaultEpsilon,
		parallelism:     runtime.GOMAXPROCS(0),
		sourceTimeout:   constants.DefaultSourceTimeout,
		sourceTimeouts:  make(map[records.SourceID]time.Duration),
		runTimeout:      constants.RunContextTimeout,
		autoRunInterval: constants.DefaultRunInterval,
		now:             utc.Now,
		newID:           uuid.NewString,
	}
}

// apply applies the given options in order and stops at the first error.
func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Option configures a Client.
type Option func(*options) error

// WithSources adds sources to the client. Adding a source whose ID is
// already configured replaces it.
func WithSources(srcs ...sources.Source) Option {
	return func(o *options) error {
		for _, src := range srcs {
			if src == nil {
				return &errors.ValidationError{Field: "sources", Message: "cannot be nil"}
			}
			if !src.ID().IsValid() {
				return &errors.ValidationError{Field: "sources", Value: src.ID(), Message: "invalid source id"}
			}
			o.sources = append(o.sources, src)
		}
		return nil
	}
}

// WithSchema sets the field-mapping table for one source.
func WithSchema(id records.SourceID, schema normalize.Schema) Option {
	return func(o *options) error {
		if err := schema.Validate(); err != nil {
			return errors.WrapValidation("schemas."+id.String(), err)
		}
		o.schemas[id] = schema
		return nil
	}
}

// WithSchemas sets the field-mapping tables for several sources.
func WithSchemas(schemas map[records.SourceID]normalize.Schema) Option {
	return func(o *options) error {
		for id, schema := range schemas {
			if err := WithSchema(id, schema)(o); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithPriority sets the global source priority list, highest first.
func WithPriority(ids ...records.SourceID) Option {
	return func(o *options) error {
		o.priority = append([]records.SourceID(nil), ids...)
		return nil
	}
}

// WithRules binds resolution rules to fields. Use resolve.Wildcard as the
// field for a fallback rule.
func WithRules(bindings ...resolve.Binding) Option {
	return func(o *options) error {
		o.rules = append(o.rules, bindings...)
		return nil
	}
}

// WithPublisher sets the destination the merged dataset is written to.
func WithPublisher(p publish.Publisher) Option {
	return func(o *options) error {
		if p == nil {
			return &errors.ValidationError{Field: "publisher", Message: "cannot be nil"}
		}
		o.publisher = p
		return nil
	}
}

// WithHistory sets the history store. The client closes it on Close.
func WithHistory(store history.Store) Option {
	return func(o *options) error {
		if store == nil {
			return &errors.ValidationError{Field: "history", Message: "cannot be nil"}
		}
		o.history = store
		return nil
	}
}

// WithEpsilon sets the tolerance for numeric equality.
func WithEpsilon(epsilon float64) Option {
	return func(o *options) error {
		if epsilon < 0 {
			return &errors.ValidationError{Field: "epsilon", Value: epsilon, Message: "must not be negative"}
		}
		o.epsilon = epsilon
		return nil
	}
}

// WithParallelism sets how many entity groups are resolved concurrently.
func WithParallelism(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "parallelism", Value: n, Message: "must be positive"}
		}
		o.parallelism = n
		return nil
	}
}

// WithSourceTimeout bounds each source fetch.
func WithSourceTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "source_timeout", Value: d, Message: "must be positive"}
		}
		o.sourceTimeout = d
		return nil
	}
}

// WithSourceTimeouts bounds individual sources, overriding the timeout set by
// WithSourceTimeout for each listed source.
func WithSourceTimeouts(timeouts map[records.SourceID]time.Duration) Option {
	return func(o *options) error {
		for id, d := range timeouts {
			if d <= 0 {
				return &errors.ValidationError{Field: "sources." + id.String() + ".timeout", Value: d, Message: "must be positive"}
			}
			o.sourceTimeouts[id] = d
		}
		return nil
	}
}

// timeoutFor returns the fetch timeout for one source.
func (o *options) timeoutFor(id records.SourceID) time.Duration {
	if d, ok := o.sourceTimeouts[id]; ok {
		return d
	}
	return o.sourceTimeout
}

// WithRunTimeout bounds scheduled runs end to end.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "run_timeout", Value: d, Message: "must be positive"}
		}
		o.runTimeout = d
		return nil
	}
}

// WithAutoRuns configures whether scheduled runs start with the client.
func WithAutoRuns(enabled bool) Option {
	return func(o *options) error {
		o.autoRunsEnabled = enabled
		return nil
	}
}

// WithAutoRunInterval configures how often scheduled runs fire.
func WithAutoRunInterval(interval time.Duration) Option {
	return func(o *options) error {
		o.autoRunInterval = interval
		return nil
	}
}

// WithClock replaces the time source.
func WithClock(now func() utc.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "cannot be nil"}
		}
		o.now = now
		return nil
	}
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(newID func() string) Option {
	return func(o *options) error {
		if newID == nil {
			return &errors.ValidationError{Field: "run_ids", Message: "cannot be nil"}
		}
		o.newID = newID
		return nil
	}
}
