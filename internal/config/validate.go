package config

import (
	"fmt"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/resolve"
)

// Validate checks the configuration for structural problems before any
// component is built from it.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return &errors.ValidationError{Field: "sources", Message: "at least one source is required"}
	}

	ids := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if s.ID == "" {
			return &errors.ValidationError{Field: field + ".id", Message: "id is required"}
		}
		if _, dup := ids[s.ID]; dup {
			return &errors.ValidationError{Field: field + ".id", Value: s.ID, Message: "source id used twice"}
		}
		ids[s.ID] = struct{}{}
		if s.Timeout < 0 {
			return &errors.ValidationError{Field: field + ".timeout", Value: s.Timeout, Message: "must not be negative"}
		}

		if err := s.validate(); err != nil {
			return errors.WrapValidation(field, err)
		}
	}

	for _, id := range c.Priority {
		if _, ok := ids[id]; !ok {
			return &errors.ValidationError{Field: "priority", Value: id, Message: "unknown source"}
		}
	}
	for i, r := range c.Rules {
		for _, id := range r.Priority {
			if _, ok := ids[id]; !ok {
				return &errors.ValidationError{Field: fmt.Sprintf("rules[%d].priority", i), Value: id, Message: "unknown source"}
			}
		}
	}
	if _, err := resolve.NewEngine(c.PriorityIDs(), c.Bindings()...); err != nil {
		return err
	}

	if c.Epsilon < 0 {
		return &errors.ValidationError{Field: "epsilon", Value: c.Epsilon, Message: "must not be negative"}
	}
	if c.Parallelism < 0 {
		return &errors.ValidationError{Field: "parallelism", Value: c.Parallelism, Message: "must not be negative"}
	}
	if c.SourceTimeout < 0 || c.RunTimeout < 0 {
		return &errors.ValidationError{Field: "timeout", Message: "timeouts must not be negative"}
	}
	if c.Schedule.Enabled && c.Schedule.Interval <= 0 {
		return &errors.ValidationError{Field: "schedule.interval", Value: c.Schedule.Interval, Message: "must be positive when the schedule is enabled"}
	}

	switch c.Publish.Type {
	case PublishMemory:
	case PublishFile:
		if c.Publish.Path == "" {
			return &errors.ValidationError{Field: "publish.path", Message: "path is required for file publishing"}
		}
		switch c.Publish.Format {
		case "", "csv", "json", "yaml":
		default:
			return &errors.ValidationError{Field: "publish.format", Value: c.Publish.Format, Message: "must be one of csv, json, yaml"}
		}
	default:
		return &errors.ValidationError{Field: "publish.type", Value: c.Publish.Type, Message: "must be one of file, memory"}
	}

	if c.History.Limit < 0 || c.History.Retention < 0 {
		return &errors.ValidationError{Field: "history", Message: "limit and retention must not be negative"}
	}
	switch c.History.Driver {
	case HistoryMemory, "":
	case HistorySQLite:
		if c.History.Path == "" {
			return &errors.ValidationError{Field: "history.path", Message: "path is required for the sqlite driver"}
		}
	default:
		return &errors.ValidationError{Field: "history.driver", Value: c.History.Driver, Message: "must be one of memory, sqlite"}
	}

	return nil
}

func (s SourceConfig) validate() error {
	switch s.Type {
	case SourceDemo:
	case SourceFile:
		if s.Path == "" {
			return &errors.ValidationError{Field: "path", Message: "path is required for file sources"}
		}
	case SourceHTTP:
		if s.URL == "" {
			return &errors.ValidationError{Field: "url", Message: "url is required for http sources"}
		}
		if s.RateLimit < 0 {
			return &errors.ValidationError{Field: "rate_limit", Value: s.RateLimit, Message: "must not be negative"}
		}
	default:
		return &errors.ValidationError{Field: "type", Value: s.Type, Message: "must be one of demo, file, http"}
	}
	return s.Schema.Validate()
}
