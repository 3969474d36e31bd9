// Package registry builds sources from configuration.
// It is kept apart from the source implementations so none of them depend on
// the config package.
package registry

import (
	"fmt"
	"slices"

	"github.com/agentstation/syncflow/internal/config"
	"github.com/agentstation/syncflow/internal/sources/demo"
	"github.com/agentstation/syncflow/internal/sources/httpjson"
	"github.com/agentstation/syncflow/internal/sources/local"
	"github.com/agentstation/syncflow/internal/transport"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/sources"
)

// registry maps source types to their constructors.
var registry = map[config.SourceType]func(config.SourceConfig) (sources.Source, error){
	config.SourceDemo: newDemo,
	config.SourceFile: newLocal,
	config.SourceHTTP: newHTTP,
}

// Get creates a NEW source for the given config.
func Get(cfg config.SourceConfig) (sources.Source, error) {
	newSource, ok := registry[cfg.Type]
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "type",
			Value:   cfg.Type,
			Message: fmt.Sprintf("unsupported source type: %s", cfg.Type),
		}
	}
	src, err := newSource(cfg)
	if err != nil {
		return nil, errors.WrapValidation(fmt.Sprintf("sources[%s]", cfg.ID), err)
	}
	return src, nil
}

// All creates every configured source, failing on the first error.
func All(cfgs []config.SourceConfig) ([]sources.Source, error) {
	out := make([]sources.Source, 0, len(cfgs))
	for _, c := range cfgs {
		src, err := Get(c)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// Has checks if a source type has an implementation.
func Has(t config.SourceType) bool {
	_, ok := registry[t]
	return ok
}

// List returns all source types that have implementations.
func List() []config.SourceType {
	types := make([]config.SourceType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func newDemo(cfg config.SourceConfig) (sources.Source, error) {
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = cfg.ID
	}
	return demo.New(cfg.SourceID(), dataset)
}

func newLocal(cfg config.SourceConfig) (sources.Source, error) {
	return local.New(cfg.SourceID(), cfg.Path, local.WithFormat(cfg.Format))
}

func newHTTP(cfg config.SourceConfig) (sources.Source, error) {
	client := transport.New(
		transport.AuthFor(cfg.AuthHeader),
		transport.WithToken(cfg.ResolveToken()),
		transport.WithRateLimit(cfg.RateLimit, cfg.Burst),
		transport.WithTimeout(cfg.Timeout),
	)
	return httpjson.New(cfg.SourceID(), cfg.URL,
		httpjson.WithRecordsPath(cfg.RecordsPath),
		httpjson.WithClient(client),
	)
}
