// Package demo provides built-in sample sources: a CRM, a project tracker,
// and a spreadsheet, with the overlaps and disagreements a real sync sees.
package demo

import (
	"context"
	"embed"
	"fmt"
	"slices"
	"time"

	"github.com/agentstation/utc"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// Datasets.
const (
	CRM     = "crm"
	Tracker = "tracker"
	Sheet   = "sheet"
)

//go:embed data/*.yaml
var data embed.FS

// Datasets returns the names of the embedded datasets.
func Datasets() []string {
	return []string{CRM, Sheet, Tracker}
}

// Load parses an embedded dataset.
func Load(dataset string) ([]records.RawRecord, error) {
	if !slices.Contains(Datasets(), dataset) {
		return nil, errors.NewNotFoundError("dataset", dataset)
	}
	file := fmt.Sprintf("data/%s.yaml", dataset)
	raw, err := data.ReadFile(file)
	if err != nil {
		return nil, errors.WrapIO("read", file, err)
	}
	var recs []records.RawRecord
	if err := yaml.Unmarshal(raw, &recs); err != nil {
		return nil, errors.WrapParse("yaml", file, err)
	}
	return recs, nil
}

// Source serves one embedded dataset.
type Source struct {
	id      records.SourceID
	dataset string
	latency time.Duration
}

// Option configures a demo source.
type Option func(*Source)

// WithLatency delays each fetch, as a remote API would.
func WithLatency(d time.Duration) Option {
	return func(s *Source) {
		s.latency = d
	}
}

// New creates a demo source serving dataset under id.
func New(id records.SourceID, dataset string, opts ...Option) (*Source, error) {
	if !slices.Contains(Datasets(), dataset) {
		return nil, &errors.ValidationError{
			Field:   "dataset",
			Value:   dataset,
			Message: fmt.Sprintf("must be one of %v", Datasets()),
		}
	}
	s := &Source{id: id, dataset: dataset}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID implements sources.Source.
func (s *Source) ID() records.SourceID {
	return s.id
}

// Fetch implements sources.Source.
func (s *Source) Fetch(ctx context.Context) (*records.SourceSnapshot, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recs, err := Load(s.dataset)
	if err != nil {
		return nil, errors.WrapResource("fetch", "dataset", s.dataset, err)
	}
	return &records.SourceSnapshot{
		SourceID:  s.id,
		FetchedAt: utc.Now(),
		Records:   recs,
	}, nil
}

// Cleanup implements sources.Source.
func (s *Source) Cleanup() error {
	return nil
}
