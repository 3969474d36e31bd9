// Package httpjson implements a source that fetches records from a JSON
// HTTP API through the shared transport client.
package httpjson

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/internal/transport"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/records"
)

// Source fetches one JSON document per run and extracts its records.
type Source struct {
	id          records.SourceID
	url         string
	recordsPath string
	client      *transport.Client
}

// Option configures an HTTP source.
type Option func(*Source)

// WithRecordsPath sets the dot-separated path to the records array, for
// example "data.items". Empty means the document itself is the array.
func WithRecordsPath(path string) Option {
	return func(s *Source) {
		s.recordsPath = path
	}
}

// WithClient sets the transport client.
func WithClient(c *transport.Client) Option {
	return func(s *Source) {
		s.client = c
	}
}

// New creates an HTTP source reading url.
func New(id records.SourceID, url string, opts ...Option) (*Source, error) {
	if url == "" {
		return nil, &errors.ValidationError{Field: "url", Message: "url is required"}
	}
	s := &Source{id: id, url: url}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = transport.New(nil)
	}
	return s, nil
}

// ID implements sources.Source.
func (s *Source) ID() records.SourceID {
	return s.id
}

// Fetch implements sources.Source.
func (s *Source) Fetch(ctx context.Context) (*records.SourceSnapshot, error) {
	logger := logging.FromContext(ctx)

	resp, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, errors.WrapResource("fetch", "source", s.id.String(), err)
	}

	var doc any
	if err := transport.DecodeResponse(resp, s.id.String(), &doc); err != nil {
		if errors.IsRateLimited(err) {
			logger.Warn().Str("url", s.url).Msg("Source rate limited the request")
		}
		return nil, err
	}

	recs, err := Extract(doc, s.recordsPath)
	if err != nil {
		return nil, errors.NewParseError("json", s.url, err.Error(), err)
	}

	logger.Debug().Str("url", s.url).Int("records", len(recs)).Msg("Fetched records over HTTP")

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

// Extract walks path through doc and returns the array found there. Each
// element must be a JSON object.
func Extract(doc any, path string) ([]records.RawRecord, error) {
	node := doc
	if path != "" {
		for _, key := range strings.Split(path, ".") {
			obj, ok := node.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("path %q: %q is not inside an object", path, key)
			}
			if node, ok = obj[key]; !ok {
				return nil, fmt.Errorf("path %q: key %q not found", path, key)
			}
		}
	}

	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("path %q does not hold an array", path)
	}

	out := make([]records.RawRecord, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not an object", i, item)
		}
		out = append(out, records.RawRecord(obj))
	}
	return out, nil
}
