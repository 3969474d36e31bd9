// Package local implements a source that reads records from a file on disk.
// The file is re-read on every fetch, so edits show up in the next run.
package local

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentstation/utc"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// Supported file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// Source loads records from a file path.
type Source struct {
	id     records.SourceID
	path   string
	format string
}

// Option configures a local source.
type Option func(*Source)

// WithFormat sets the file format. By default it is taken from the extension.
func WithFormat(format string) Option {
	return func(s *Source) {
		s.format = strings.ToLower(format)
	}
}

// New creates a new local source reading path.
func New(id records.SourceID, path string, opts ...Option) (*Source, error) {
	if path == "" {
		return nil, &errors.ValidationError{Field: "path", Message: "path is required"}
	}
	s := &Source{id: id, path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.format == "" {
		s.format = FormatFor(path)
	}
	switch s.format {
	case FormatJSON, FormatYAML, FormatCSV:
	default:
		return nil, &errors.ValidationError{
			Field:   "format",
			Value:   s.format,
			Message: "must be one of json, yaml, csv",
		}
	}
	return s, nil
}

// FormatFor infers a format from a file extension, defaulting to JSON.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".csv":
		return FormatCSV
	default:
		return FormatJSON
	}
}

// ID implements sources.Source.
func (s *Source) ID() records.SourceID {
	return s.id
}

// Fetch implements sources.Source.
func (s *Source) Fetch(ctx context.Context) (*records.SourceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.WrapIO("read", s.path, err)
	}

	recs, err := Decode(data, s.format)
	if err != nil {
		return nil, errors.WrapParse(s.format, s.path, err)
	}

	return &records.SourceSnapshot{
		SourceID:  s.id,
		FetchedAt: utc.Now(),
		Records:   recs,
	}, nil
}

// Cleanup implements sources.Source.
func (s *Source) Cleanup() error {
	// Files are opened and closed per fetch
	return nil
}

// Decode parses a record list. JSON and YAML files hold an array of
// objects; CSV files hold a header row followed by one row per record.
func Decode(data []byte, format string) ([]records.RawRecord, error) {
	var recs []records.RawRecord
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&recs); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &recs); err != nil {
			return nil, err
		}
	case FormatCSV:
		return decodeCSV(data)
	default:
		return nil, errors.NewValidationError("format", format, "unsupported format")
	}
	return recs, nil
}

func decodeCSV(data []byte) ([]records.RawRecord, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	recs := make([]records.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(records.RawRecord, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
