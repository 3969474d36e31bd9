// Package file implements a publisher that writes the merged sheet to a
// local file as CSV, JSON, or YAML.
//
// Each publish writes a temporary file and renames it over the target, so
// the file always holds exactly one complete dataset.
package file

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

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/records"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var _ publish.Publisher = (*Publisher)(nil)

// Publisher writes the merged dataset to a file.
type Publisher struct {
	path   string
	format string
	layout publish.Layout
	now    func() utc.Time
}

// Option configures a file publisher.
type Option func(*Publisher)

// WithFormat sets the output format. By default it is taken from the extension.
func WithFormat(format string) Option {
	return func(p *Publisher) {
		p.format = strings.ToLower(format)
	}
}

// WithLayout sets the column layout.
func WithLayout(l publish.Layout) Option {
	return func(p *Publisher) {
		if len(l) > 0 {
			p.layout = l
		}
	}
}

// WithClock sets the clock used for the Last Synced column.
func WithClock(now func() utc.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// New creates a file publisher writing to path.
func New(path string, opts ...Option) (*Publisher, error) {
	if path == "" {
		return nil, &errors.ValidationError{Field: "path", Message: "path is required"}
	}
	p := &Publisher{
		path:   path,
		layout: publish.DefaultLayout(),
		now:    utc.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.format == "" {
		p.format = formatFor(path)
	}
	switch p.format {
	case FormatCSV, FormatJSON, FormatYAML:
	default:
		return nil, &errors.ValidationError{Field: "format", Value: p.format, Message: "must be one of csv, json, yaml"}
	}
	return p, nil
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatCSV
	}
}

// Destination implements publish.Publisher.
func (p *Publisher) Destination() string {
	return "file:" + p.path
}

// Publish implements publish.Publisher.
func (p *Publisher) Publish(ctx context.Context, entities []records.MergedEntity) (publish.Result, error) {
	if err := ctx.Err(); err != nil {
		return publish.Result{}, err
	}

	rows := p.layout.Rows(entities, p.now())
	data, err := p.encode(rows)
	if err != nil {
		return publish.Result{}, errors.WrapParse(p.format, p.path, err)
	}

	if err := p.write(data); err != nil {
		return publish.Result{}, err
	}

	logging.FromContext(ctx).Debug().
		Str("path", p.path).
		Str("format", p.format).
		Int("rows", len(rows)).
		Msg("Published merged sheet")

	return publish.Result{Destination: p.Destination(), Rows: len(rows)}, nil
}

func (p *Publisher) encode(rows [][]string) ([]byte, error) {
	header := p.layout.Header()

	switch p.format {
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		if err := w.WriteAll(rows); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(objects(header, rows), "", "  ")
	default:
		return yaml.Marshal(objects(header, rows))
	}
}

// objects keys each row's cells by column header.
func objects(header []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		obj := make(map[string]string, len(header))
		for j, h := range header {
			obj[h] = row[j]
		}
		out[i] = obj
	}
	return out
}

// write replaces the target file's contents atomically.
func (p *Publisher) write(data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".publish_*")
	if err != nil {
		return errors.WrapIO("create", "temp file", err)
	}
	tempPath := tempFile.Name()
	defer func() { _ = os.Remove(tempPath) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return errors.WrapIO("write", tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		return errors.WrapIO("close", tempPath, err)
	}
	if err := os.Chmod(tempPath, constants.FilePermissions); err != nil {
		return errors.WrapIO("chmod", tempPath, err)
	}

	// Atomically move temp file to final location
	if err := os.Rename(tempPath, p.path); err != nil {
		return errors.WrapIO("rename", p.path, err)
	}
	return nil
}
