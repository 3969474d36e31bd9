package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/resolve"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Sources, 3)
	assert.Equal(t, "crm", cfg.PriorityIDs()[0].String())
	assert.Len(t, cfg.Schemas(), 3)
	assert.Equal(t, publish.DefaultLayout(), cfg.Publish.Layout())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - id: crm
    type: file
    path: crm.json
    schema:
      entity_key: Account
      fields:
        - from: Amount
          to: amount
          coerce: currency
  - id: sheet
    type: http
    url: https://sheets.example.com/rows
    token_env: SHEET_TOKEN
    rate_limit: 2
    schema:
      entity_key: Account
priority: [crm, sheet]
rules:
  - field: amount
    strategy: numeric
    aggregation: max
source_timeout: 5s
schedule:
  enabled: true
  interval: 1h
history:
  driver: sqlite
  path: runs.db
  retention: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, path, cfg.File)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, SourceFile, cfg.Sources[0].Type)
	assert.Equal(t, "amount", cfg.Sources[0].Schema.Fields[0].To)
	assert.Equal(t, 2.0, cfg.Sources[1].RateLimit)
	assert.Equal(t, 5*time.Second, cfg.SourceTimeout)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval)
	assert.Equal(t, HistorySQLite, cfg.History.Driver)
	assert.Equal(t, 10, cfg.History.Retention)

	bindings := cfg.Bindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, resolve.Numeric, bindings[0].Rule.Strategy)
	assert.Equal(t, resolve.Max, bindings[0].Rule.Aggregation)
}

func TestLoadFallsBackToDemoSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epsilon: 0.01\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Sources, 3)
	assert.Equal(t, Default().Priority, cfg.Priority)
	assert.Equal(t, 0.01, cfg.Epsilon)
	assert.Equal(t, PublishFile, cfg.Publish.Type)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNCFLOW_PARALLELISM", "3")
	t.Setenv("SYNCFLOW_HISTORY_LIMIT", "7")

	path := filepath.Join(t.TempDir(), "syncflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallelism: 1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Parallelism)
	assert.Equal(t, 7, cfg.History.Limit)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no sources", func(c *Config) { c.Sources = nil }, "sources"},
		{"duplicate id", func(c *Config) { c.Sources[1].ID = "crm" }, "sources[1].id"},
		{"unknown type", func(c *Config) { c.Sources[0].Type = "ftp" }, "sources[0]"},
		{"file without path", func(c *Config) { c.Sources[0].Type = SourceFile }, "sources[0]"},
		{"http without url", func(c *Config) { c.Sources[0].Type = SourceHTTP }, "sources[0]"},
		{"negative source timeout", func(c *Config) { c.Sources[2].Timeout = -time.Second }, "sources[2].timeout"},
		{"bad schema", func(c *Config) { c.Sources[0].Schema.EntityKey = "" }, "sources[0]"},
		{"unknown priority source", func(c *Config) { c.Priority = append(c.Priority, "erp") }, "priority"},
		{"unknown rule source", func(c *Config) { c.Rules[0].Priority = []string{"erp"} }, "rules[0].priority"},
		{"bad strategy", func(c *Config) { c.Rules[0].Strategy = "coin_flip" }, "rules[0]"},
		{"negative epsilon", func(c *Config) { c.Epsilon = -1 }, "epsilon"},
		{"schedule without interval", func(c *Config) { c.Schedule = ScheduleConfig{Enabled: true} }, "schedule.interval"},
		{"bad publish type", func(c *Config) { c.Publish.Type = "sheets" }, "publish.type"},
		{"bad publish format", func(c *Config) { c.Publish.Format = "xlsx" }, "publish.format"},
		{"negative retention", func(c *Config) { c.History.Retention = -1 }, "history"},
		{"sqlite without path", func(c *Config) { c.History.Driver = HistorySQLite }, "history.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var vErr *errors.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestSourceTimeouts(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.SourceTimeouts(), "demo sources share source_timeout")

	cfg.Sources[1].Timeout = 90 * time.Second
	timeouts := cfg.SourceTimeouts()
	require.Len(t, timeouts, 1)
	assert.Equal(t, 90*time.Second, timeouts["tracker"])
}

func TestSanitizedRedactsTokens(t *testing.T) {
	cfg := Default()
	cfg.Sources[0].Token = "s3cret"
	cfg.Sources[1].TokenEnv = "TRACKER_TOKEN"

	safe := cfg.Sanitized()
	assert.Equal(t, "********", safe.Sources[0].Token)
	assert.Equal(t, "TRACKER_TOKEN", safe.Sources[1].TokenEnv)
	assert.Equal(t, "s3cret", cfg.Sources[0].Token, "original is untouched")
}

func TestResolveToken(t *testing.T) {
	t.Setenv("TRACKER_TOKEN", "from-env")

	assert.Equal(t, "inline", SourceConfig{Token: "inline", TokenEnv: "TRACKER_TOKEN"}.ResolveToken())
	assert.Equal(t, "from-env", SourceConfig{TokenEnv: "TRACKER_TOKEN"}.ResolveToken())
	assert.Empty(t, SourceConfig{}.ResolveToken())
}
