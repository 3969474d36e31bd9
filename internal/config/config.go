// Package config loads the sync engine's configuration: the sources and
// their field-mapping schemas, resolution rules, the schedule, and the
// publish and history sinks.
//
// Configuration is layered with Viper, in order of precedence:
//  1. Environment variables (SYNCFLOW_ prefix, "." and "-" become "_")
//  2. .env and .env.local files
//  3. A config file (syncflow.yaml in ".", or ~/.config/syncflow)
//  4. Defaults
//
// When no sources are configured the demo sources are used.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/normalize"
	"github.com/agentstation/syncflow/pkg/publish"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/resolve"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "SYNCFLOW"

// SourceType names a source implementation.
type SourceType string

// Source types.
const (
	SourceDemo SourceType = "demo"
	SourceFile SourceType = "file"
	SourceHTTP SourceType = "http"
)

// PublishType names a publisher implementation.
type PublishType string

// Publish types.
const (
	PublishFile   PublishType = "file"
	PublishMemory PublishType = "memory"
)

// HistoryDriver names a history store implementation.
type HistoryDriver string

// History drivers.
const (
	HistoryMemory HistoryDriver = "memory"
	HistorySQLite HistoryDriver = "sqlite"
)

// Config is the complete engine configuration.
type Config struct {
	Sources       []SourceConfig `mapstructure:"sources" yaml:"sources" json:"sources"`
	Priority      []string       `mapstructure:"priority" yaml:"priority" json:"priority"`
	Rules         []RuleConfig   `mapstructure:"rules" yaml:"rules" json:"rules"`
	Epsilon       float64        `mapstructure:"epsilon" yaml:"epsilon" json:"epsilon"`
	Parallelism   int            `mapstructure:"parallelism" yaml:"parallelism" json:"parallelism"`
	SourceTimeout time.Duration  `mapstructure:"source_timeout" yaml:"source_timeout" json:"source_timeout"`
	RunTimeout    time.Duration  `mapstructure:"run_timeout" yaml:"run_timeout" json:"run_timeout"`
	Schedule      ScheduleConfig `mapstructure:"schedule" yaml:"schedule" json:"schedule"`
	Publish       PublishConfig  `mapstructure:"publish" yaml:"publish" json:"publish"`
	History       HistoryConfig  `mapstructure:"history" yaml:"history" json:"history"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-" json:"file,omitempty"`
}

// SourceConfig configures one source.
type SourceConfig struct {
	ID      string        `mapstructure:"id" yaml:"id" json:"id"`
	Type    SourceType    `mapstructure:"type" yaml:"type" json:"type"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// demo
	Dataset string `mapstructure:"dataset" yaml:"dataset,omitempty" json:"dataset,omitempty"`

	// file
	Path   string `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
	Format string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"`

	// http
	URL         string  `mapstructure:"url" yaml:"url,omitempty" json:"url,omitempty"`
	Token       string  `mapstructure:"token" yaml:"token,omitempty" json:"token,omitempty"`
	TokenEnv    string  `mapstructure:"token_env" yaml:"token_env,omitempty" json:"token_env,omitempty"`
	AuthHeader  string  `mapstructure:"auth_header" yaml:"auth_header,omitempty" json:"auth_header,omitempty"`
	RecordsPath string  `mapstructure:"records_path" yaml:"records_path,omitempty" json:"records_path,omitempty"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Burst       int     `mapstructure:"burst" yaml:"burst,omitempty" json:"burst,omitempty"`

	Schema normalize.Schema `mapstructure:"schema" yaml:"schema" json:"schema"`
}

// SourceID returns the source's ID as a records.SourceID.
func (s SourceConfig) SourceID() records.SourceID {
	return records.SourceID(s.ID)
}

// ResolveToken returns the source's API token, read from the environment
// when TokenEnv is set.
func (s SourceConfig) ResolveToken() string {
	if s.Token != "" {
		return s.Token
	}
	if s.TokenEnv != "" {
		return GetString(s.TokenEnv)
	}
	return ""
}

// RuleConfig binds a resolution rule to a field name or pattern.
type RuleConfig struct {
	Field          string   `mapstructure:"field" yaml:"field" json:"field"`
	Strategy       string   `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	Priority       []string `mapstructure:"priority" yaml:"priority,omitempty" json:"priority,omitempty"`
	TimestampField string   `mapstructure:"timestamp_field" yaml:"timestamp_field,omitempty" json:"timestamp_field,omitempty"`
	TieBreak       string   `mapstructure:"tie_break" yaml:"tie_break,omitempty" json:"tie_break,omitempty"`
	Aggregation    string   `mapstructure:"aggregation" yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
}

// Binding converts the rule config to a resolution binding.
func (r RuleConfig) Binding() resolve.Binding {
	return resolve.Binding{
		Field: r.Field,
		Rule: resolve.Rule{
			Strategy:       resolve.Strategy(r.Strategy),
			Priority:       sourceIDs(r.Priority),
			TimestampField: r.TimestampField,
			TieBreak:       resolve.TieBreak(r.TieBreak),
			Aggregation:    resolve.Aggregation(r.Aggregation),
		},
	}
}

// ScheduleConfig controls scheduled runs.
type ScheduleConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// PublishConfig selects and configures the destination sink.
type PublishConfig struct {
	Type    PublishType      `mapstructure:"type" yaml:"type" json:"type"`
	Path    string           `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
	Format  string           `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"`
	Columns []publish.Column `mapstructure:"columns" yaml:"columns,omitempty" json:"columns,omitempty"`
}

// Layout returns the configured column layout, or the default layout.
func (p PublishConfig) Layout() publish.Layout {
	if len(p.Columns) == 0 {
		return publish.DefaultLayout()
	}
	return publish.Layout(p.Columns)
}

// HistoryConfig selects and configures the run history store. Limit bounds
// the in-memory store; Retention bounds the SQLite store and defaults to
// keeping every run.
type HistoryConfig struct {
	Driver    HistoryDriver `mapstructure:"driver" yaml:"driver" json:"driver"`
	Path      string        `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
	Limit     int           `mapstructure:"limit" yaml:"limit" json:"limit"`
	Retention int           `mapstructure:"retention" yaml:"retention,omitempty" json:"retention,omitempty"`
}

// Load reads the configuration. An empty file searches the standard
// locations and tolerates a missing file; an explicit file must exist.
func Load(file string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("file", "failed to read "+file, err)
		}
	} else {
		v.SetConfigName("syncflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "syncflow"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigError("file", "failed to read config", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("file", "failed to decode config", err)
	}
	cfg.File = v.ConfigFileUsed()

	if len(cfg.Sources) == 0 {
		demo := Default()
		cfg.Sources = demo.Sources
		if len(cfg.Priority) == 0 {
			cfg.Priority = demo.Priority
		}
		if len(cfg.Rules) == 0 {
			cfg.Rules = demo.Rules
		}
	}

	return cfg, nil
}

// setDefaults registers the scalar defaults, which also makes their
// environment variables visible to AutomaticEnv.
func setDefaults(v *viper.Viper) {
	v.SetDefault("epsilon", constants.DefaultEpsilon)
	v.SetDefault("parallelism", 0)
	v.SetDefault("source_timeout", constants.DefaultSourceTimeout)
	v.SetDefault("run_timeout", constants.RunContextTimeout)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval", constants.DefaultRunInterval)
	v.SetDefault("publish.type", string(PublishFile))
	v.SetDefault("publish.path", "merged.csv")
	v.SetDefault("publish.format", "")
	v.SetDefault("history.driver", string(HistoryMemory))
	v.SetDefault("history.path", "")
	v.SetDefault("history.limit", constants.DefaultHistoryLimit)
	v.SetDefault("history.retention", 0)
}

// loadEnvFiles loads environment variables from .env files.
func loadEnvFiles() {
	// .env.local overrides .env
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// GetString reads a value from the OS environment, falling back to Viper.
func GetString(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return viper.GetString(key)
}

// PriorityIDs returns the global source priority list.
func (c *Config) PriorityIDs() []records.SourceID {
	return sourceIDs(c.Priority)
}

// Bindings returns the resolution bindings in configured order.
func (c *Config) Bindings() []resolve.Binding {
	out := make([]resolve.Binding, len(c.Rules))
	for i, r := range c.Rules {
		out[i] = r.Binding()
	}
	return out
}

// Schemas returns each source's field-mapping schema.
func (c *Config) Schemas() map[records.SourceID]normalize.Schema {
	out := make(map[records.SourceID]normalize.Schema, len(c.Sources))
	for _, s := range c.Sources {
		out[s.SourceID()] = s.Schema
	}
	return out
}

// SourceTimeouts returns the timeouts set on individual sources. Sources
// without one use source_timeout.
func (c *Config) SourceTimeouts() map[records.SourceID]time.Duration {
	out := make(map[records.SourceID]time.Duration)
	for _, s := range c.Sources {
		if s.Timeout > 0 {
			out[s.SourceID()] = s.Timeout
		}
	}
	return out
}

// Source returns a source's config by ID.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Sanitized returns a copy safe to display, with tokens redacted.
func (c *Config) Sanitized() *Config {
	out := *c
	out.Sources = make([]SourceConfig, len(c.Sources))
	for i, s := range c.Sources {
		if s.Token != "" {
			s.Token = "********"
		}
		out.Sources[i] = s
	}
	return &out
}

func sourceIDs(ids []string) []records.SourceID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]records.SourceID, len(ids))
	for i, id := range ids {
		out[i] = records.SourceID(id)
	}
	return out
}
