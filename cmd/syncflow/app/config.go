package app

import (
	"os"
)

// Config holds the CLI settings: global flags plus the logging environment.
// The engine configuration itself lives in internal/config and is loaded
// from ConfigFile on first use.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Logging configuration. LogLevel comes from --log-level and
	// EnvLogLevel from LOG_LEVEL.
	LogLevel    string
	EnvLogLevel string
	LogFormat   string
	LogOutput   string
}

// LoadConfig loads CLI settings from the environment. Flags parsed by cobra
// take precedence and are applied with UpdateFromFlags.
func LoadConfig() (*Config, error) {
	return &Config{
		ConfigFile:  os.Getenv("SYNCFLOW_CONFIG"),
		EnvLogLevel: os.Getenv("LOG_LEVEL"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput:   getEnvOrDefault("LOG_OUTPUT", "stderr"),
		NoColor:     os.Getenv("NO_COLOR") != "",
	}, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over environment variables.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel, configFile string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if configFile != "" {
		c.ConfigFile = configFile
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
