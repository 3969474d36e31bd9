package server

import (
	"net"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// Performance settings
	RateLimit float64 // Requests per second per IP (0 to disable)
	RateBurst int
	CacheTTL  time.Duration

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Features
	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		PathPrefix:     "/api/v1",
		CORSEnabled:    false,
		CORSOrigins:    []string{},
		AuthEnabled:    false,
		AuthHeader:     "X-API-Key",
		RateLimit:      10,
		RateBurst:      20,
		CacheTTL:       5 * time.Minute,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0, // streaming endpoints hold the connection open
		IdleTimeout:    120 * time.Second,
		MetricsEnabled: true,
	}
}

// Addr returns the host:port the server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
