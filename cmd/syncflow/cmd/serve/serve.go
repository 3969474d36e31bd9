// Package serve provides the HTTP server command.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/cmd/emoji"
	"github.com/agentstation/syncflow/internal/server"
	"github.com/agentstation/syncflow/pkg/constants"
)

// NewCommand creates the serve command.
func NewCommand(app application.Application) *cobra.Command {
	defaults := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Start the REST API server with WebSocket and SSE run events",
		Long: `Start the syncflow control API.

Features:
  - Trigger, cancel and inspect runs (/api/v1/runs)
  - Engine status and run history
  - Manual overrides for fields that need review (/api/v1/overrides)
  - WebSocket run events (/api/v1/updates/ws)
  - Server-Sent Events (/api/v1/updates/stream)
  - Response caching, per-IP rate limiting and optional API key auth
  - Scheduled runs when schedule.enabled is set in the config
  - Graceful shutdown with connection draining`,
		Example: `  # Start on default port 8080
  syncflow serve

  # Require an API key (read from SYNCFLOW_API_KEY)
  SYNCFLOW_API_KEY=secret syncflow serve --auth

  # Allow a browser dashboard
  syncflow serve --cors-origins https://dash.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := parseConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), app, cfg)
		},
	}

	// Server configuration flags
	cmd.Flags().IntP("port", "p", defaults.Port, "Server port")
	cmd.Flags().String("host", defaults.Host, "Bind address")
	cmd.Flags().String("prefix", defaults.PathPrefix, "API path prefix")

	// CORS flags
	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	// Authentication flags
	cmd.Flags().Bool("auth", false, "Enable API key authentication (key from SYNCFLOW_API_KEY)")
	cmd.Flags().String("auth-header", defaults.AuthHeader, "Authentication header name")

	// Performance flags
	cmd.Flags().Float64("rate-limit", defaults.RateLimit, "Requests per second per IP (0 to disable)")
	cmd.Flags().Int("rate-burst", defaults.RateBurst, "Burst size for the rate limiter")
	cmd.Flags().Duration("cache-ttl", defaults.CacheTTL, "Response cache TTL")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", defaults.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", defaults.WriteTimeout, "HTTP write timeout (0 keeps event streams open)")
	cmd.Flags().Duration("idle-timeout", defaults.IdleTimeout, "HTTP idle timeout")

	// Features flags
	cmd.Flags().Bool("metrics", defaults.MetricsEnabled, "Enable metrics endpoint")

	return cmd
}

// runServer starts the API server and blocks until ctx is cancelled.
func runServer(ctx context.Context, app application.Application, cfg server.Config) error {
	logger := app.Logger()

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Bool("auth", cfg.AuthEnabled).
		Float64("rate_limit", cfg.RateLimit).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("Starting API server")

	srv, err := server.New(app, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start background services (WebSocket hub, SSE broadcaster, event broker)
	srv.Start()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return startWithGracefulShutdown(ctx, httpServer, srv, logger)
}

// parseConfig parses command flags into server configuration.
func parseConfig(cmd *cobra.Command) (server.Config, error) {
	cfg := server.DefaultConfig()
	cfg.Port = mustGetInt(cmd, "port")
	cfg.Host = mustGetString(cmd, "host")
	cfg.PathPrefix = mustGetString(cmd, "prefix")
	cfg.CORSEnabled = mustGetBool(cmd, "cors")
	cfg.CORSOrigins = mustGetStringSlice(cmd, "cors-origins")
	cfg.AuthEnabled = mustGetBool(cmd, "auth")
	cfg.AuthHeader = mustGetString(cmd, "auth-header")
	cfg.RateLimit = mustGetFloat64(cmd, "rate-limit")
	cfg.RateBurst = mustGetInt(cmd, "rate-burst")
	cfg.CacheTTL = mustGetDuration(cmd, "cache-ttl")
	cfg.ReadTimeout = mustGetDuration(cmd, "read-timeout")
	cfg.WriteTimeout = mustGetDuration(cmd, "write-timeout")
	cfg.IdleTimeout = mustGetDuration(cmd, "idle-timeout")
	cfg.MetricsEnabled = mustGetBool(cmd, "metrics")

	if len(cfg.CORSOrigins) > 0 {
		cfg.CORSEnabled = true
	}

	// Override with environment variables
	if envPort := os.Getenv("HTTP_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
		p, err := parsePort(envPort)
		if err != nil {
			return cfg, err
		}
		cfg.Port = p
	}
	if envHost := os.Getenv("HTTP_HOST"); envHost != "" && !cmd.Flags().Changed("host") {
		cfg.Host = envHost
	}
	cfg.APIKey = os.Getenv("SYNCFLOW_API_KEY")

	if cfg.AuthEnabled && cfg.APIKey == "" {
		return cfg, fmt.Errorf("--auth requires SYNCFLOW_API_KEY to be set")
	}
	return cfg, nil
}

// parsePort safely parses a port string to integer.
func parsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// startWithGracefulShutdown starts the HTTP server with graceful shutdown.
// The context carries the signal handling from main.go; when it is cancelled
// the server drains its connections and stops the background services.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Msg("HTTP server listening")

		fmt.Printf("%s API server listening on %s\n", emoji.Success, httpServer.Addr)
		fmt.Println("   Press Ctrl+C to stop")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
		fmt.Printf("\n%s Shutting down API server...\n", emoji.Error)

		// The parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}

		logger.Info().Msg("Server stopped gracefully")
		fmt.Printf("%s API server stopped gracefully\n", emoji.Success)
		return nil
	}
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}
