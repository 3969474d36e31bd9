// Package server provides the HTTP API for the syncflow engine.
//
// The layering is CLI → App → Server → Router → Handlers:
//
//   - Server: lifecycle, engine hooks, and the real-time transports
//   - Config: server configuration with sensible defaults
//   - Router: route registration and middleware chain
//   - Handlers: HTTP request handlers organized by resource
//
// Usage:
//
//	srv, err := server.New(app, server.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv.Start() // Start background services
//	http.ListenAndServe(cfg.Addr(), srv.Handler())
package server

//go:generate gomarkdoc --output README.md .
