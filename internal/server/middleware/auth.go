package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled     bool
	APIKey      string
	HeaderName  string
	PublicPaths []string
}

// DefaultAuthConfig returns default authentication configuration. The key
// itself comes from server configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:     false,
		HeaderName:  "X-API-Key",
		PublicPaths: []string{"/health", "/api/v1/health", "/api/v1/ready"},
	}
}

// Auth middleware validates API keys for protected endpoints.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip authentication if disabled
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			if slices.Contains(config.PublicPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := extractAPIKey(r, config)
			if !validKey(apiKey, config.APIKey) {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", apiKey != "").
					Msg("Authentication failed")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"data":null,"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key","details":"Provide a valid API key in the ` + config.HeaderName + ` header"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validKey compares keys in constant time. An empty configured key never
// matches.
func validKey(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// extractAPIKey extracts the API key from the request.
func extractAPIKey(r *http.Request, config AuthConfig) string {
	// Try custom header first (X-API-Key)
	if apiKey := r.Header.Get(config.HeaderName); apiKey != "" {
		return apiKey
	}

	// Support both "Bearer <key>" and raw key
	auth := r.Header.Get("Authorization")
	if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return key
	}
	return auth
}
