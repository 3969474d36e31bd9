package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDefaultAuthConfig(t *testing.T) {
	cfg := DefaultAuthConfig()
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "X-API-Key", cfg.HeaderName)
	assert.Contains(t, cfg.PublicPaths, "/health")
}

func TestAuth(t *testing.T) {
	enabled := DefaultAuthConfig()
	enabled.Enabled = true
	enabled.APIKey = "secret"

	noKey := enabled
	noKey.APIKey = ""

	tests := []struct {
		name   string
		config AuthConfig
		path   string
		header map[string]string
		want   int
	}{
		{name: "disabled", config: DefaultAuthConfig(), path: "/api/v1/runs", want: http.StatusOK},
		{name: "public path", config: enabled, path: "/api/v1/health", want: http.StatusOK},
		{name: "missing key", config: enabled, path: "/api/v1/runs", want: http.StatusUnauthorized},
		{name: "wrong key", config: enabled, path: "/api/v1/runs", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "header key", config: enabled, path: "/api/v1/runs", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusOK},
		{name: "bearer key", config: enabled, path: "/api/v1/runs", header: map[string]string{"Authorization": "Bearer secret"}, want: http.StatusOK},
		{name: "raw authorization", config: enabled, path: "/api/v1/runs", header: map[string]string{"Authorization": "secret"}, want: http.StatusOK},
		{name: "empty configured key rejects", config: noKey, path: "/api/v1/runs", header: map[string]string{"X-API-Key": ""}, want: http.StatusUnauthorized},
	}

	logger := zerolog.Nop()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(tt.config, &logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	cfg := DefaultAuthConfig()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "from-header")
	req.Header.Set("Authorization", "Bearer from-bearer")
	assert.Equal(t, "from-header", extractAPIKey(req, cfg))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer from-bearer")
	assert.Equal(t, "from-bearer", extractAPIKey(req, cfg))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, extractAPIKey(req, cfg))
}
