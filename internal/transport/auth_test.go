package transport

import (
	"net/http"
	"net/url"
	"testing"
)

// TestNoAuth tests that NoAuth applies no authentication.
func TestNoAuth(t *testing.T) {
	auth := &NoAuth{}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req, "test-api-key")

	// Should not have any authentication headers
	if len(req.Header) != 0 {
		t.Errorf("Expected no headers, got %d", len(req.Header))
	}
}

// TestBearerAuth tests Bearer token authentication.
func TestBearerAuth(t *testing.T) {
	auth := &BearerAuth{}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req, "test-api-key")

	authHeader := req.Header.Get("Authorization")
	expected := "Bearer test-api-key"
	if authHeader != expected {
		t.Errorf("Expected Authorization header '%s', got '%s'", expected, authHeader)
	}
}

// TestHeaderAuth tests custom header authentication.
func TestHeaderAuth(t *testing.T) {
	auth := &HeaderAuth{Header: "x-api-key"}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req, "test-api-key")

	headerValue := req.Header.Get("x-api-key")
	if headerValue != "test-api-key" {
		t.Errorf("Expected x-api-key header 'test-api-key', got '%s'", headerValue)
	}

	// Should not have Authorization header
	if req.Header.Get("Authorization") != "" {
		t.Error("Should not have Authorization header")
	}
}

// TestQueryAuth tests query parameter authentication.
func TestQueryAuth(t *testing.T) {
	auth := &QueryAuth{Param: "key"}

	// Test with valid URL
	reqURL, _ := url.Parse("https://example.com/api/records")
	req := &http.Request{
		URL:    reqURL,
		Header: make(http.Header),
	}

	auth.Apply(req, "test-api-key")

	// Check that the query parameter was added
	if req.URL.Query().Get("key") != "test-api-key" {
		t.Errorf("Expected query param 'key=test-api-key', got '%s'", req.URL.RawQuery)
	}

	// Test with existing query parameters
	reqURL2, _ := url.Parse("https://example.com/api/records?existing=value")
	req2 := &http.Request{
		URL:    reqURL2,
		Header: make(http.Header),
	}

	auth.Apply(req2, "test-api-key")

	query := req2.URL.Query()
	if query.Get("key") != "test-api-key" {
		t.Errorf("Expected query param 'key=test-api-key', got '%s'", query.Get("key"))
	}
	if query.Get("existing") != "value" {
		t.Errorf("Expected existing param to be preserved, got '%s'", query.Get("existing"))
	}

	// Test with nil URL (should not panic)
	req3 := &http.Request{
		URL:    nil,
		Header: make(http.Header),
	}

	auth.Apply(req3, "test-api-key")
	// Should not panic and should do nothing
}

// TestAuthFor tests authenticator selection from a configured header name.
func TestAuthFor(t *testing.T) {
	tests := []struct {
		header string
		want   string
		value  string
	}{
		{"", "Authorization", "Bearer secret"},
		{"Authorization", "Authorization", "Bearer secret"},
		{"X-Api-Key", "X-Api-Key", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := &http.Request{Header: make(http.Header)}
			AuthFor(tt.header).Apply(req, "secret")
			if got := req.Header.Get(tt.want); got != tt.value {
				t.Errorf("Expected %s header %q, got %q", tt.want, tt.value, got)
			}
		})
	}
}
