package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/errors"
)

func TestClientAppliesAuth(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(&BearerAuth{}, WithToken("secret"))
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, DecodeResponse(resp, "crm", &body))
	assert.Equal(t, "Bearer secret", got)
	assert.Equal(t, true, body["ok"])
}

func TestClientWithoutTokenSendsNoAuth(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	resp, err := New(&BearerAuth{}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, DecodeResponse(resp, "crm", &[]any{}))
	assert.Empty(t, got)
}

func TestDecodeResponseAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	resp, err := New(nil).Get(context.Background(), srv.URL)
	require.NoError(t, err)

	err = DecodeResponse(resp, "crm", &map[string]any{})
	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
	assert.True(t, errors.IsRateLimited(err))
}

func TestDecodeResponseMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	resp, err := New(nil).Get(context.Background(), srv.URL)
	require.NoError(t, err)

	err = DecodeResponse(resp, "crm", &map[string]any{})
	var parseErr *errors.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestRateLimitWaitHonorsContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(nil, WithRateLimit(0.001, 1))

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}
