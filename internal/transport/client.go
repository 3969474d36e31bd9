// Package transport provides the HTTP client remote sources fetch through:
// authentication, a request rate limit, and JSON response decoding.
package transport

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client provides HTTP client functionality with authentication.
type Client struct {
	http    *http.Client
	auth    Authenticator
	token   string
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the credential the authenticator applies.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithRateLimit caps requests at rps per second with the given burst.
// A non-positive rps leaves requests unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout sets the transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a new transport client with the specified authenticator.
func New(auth Authenticator, opts ...Option) *Client {
	if auth == nil {
		auth = &NoAuth{}
	}
	c := &Client{
		http: &http.Client{Timeout: DefaultHTTPTimeout},
		auth: auth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs an HTTP request with authentication applied. It waits for
// the rate limiter first; the wait honors ctx.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if c.token != "" {
		c.auth.Apply(req, c.token)
	}

	// Set common headers
	req.Header.Set("Accept", "application/json")
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req.WithContext(ctx))
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapResource("create", "request", "GET "+url, err)
	}
	return c.Do(ctx, req)
}
