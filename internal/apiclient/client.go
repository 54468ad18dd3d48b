// Package apiclient is the HTTP client every dashboard call goes through. It
// attaches the session's bearer token, normalizes failures into APIError or
// NetworkError, and ends the session on any 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/entities"
	"github.com/mrlokans/campusadmin/internal/navigation"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultSignInRoute = "/signin"
)

// TokenSource is the part of the token store the client depends on.
type TokenSource interface {
	Load() (*entities.TokenPair, error)
	Clear() error
}

// Client issues requests relative to a base URL.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenSource
	navigator   navigation.Navigator
	signInRoute string
	metrics     *Metrics
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSignInRoute sets where a 401 redirects to.
func WithSignInRoute(route string) Option {
	return func(c *Client) {
		if route != "" {
			c.signInRoute = route
		}
	}
}

// WithMetrics enables request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client. nav may be nil, in which case 401s still clear the
// token store but redirect nowhere.
func New(baseURL string, tokens TokenSource, nav navigation.Navigator, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		tokens:      tokens,
		navigator:   nav,
		signInRoute: defaultSignInRoute,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestOption adjusts an outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a header on the request. Authorization set here is
// overridden when a session token exists.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// Request sends method to baseURL+path. body, when non-nil, is sent as JSON.
// Non-2xx responses return *APIError; transport failures return *NetworkError.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	if pair := c.currentToken(); pair != nil {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(method, 0, start)
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("API request failed")
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.observe(method, 0, start)
		return nil, &NetworkError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.metrics.observe(method, httpResp.StatusCode, start)
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request")

	resp := parseResponse(httpResp, raw)
	if resp.OK() {
		return resp, nil
	}

	if resp.Status == http.StatusUnauthorized {
		c.forceSignOut()
	}
	return nil, newAPIError(resp)
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, body, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, opts...)
}

func (c *Client) currentToken() *entities.TokenPair {
	if c.tokens == nil {
		return nil
	}
	pair, err := c.tokens.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Could not load session token, sending request unauthenticated")
		return nil
	}
	return pair
}

// forceSignOut runs on every 401, whichever request triggered it.
func (c *Client) forceSignOut() {
	c.metrics.forcedSignOut()

	if c.tokens != nil {
		if err := c.tokens.Clear(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear session tokens after 401")
		}
	}

	if c.navigator != nil && c.navigator.Location() != c.signInRoute {
		c.navigator.RedirectTo(c.signInRoute)
	}
}
