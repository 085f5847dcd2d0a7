// Package api is the shared HTTP dispatcher for the System UI backend.
//
// A single Client carries the default Authorization header for every call.
// Failed requests are reported to registered error hooks exactly once and
// then returned to the caller as *ResponseError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/metrics"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
)

// ErrorHook observes a failed request before the error reaches the caller.
type ErrorHook func(ctx context.Context, err *ResponseError)

// Client is the System UI API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	headers http.Header
	hooks   []ErrorHook
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
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

// WithUserAgent sets the User-Agent default header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.headers.Set("User-Agent", ua)
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics enables request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport(),
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				})),
			Timeout: DefaultTimeout,
		},
		logger:  log.DefaultLogger(),
		headers: http.Header{},
	}
	c.headers.Set("User-Agent", "sysui")
	c.headers.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthorizationHeader sets the default Authorization header. An empty
// value removes it. Requests built after the call observe the new value.
func (c *Client) SetAuthorizationHeader(value string) {
	c.SetHeader(headerAuthorization, value)
}

// AuthorizationHeader returns the current default Authorization header.
func (c *Client) AuthorizationHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get(headerAuthorization)
}

// SetHeader sets a default header; an empty value removes it.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		c.headers.Del(key)
		return
	}
	c.headers.Set(key, value)
}

// OnError registers a hook run for every failed request.
func (c *Client) OnError(hook ErrorHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, ep Endpoint, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, ep, nil, opts...)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, ep Endpoint, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodHead, ep, nil, opts...)
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, ep Endpoint, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodOptions, ep, nil, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, ep Endpoint, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, ep, nil, opts...)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, ep Endpoint, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, ep, body, opts...)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, ep Endpoint, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, ep, body, opts...)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, ep Endpoint, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, ep, body, opts...)
}

// Do performs a request. body may be nil, a []byte or json.RawMessage sent
// as is, or any value marshaled to JSON.
//
// Any non-2xx status or transport failure yields a *ResponseError after the
// error hooks have run.
func (c *Client) Do(ctx context.Context, method string, ep Endpoint, body any, opts ...RequestOption) (*Response, error) {
	var cfg requestConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	target := c.baseURL + ep.URLPath(cfg.params)
	if len(cfg.query) > 0 {
		target += "?" + cfg.query.Encode()
	}

	reqBody, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIRequest, "failed to create request", err)
	}

	c.mu.RLock()
	for key, values := range c.headers {
		req.Header[key] = slices.Clone(values)
	}
	hooks := slices.Clone(c.hooks)
	c.mu.RUnlock()

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerRequestID, uuid.NewString())
	for key, values := range cfg.headers {
		req.Header[key] = values
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		return nil, c.fail(ctx, hooks, &ResponseError{Method: method, URL: target, Endpoint: ep, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, c.fail(ctx, hooks, &ResponseError{Method: method, URL: target, Endpoint: ep, Err: err})
	}

	r := &Response{Status: resp.StatusCode, Header: resp.Header, Data: data}

	c.logger.DebugContext(ctx, "api request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(headerRequestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(ctx, hooks, &ResponseError{Method: method, URL: target, Endpoint: ep, Response: r})
	}
	return r, nil
}

func (c *Client) fail(ctx context.Context, hooks []ErrorHook, rerr *ResponseError) error {
	c.logger.WithError(rerr).DebugContext(ctx, "api request failed")
	for _, hook := range hooks {
		hook(ctx, rerr)
	}
	return rerr
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeAPIRequest, "failed to marshal request body", err)
		}
		return bytes.NewReader(data), nil
	}
}
