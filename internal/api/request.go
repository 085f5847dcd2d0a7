package api

import (
	"net/http"
	"net/url"
)

// RequestOption customizes a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	params  map[string]string
	query   url.Values
	headers http.Header
}

// WithPathParams supplies values for {param} placeholders.
func WithPathParams(params map[string]string) RequestOption {
	return func(c *requestConfig) {
		if c.params == nil {
			c.params = make(map[string]string, len(params))
		}
		for k, v := range params {
			c.params[k] = v
		}
	}
}

// WithPathParam supplies a single placeholder value.
func WithPathParam(name, value string) RequestOption {
	return WithPathParams(map[string]string{name: value})
}

// WithQuery adds query string values.
func WithQuery(values url.Values) RequestOption {
	return func(c *requestConfig) {
		if c.query == nil {
			c.query = url.Values{}
		}
		for k, vs := range values {
			for _, v := range vs {
				c.query.Add(k, v)
			}
		}
	}
}

// WithHeader sets a per-request header, overriding any default.
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(key, value)
	}
}
