package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wefram/sysui/internal/errors"
)

// Response is a completed HTTP exchange.
type Response struct {
	Status int
	Header http.Header
	Data   []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.Wrap(errors.ErrCodeAPIDecode, "failed to decode response", err)
	}
	return nil
}

// Text returns the body as a string. A body holding a single JSON string is
// unquoted.
func (r *Response) Text() string {
	trimmed := bytes.TrimSpace(r.Data)
	if len(trimmed) > 1 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// errorEnvelope is the error body shape used by the backend.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ResponseError is returned for every failed request. Response is nil when
// no response was received (network failure, timeout, cancellation).
// Endpoint is the unexpanded endpoint the request was built from.
type ResponseError struct {
	Method   string
	URL      string
	Endpoint Endpoint
	Response *Response
	Err      error
}

// Status returns the HTTP status, or 0 when no response was received.
func (e *ResponseError) Status() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.Status
}

// ServerMessage returns the message carried in the error body, if any.
func (e *ResponseError) ServerMessage() string {
	if e.Response == nil {
		return ""
	}

	var env errorEnvelope
	if err := json.Unmarshal(e.Response.Data, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return strings.TrimSpace(e.Response.Text())
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Response == nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if msg := e.ServerMessage(); msg != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Response.Status, msg)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Response.Status)
}

// LogValue implements slog.LogValuer.
func (e *ResponseError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("url", e.URL),
	}
	if e.Endpoint != (Endpoint{}) {
		attrs = append(attrs, slog.String("endpoint", e.Endpoint.String()))
	}
	if e.Response != nil {
		attrs = append(attrs, slog.Int("status", e.Response.Status))
	}
	return slog.GroupValue(attrs...)
}

// Unwrap returns the transport error, if any.
func (e *ResponseError) Unwrap() error {
	return e.Err
}
