// Package errors defines the coded error type used across sysui so that the
// CLI can print actionable suggestions and pick an exit code.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeAuthBadCredentials ErrorCode = "AUTH-001"
	ErrCodeAuthNotLoggedIn    ErrorCode = "AUTH-002"
	ErrCodeAuthSessionExpired ErrorCode = "AUTH-003"
	ErrCodeAuthForbidden      ErrorCode = "AUTH-004"
	ErrCodeAuthNoRefreshToken ErrorCode = "AUTH-005"

	// API errors (API-001 to API-099)
	ErrCodeAPINetwork    ErrorCode = "API-001"
	ErrCodeAPIServer     ErrorCode = "API-002"
	ErrCodeAPIValidation ErrorCode = "API-003"
	ErrCodeAPIDecode     ErrorCode = "API-004"
	ErrCodeAPIRequest    ErrorCode = "API-005"

	// Credential store errors (STORE-001 to STORE-099)
	ErrCodeStoreUnavailable ErrorCode = "STORE-001"
	ErrCodeStoreWrite       ErrorCode = "STORE-002"
	ErrCodeStoreInvalid     ErrorCode = "STORE-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigRead    ErrorCode = "CONFIG-002"
)

// AppError is an error with a stable code and optional recovery hints.
type AppError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// NewNotLoggedInError is returned by commands that need a stored credential.
func NewNotLoggedInError() *AppError {
	return New(ErrCodeAuthNotLoggedIn, "not logged in").
		WithSuggestion("Run 'sysui auth login' to authenticate")
}

// NewBadCredentialsError wraps a rejected login.
func NewBadCredentialsError(message string, cause error) *AppError {
	return Wrap(ErrCodeAuthBadCredentials, message, cause).
		WithSuggestion("Check the login and password and try again")
}

// NewStoreUnavailableError reports a credential backend that cannot be opened.
func NewStoreUnavailableError(backend string, cause error) *AppError {
	return Wrap(ErrCodeStoreUnavailable, fmt.Sprintf("credential store %q is unavailable", backend), cause).
		WithSuggestion("Check the store.backend and store.path settings with 'sysui config view'")
}

// NewConfigInvalidError reports a configuration value that failed validation.
func NewConfigInvalidError(key, details string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration %s: %s", key, details)).
		WithSuggestion("Run 'sysui config path' to locate the configuration file")
}
