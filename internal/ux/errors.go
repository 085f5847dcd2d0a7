package ux

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wefram/sysui/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{Err: err, Suggestion: suggestion}
}

// EnhanceError adds a suggestion for well-known failure patterns. Errors
// that already carry suggestions are returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && len(appErr.Suggestions) > 0 {
		return err
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		return NewErrorWithSuggestion(err,
			"Check that the backend is running and that api.url is correct ('sysui config view')")
	case strings.Contains(errMsg, "deadline exceeded") || strings.Contains(errMsg, "timeout"):
		return NewErrorWithSuggestion(err,
			"The backend did not answer in time; raise api.timeout or retry later")
	case strings.Contains(errMsg, "certificate"):
		return NewErrorWithSuggestion(err,
			"The backend TLS certificate is not trusted by this machine")
	case strings.Contains(errMsg, "permission denied"):
		return NewErrorWithSuggestion(err,
			"Check permissions of the credential store directory (store.path)")
	}

	return err
}

// FormatError renders an error for the terminal: the message in red, then
// any suggestions.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder

	var appErr *errors.AppError
	var hinted *ErrorWithSuggestion
	switch {
	case stderrors.As(err, &appErr):
		msg := fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message)
		if appErr.Cause != nil {
			msg += ": " + appErr.Cause.Error()
		}
		b.WriteString(Bad("Error: ") + msg + "\n")
		for _, s := range appErr.Suggestions {
			b.WriteString(Hint("  • "+s) + "\n")
		}
	case stderrors.As(err, &hinted):
		b.WriteString(Bad("Error: ") + hinted.Err.Error() + "\n")
		b.WriteString(Hint("  • "+hinted.Suggestion) + "\n")
	default:
		b.WriteString(Bad("Error: ") + err.Error() + "\n")
	}
	return b.String()
}
