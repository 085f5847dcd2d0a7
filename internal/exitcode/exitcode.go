package exitcode

import (
	"os"
	"strings"

	"github.com/wefram/sysui/internal/classify"
	"github.com/wefram/sysui/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// PermissionDenied indicates a 403 or a failed permission check
	PermissionDenied = 3

	// ServerError indicates the backend answered with a 5xx status
	ServerError = 4

	// AuthError indicates an authentication failure
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the command was cancelled by SIGINT or SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch classify.Classify(err) {
	case classify.KindNetwork:
		return NetworkError
	case classify.KindUnauthorized:
		return AuthError
	case classify.KindForbidden:
		return PermissionDenied
	case classify.KindServer:
		return ServerError
	case classify.KindValidation:
		return GeneralError
	}

	if code := errors.CodeOf(err); code != "" {
		switch {
		case code == errors.ErrCodeAuthForbidden:
			return PermissionDenied
		case strings.HasPrefix(string(code), "AUTH-"):
			return AuthError
		case code == errors.ErrCodeAPINetwork:
			return NetworkError
		case code == errors.ErrCodeAPIServer:
			return ServerError
		case strings.HasPrefix(string(code), "CONFIG-"):
			return UsageError
		}
		return GeneralError
	}

	// cobra reports usage problems as plain errors
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") || strings.Contains(errMsg, "requires at least") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or configuration)"
	case PermissionDenied:
		return "Permission denied"
	case ServerError:
		return "Server error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
