// Package types holds the wire-level data model shared by the sysui client:
// the persisted authorization session and the whoami payload.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ImplicitScopeAuthenticated is granted to every logged-in user.
const ImplicitScopeAuthenticated = "authenticated"

// UserSummary describes the signed-in user as returned by the backend.
type UserSummary struct {
	ID         string `json:"id" yaml:"id"`
	Login      string `json:"login" yaml:"login"`
	FirstName  string `json:"firstName" yaml:"first_name"`
	MiddleName string `json:"middleName,omitempty" yaml:"middle_name,omitempty"`
	LastName   string `json:"lastName" yaml:"last_name"`
	FullName   string `json:"fullName,omitempty" yaml:"full_name,omitempty"`
	Locale     string `json:"locale,omitempty" yaml:"locale,omitempty"`
	Timezone   string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// DisplayName returns the first and last name joined by a space.
func (u UserSummary) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// AuthorizationSession is the credential issued by a successful login. It is
// either complete or absent; see Validate.
type AuthorizationSession struct {
	Token        string      `json:"token" yaml:"token"`
	RefreshToken string      `json:"refreshToken" yaml:"refresh_token"`
	User         UserSummary `json:"user" yaml:"user"`
	Permissions  []string    `json:"permissions" yaml:"permissions"`
	Expire       string      `json:"expire" yaml:"expire"`
}

// Validate reports whether every field of the session is populated.
func (s *AuthorizationSession) Validate() error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if s.Token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if s.RefreshToken == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	if s.User.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if s.Permissions == nil {
		return fmt.Errorf("permissions list is missing")
	}
	if s.Expire == "" {
		return fmt.Errorf("expire cannot be empty")
	}
	return nil
}

// BearerToken returns the Authorization header value for the session.
func (s *AuthorizationSession) BearerToken() string {
	return "Bearer " + s.Token
}

// Expiry parses the advisory expiration timestamp.
func (s *AuthorizationSession) Expiry() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s.Expire); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SessionResponse is the payload of the whoami/touch endpoint.
type SessionResponse struct {
	User        *UserSummary `json:"user" yaml:"user"`
	Permissions []string     `json:"permissions" yaml:"permissions"`
}

// LoginRequest is the body posted to the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body posted to the refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// DecodeError reports a payload that does not match the expected schema.
type DecodeError struct {
	Schema string
	Cause  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Schema, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// DecodeAuthorizationSession strictly decodes a session. A JSON null decodes
// to nil without error; a partial session is rejected.
func DecodeAuthorizationSession(data []byte) (*AuthorizationSession, error) {
	if isNull(data) {
		return nil, nil
	}

	var s AuthorizationSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &DecodeError{Schema: "authorization session", Cause: err}
	}
	if err := s.Validate(); err != nil {
		return nil, &DecodeError{Schema: "authorization session", Cause: err}
	}
	return &s, nil
}

// DecodeSessionResponse decodes a whoami payload. Null or empty bodies decode
// to nil.
func DecodeSessionResponse(data []byte) (*SessionResponse, error) {
	if isNull(data) {
		return nil, nil
	}

	var r SessionResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &DecodeError{Schema: "session", Cause: err}
	}
	if r.User != nil && r.User.ID == "" {
		return nil, &DecodeError{Schema: "session", Cause: fmt.Errorf("user ID cannot be empty")}
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	return &r, nil
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
