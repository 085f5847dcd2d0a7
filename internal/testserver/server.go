// Package testserver is an in-process fake of the System UI session
// endpoints and a small protected resource, for tests.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wefram/sysui/pkg/sysui/types"
)

// Account is a user known to the fake backend.
type Account struct {
	Password    string
	User        types.UserSummary
	Permissions []string
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server

	secret []byte
	ttl    time.Duration

	mu            sync.Mutex
	accounts      map[string]Account
	revoked       map[string]bool
	refreshTokens map[string]string
	touchOverride *string
	hits          map[string]int
}

// New starts a fake backend and registers its shutdown with t.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:        []byte("test-secret-" + uuid.NewString()),
		ttl:           time.Hour,
		accounts:      make(map[string]Account),
		revoked:       make(map[string]bool),
		refreshTokens: make(map[string]string),
		hits:          make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.count)

	r.Route("/system/session", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/touch", s.handleTouch)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Get("/crm/v1/contacts", s.requirePermission("crm.read", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "1", "name": "Cheshire Cat"}})
	}))
	r.Post("/crm/v1/contacts", s.requirePermission("crm.write", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, "Contact created")
	}))
	r.Delete("/crm/v1/contacts/{id}", s.requirePermission("crm.write", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Get("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		var code int
		if _, err := fmt.Sscanf(chi.URLParam(r, "code"), "%d", &code); err != nil || code < 100 {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, r.URL.Query().Get("body"))
	})

	return r
}

// AddUser registers an account.
func (s *Server) AddUser(login, password string, user types.UserSummary, permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Login == "" {
		user.Login = login
	}
	s.accounts[login] = Account{Password: password, User: user, Permissions: permissions}
}

// SetTouchResponse makes the touch endpoint return body verbatim with 200.
func (s *Server) SetTouchResponse(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchOverride = &body
}

// RevokeAll invalidates every issued access token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte("test-secret-" + uuid.NewString())
}

// Hits returns how many times "METHOD /path" was requested.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// Issue returns a session for login as the login endpoint would.
func (s *Server) Issue(login string) (*types.AuthorizationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[login]
	if !ok {
		return nil, fmt.Errorf("unknown account %q", login)
	}
	return s.issueLocked(login, account)
}

func (s *Server) issueLocked(login string, account Account) (*types.AuthorizationSession, error) {
	now := time.Now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   login,
		Issuer:    "sysui-testserver",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	s.refreshTokens[refresh] = login

	permissions := account.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return &types.AuthorizationSession{
		Token:        token,
		RefreshToken: refresh,
		User:         account.User,
		Permissions:  permissions,
		Expire:       expires.UTC().Format(time.RFC3339),
	}, nil
}

// authenticate resolves the bearer token to an account login.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", false
	}

	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[claims.ID] {
		return "", false
	}
	if _, ok := s.accounts[claims.Subject]; !ok {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[req.Username]
	if !ok || account.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	session, err := s.issueLocked(req.Username, account)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	override := s.touchOverride
	s.mu.Unlock()
	if override != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(*override))
		return
	}

	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusOK, types.SessionResponse{Permissions: []string{}})
		return
	}

	login, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
		return
	}

	s.mu.Lock()
	account := s.accounts[login]
	s.mu.Unlock()

	user := account.User
	writeJSON(w, http.StatusOK, types.SessionResponse{User: &user, Permissions: account.Permissions})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req types.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh token is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	login, ok := s.refreshTokens[req.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}
	delete(s.refreshTokens, req.RefreshToken)

	session, err := s.issueLocked(login, s.accounts[login])
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err == nil {
		s.mu.Lock()
		s.revoked[claims.ID] = true
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requirePermission(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, ok := s.authenticate(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}

		s.mu.Lock()
		granted := slices.Contains(s.accounts[login].Permissions, scope)
		s.mu.Unlock()

		if !granted {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "missing permission " + scope})
			return
		}
		next(w, r)
	}
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
