// Package auth bridges the session endpoints of the backend with the
// credential store, the in-memory session state and the dispatcher's
// Authorization header.
//
// The Service is the only writer of those three. Every result it applies
// (login, refresh, whoami, drop) updates all of them under a single lock, so
// a reader never observes the stored credential, the header and the state
// disagreeing. When results race, the last one applied wins.
package auth

import (
	"context"
	stderrors "errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/credstore"
	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/metrics"
	"github.com/wefram/sysui/internal/session"
	"github.com/wefram/sysui/internal/telemetry"
	"github.com/wefram/sysui/pkg/sysui/types"
)

// Endpoints locates the session endpoints.
type Endpoints struct {
	Login   api.Endpoint
	Touch   api.Endpoint
	Refresh api.Endpoint
	Logout  api.Endpoint
}

// DefaultEndpoints returns the endpoints served by the system app.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:   api.NewEndpoint("system", "session/login"),
		Touch:   api.NewEndpoint("system", "session/touch"),
		Refresh: api.NewEndpoint("system", "session/refresh"),
		Logout:  api.NewEndpoint("system", "session/logout"),
	}
}

// Service orchestrates login, logout and session validation.
type Service struct {
	client    *api.Client
	store     *credstore.Store
	state     *session.State
	endpoints Endpoints
	logger    *log.Logger
	metrics   *metrics.Metrics

	applyMu sync.Mutex

	phaseMu sync.Mutex
	phase   Phase
}

// Option configures a Service.
type Option func(*Service)

// WithEndpoints overrides the session endpoints.
func WithEndpoints(e Endpoints) Option {
	return func(s *Service) {
		s.endpoints = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics enables auth metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a Service over its collaborators.
func New(client *api.Client, store *credstore.Store, state *session.State, opts ...Option) *Service {
	s := &Service{
		client:    client,
		store:     store,
		state:     state,
		endpoints: DefaultEndpoints(),
		logger:    log.DefaultLogger(),
		phase:     PhaseUnauthenticated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the dispatcher.
func (s *Service) Client() *api.Client { return s.client }

// State returns the session state.
func (s *Service) State() *session.State { return s.state }

// Store returns the credential store.
func (s *Service) Store() *credstore.Store { return s.store }

// Restore attaches the stored credential, if any, to the dispatcher. It does
// not populate the session state; call InitializeFromServer to validate.
func (s *Service) Restore(ctx context.Context) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	stored := s.store.Get(ctx)
	if stored == nil {
		s.client.SetAuthorizationHeader("")
		return false
	}
	s.client.SetAuthorizationHeader(stored.BearerToken())
	return true
}

// Resume restores the stored credential and trusts its user and
// permissions until the server rejects the token. It suits one-shot
// callers that would rather take a re-authentication prompt on 401 than pay
// a validation round trip up front.
func (s *Service) Resume(ctx context.Context) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	stored := s.store.Get(ctx)
	if stored == nil {
		s.client.SetAuthorizationHeader("")
		return false
	}
	s.client.SetAuthorizationHeader(stored.BearerToken())
	s.state.Replace(&stored.User, stored.Permissions)
	s.setPhase(PhaseAuthenticated)
	return true
}

// InitializeFromServer validates the attached credential against the touch
// endpoint. Any failure drops the local session and is returned.
func (s *Service) InitializeFromServer(ctx context.Context) (err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, "initialize")
	defer func() {
		s.metrics.RecordAuth("initialize", err == nil)
		telemetry.RecordError(span, err)
		span.End()
	}()

	resp, err := s.client.Get(ctx, s.endpoints.Touch)
	if err != nil {
		s.dropAfterFailure(ctx, err)
		return err
	}

	sr, err := types.DecodeSessionResponse(resp.Data)
	if err != nil {
		s.dropAfterFailure(ctx, err)
		return err
	}

	return s.InitializeFromStruct(ctx, sr)
}

// InitializeFromStruct applies a whoami payload. A nil payload or a payload
// without a user drops the credential and clears the state.
func (s *Service) InitializeFromStruct(ctx context.Context, sr *types.SessionResponse) error {
	if sr == nil || sr.User == nil {
		return s.DropSession(ctx)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.state.Replace(sr.User, sr.Permissions)
	s.setPhase(PhaseAuthenticated)
	return nil
}

// Authenticate posts credentials to the login endpoint. On success the
// session is stored, the Authorization header is set and the state replaced
// before returning. Request failures are returned unchanged as
// *api.ResponseError.
func (s *Service) Authenticate(ctx context.Context, username, password string) (_ *types.AuthorizationSession, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, "login")
	defer func() {
		s.metrics.RecordAuth("login", err == nil)
		telemetry.RecordError(span, err)
		span.End()
	}()

	prev := s.beginAuthenticating()

	resp, err := s.client.Post(ctx, s.endpoints.Login, types.LoginRequest{Username: username, Password: password})
	if err != nil {
		s.restorePhase(prev)
		return nil, err
	}

	issued, err := s.apply(ctx, resp)
	if err != nil {
		s.restorePhase(prev)
		return nil, err
	}

	telemetry.RecordSuccess(span, attribute.String("user.id", issued.User.ID))
	s.logger.InfoContext(ctx, "signed in", "user", issued.User.Login)
	return issued, nil
}

// Refresh exchanges the stored refresh token for a new session. It is only
// called explicitly.
func (s *Service) Refresh(ctx context.Context) (_ *types.AuthorizationSession, err error) {
	ctx, span := telemetry.StartAuthSpan(ctx, "refresh")
	defer func() {
		s.metrics.RecordAuth("refresh", err == nil)
		telemetry.RecordError(span, err)
		span.End()
	}()

	stored := s.store.Get(ctx)
	if stored == nil {
		return nil, errors.New(errors.ErrCodeAuthNoRefreshToken, "no stored session to refresh").
			WithSuggestion("Sign in with 'sysui auth login'")
	}

	resp, err := s.client.Post(ctx, s.endpoints.Refresh, types.RefreshRequest{RefreshToken: stored.RefreshToken})
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, resp)
}

// Logout drops the local session. It does not contact the server.
func (s *Service) Logout(ctx context.Context) error {
	ctx, span := telemetry.StartAuthSpan(ctx, "logout")
	defer span.End()

	err := s.DropSession(ctx)
	s.metrics.RecordAuth("logout", err == nil)
	telemetry.RecordError(span, err)
	return err
}

// LogoutRemote notifies the logout endpoint and then drops the local session
// regardless of the outcome. The server error, if any, is returned.
func (s *Service) LogoutRemote(ctx context.Context) error {
	_, remoteErr := s.client.Post(ctx, s.endpoints.Logout, nil)
	if err := s.Logout(ctx); err != nil {
		return stderrors.Join(remoteErr, err)
	}
	return remoteErr
}

// DropSession clears the stored credential, the Authorization header and
// the session state.
func (s *Service) DropSession(ctx context.Context) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	err := s.store.Clear(ctx)
	s.client.SetAuthorizationHeader("")
	s.state.Clear()
	s.setPhase(PhaseUnauthenticated)
	return err
}

// AuthorizationToken returns "Bearer <token>" for the stored credential.
func (s *Service) AuthorizationToken(ctx context.Context) (string, bool) {
	stored := s.store.Get(ctx)
	if stored == nil {
		return "", false
	}
	return stored.BearerToken(), true
}

// IsLoggedIn reports whether the session state holds a user.
func (s *Service) IsLoggedIn() bool {
	return s.state.Authenticated()
}

// Phase returns the current lifecycle phase.
func (s *Service) Phase() Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	return s.phase
}

// BeginReauthentication moves Authenticated to Reauthenticating and reports
// whether the transition happened.
func (s *Service) BeginReauthentication() bool {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	if s.phase != PhaseAuthenticated {
		return false
	}
	s.phase = PhaseReauthenticating
	return true
}

// apply decodes an issued session and installs it.
func (s *Service) apply(ctx context.Context, resp *api.Response) (*types.AuthorizationSession, error) {
	issued, err := types.DecodeAuthorizationSession(resp.Data)
	if err == nil && issued == nil {
		err = &types.DecodeError{Schema: "authorization session", Cause: stderrors.New("empty body")}
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIDecode, "server returned an unusable session", err)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if err := s.store.Put(ctx, issued); err != nil {
		return nil, err
	}
	s.client.SetAuthorizationHeader(issued.BearerToken())
	s.state.Replace(&issued.User, issued.Permissions)
	s.setPhase(PhaseAuthenticated)
	return issued, nil
}

func (s *Service) dropAfterFailure(ctx context.Context, cause error) {
	s.logger.WithError(cause).DebugContext(ctx, "session validation failed; dropping local session")
	if err := s.DropSession(ctx); err != nil {
		s.logger.WithError(err).WarnContext(ctx, "failed to clear stored session")
	}
}

func (s *Service) setPhase(p Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
}

func (s *Service) beginAuthenticating() Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	prev := s.phase
	if prev == PhaseUnauthenticated {
		s.phase = PhaseAuthenticating
	}
	return prev
}

func (s *Service) restorePhase(prev Phase) {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	if s.phase == PhaseAuthenticating {
		s.phase = prev
	}
}
