// Package classify turns failed requests into user-facing text and drives
// the side effects of a rejected credential: a re-authentication prompt
// when a session looked valid, or a redirect to login when none existed.
package classify

import (
	"context"
	"errors"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/metrics"
)

// Session is the part of the authorization service the classifier needs.
type Session interface {
	IsLoggedIn() bool
	BeginReauthentication() bool
}

// Prompter asks the user to sign in again without leaving the current task.
type Prompter interface {
	RequestReauthentication(ctx context.Context)
}

// Navigator sends the user to the login screen.
type Navigator interface {
	NavigateToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context)

// NavigateToLogin implements Navigator.
func (f NavigatorFunc) NavigateToLogin(ctx context.Context) { f(ctx) }

// Classifier is the dispatcher's error hook.
type Classifier struct {
	session   Session
	prompter  Prompter
	navigator Navigator
	logger    *log.Logger
	metrics   *metrics.Metrics
	exempt    map[string]bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Classifier) {
		c.logger = l
	}
}

// WithMetrics enables failure metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// WithExemptEndpoints lists endpoints whose 401 is a bad-credentials answer
// rather than an expired session (the login endpoint).
func WithExemptEndpoints(endpoints ...api.Endpoint) Option {
	return func(c *Classifier) {
		for _, ep := range endpoints {
			c.exempt[ep.String()] = true
		}
	}
}

// New creates a Classifier.
func New(session Session, prompter Prompter, navigator Navigator, opts ...Option) *Classifier {
	c := &Classifier{
		session:   session,
		prompter:  prompter,
		navigator: navigator,
		logger:    log.DefaultLogger(),
		exempt:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Install registers the classifier as an error hook on client.
func (c *Classifier) Install(client *api.Client) {
	client.OnError(func(ctx context.Context, rerr *api.ResponseError) {
		c.HandleCaughtResponse(ctx, rerr)
	})
}

// HandleCaughtResponse runs the side effects for a failed request and
// returns its Kind. It never panics.
func (c *Classifier) HandleCaughtResponse(ctx context.Context, err error) (kind Kind) {
	kind = Classify(err)

	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "response handler panicked", "panic", r, "kind", kind.String())
		}
	}()

	if kind == KindNone {
		return kind
	}
	c.metrics.RecordFailure(kind.String())

	if kind != KindUnauthorized || c.isExempt(err) {
		return kind
	}

	if c.session != nil && c.session.IsLoggedIn() {
		c.session.BeginReauthentication()
		c.metrics.RecordReauthPrompt()
		c.logger.InfoContext(ctx, "session rejected by server; requesting re-authentication")
		if c.prompter != nil {
			c.prompter.RequestReauthentication(ctx)
		}
		return kind
	}

	c.logger.DebugContext(ctx, "unauthenticated request rejected; navigating to login")
	if c.navigator != nil {
		c.navigator.NavigateToLogin(ctx)
	}
	return kind
}

func (c *Classifier) isExempt(err error) bool {
	var rerr *api.ResponseError
	if !errors.As(err, &rerr) {
		return false
	}
	return c.exempt[rerr.Endpoint.String()]
}
