package health

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/auth"
	"github.com/wefram/sysui/pkg/sysui/types"
)

// BackendChecker requests an endpoint that answers anonymous callers. Any
// HTTP answer below 500 means the backend is reachable.
type BackendChecker struct {
	client   *api.Client
	endpoint api.Endpoint
}

// NewBackendChecker checks endpoint through client. The client should not
// carry error hooks or credentials.
func NewBackendChecker(client *api.Client, endpoint api.Endpoint) *BackendChecker {
	return &BackendChecker{client: client, endpoint: endpoint}
}

// Name implements Checker.
func (c *BackendChecker) Name() string { return "backend" }

// Check implements Checker.
func (c *BackendChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	resp, err := c.client.Get(ctx, c.endpoint)
	latency := time.Since(start)

	var rerr *api.ResponseError
	switch {
	case err == nil:
		r := Healthy("backend is reachable").WithDetail("status", resp.Status)
		r.Latency = latency
		return r.WithDetail("url", c.client.BaseURL())
	case stderrors.As(err, &rerr) && rerr.Response == nil:
		return Unhealthy(fmt.Sprintf("backend is unreachable: %v", rerr.Err)).WithDetail("url", c.client.BaseURL())
	case stderrors.As(err, &rerr) && rerr.Status() >= 500:
		return Unhealthy(fmt.Sprintf("backend answered %d", rerr.Status())).WithDetail("url", c.client.BaseURL())
	case stderrors.As(err, &rerr):
		r := Healthy("backend is reachable").WithDetail("status", rerr.Status())
		r.Latency = latency
		return r.WithDetail("url", c.client.BaseURL())
	default:
		return Unhealthy(err.Error())
	}
}

// Prober is a credential store that can verify its backend.
type Prober interface {
	Probe(ctx context.Context) error
	Backend() string
}

// StoreChecker round-trips a probe value through the credential store.
type StoreChecker struct {
	store Prober
}

// NewStoreChecker checks store.
func NewStoreChecker(store Prober) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name implements Checker.
func (c *StoreChecker) Name() string { return "credential-store" }

// Check implements Checker.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	if err := c.store.Probe(ctx); err != nil {
		return Unhealthy(err.Error()).WithDetail("backend", c.store.Backend())
	}
	return Healthy("credential store is writable").WithDetail("backend", c.store.Backend())
}

// SessionSource returns the stored credential, or nil.
type SessionSource interface {
	Get(ctx context.Context) *types.AuthorizationSession
}

// CredentialChecker inspects the stored credential offline. A missing or
// expired credential is degraded: commands still run, but anonymously.
type CredentialChecker struct {
	source SessionSource
	now    func() time.Time
}

// NewCredentialChecker checks the credential held by source.
func NewCredentialChecker(source SessionSource) *CredentialChecker {
	return &CredentialChecker{source: source, now: time.Now}
}

// Name implements Checker.
func (c *CredentialChecker) Name() string { return "credential" }

// Check implements Checker.
func (c *CredentialChecker) Check(ctx context.Context) *Result {
	stored := c.source.Get(ctx)
	if stored == nil {
		return Degraded("not signed in")
	}

	now := c.now()
	if expiry, ok := stored.Expiry(); ok && now.After(expiry) {
		return Degraded("stored credential has expired").
			WithDetail("user", stored.User.Login).
			WithDetail("expire", stored.Expire)
	}
	if info, err := auth.TokenClaims(stored.Token); err == nil && info.Expired(now) {
		return Degraded("access token has expired").
			WithDetail("user", stored.User.Login).
			WithDetail("token_expires", info.ExpiresAt.Format(time.RFC3339))
	}

	return Healthy("signed in").
		WithDetail("user", stored.User.Login).
		WithDetail("expire", stored.Expire)
}
