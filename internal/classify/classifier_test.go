package classify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/auth"
	"github.com/wefram/sysui/internal/credstore"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/metrics"
	"github.com/wefram/sysui/internal/session"
	"github.com/wefram/sysui/internal/testserver"
	"github.com/wefram/sysui/pkg/sysui/types"
)

type navigationRecorder struct {
	count int
}

func (n *navigationRecorder) NavigateToLogin(context.Context) { n.count++ }

type harness struct {
	srv       *testserver.Server
	svc       *auth.Service
	client    *api.Client
	prompt    *ReauthPrompt
	navigator *navigationRecorder
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := testserver.New(t)
	srv.AddUser("alice", "secret", types.UserSummary{ID: "u-1", FirstName: "Alice"}, []string{"crm.read"})

	_, m := metrics.NewRegistry()
	client := api.New(srv.URL, api.WithLogger(log.Discard()))
	store := credstore.New(credstore.NewMemoryBackend(), credstore.WithLogger(log.Discard()))
	svc := auth.New(client, store, session.New(), auth.WithLogger(log.Discard()))

	h := &harness{
		srv:       srv,
		svc:       svc,
		client:    client,
		prompt:    NewReauthPrompt(),
		navigator: &navigationRecorder{},
		metrics:   m,
	}
	New(svc, h.prompt, h.navigator,
		WithLogger(log.Discard()),
		WithMetrics(m),
		WithExemptEndpoints(auth.DefaultEndpoints().Login),
	).Install(client)
	return h
}

var contacts = api.Endpoint{App: "crm", Version: "v1", Path: "contacts"}

func TestUnauthorizedWhileLoggedIn_PromptsWithoutNavigation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Authenticate(ctx, "alice", "secret")
	require.NoError(t, err)

	h.srv.RevokeAll()
	_, err = h.client.Get(ctx, contacts)

	var rerr *api.ResponseError
	require.ErrorAs(t, err, &rerr, "the original error still reaches the caller")
	assert.Equal(t, http.StatusUnauthorized, rerr.Status())

	assert.True(t, h.prompt.Requested())
	assert.Equal(t, 0, h.navigator.count)
	assert.Equal(t, auth.PhaseReauthenticating, h.svc.Phase())
	assert.True(t, h.svc.IsLoggedIn(), "in-flight work keeps its session")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReauthPrompts))

	// signing in again resolves the prompt
	_, err = h.svc.Authenticate(ctx, "alice", "secret")
	require.NoError(t, err)
	h.prompt.Resolve()
	assert.False(t, h.prompt.Requested())
	assert.Equal(t, auth.PhaseAuthenticated, h.svc.Phase())

	_, err = h.client.Get(ctx, contacts)
	require.NoError(t, err)
}

func TestUnauthorizedWhileLoggedOut_NavigatesToLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Get(context.Background(), contacts)
	require.Error(t, err)

	assert.Equal(t, 1, h.navigator.count)
	assert.False(t, h.prompt.Requested())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RequestFailures.WithLabelValues("unauthorized")))
}

func TestBadCredentialsOnLoginHaveNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Authenticate(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, MsgBadCredentials, LoginErrorMessage(err))
	assert.Equal(t, 0, h.navigator.count)
	assert.False(t, h.prompt.Requested())
}

func TestForbiddenHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Authenticate(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = h.client.Post(ctx, contacts, map[string]string{"name": "Dodo"})
	require.Error(t, err)
	assert.Equal(t, KindForbidden, Classify(err))
	assert.Equal(t, MsgForbidden, ResponseErrorMessage(err))
	assert.False(t, h.prompt.Requested())
	assert.Equal(t, 0, h.navigator.count)
	assert.Equal(t, auth.PhaseAuthenticated, h.svc.Phase())
}

func TestBadCredentialsOnLoginUnderBasePath(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(backend.Close)

	client := api.New(backend.URL+"/api", api.WithLogger(log.Discard()))
	store := credstore.New(credstore.NewMemoryBackend(), credstore.WithLogger(log.Discard()))
	svc := auth.New(client, store, session.New(), auth.WithLogger(log.Discard()))
	prompt := NewReauthPrompt()
	nav := &navigationRecorder{}
	New(svc, prompt, nav,
		WithLogger(log.Discard()),
		WithExemptEndpoints(auth.DefaultEndpoints().Login),
	).Install(client)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "alice", "wrong")
	require.Error(t, err)
	mu.Lock()
	assert.Equal(t, []string{"/api/system/session/login"}, paths)
	mu.Unlock()
	assert.Equal(t, MsgBadCredentials, LoginErrorMessage(err))
	assert.Equal(t, 0, nav.count, "signed out")

	require.NoError(t, svc.InitializeFromStruct(ctx, &types.SessionResponse{
		User:        &types.UserSummary{ID: "u-1", Login: "alice"},
		Permissions: []string{},
	}))
	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.False(t, prompt.Requested(), "signed in")
	assert.Equal(t, 0, nav.count)

	_, err = client.Get(ctx, contacts)
	require.Error(t, err)
	assert.True(t, prompt.Requested(), "other endpoints under the base path still raise the prompt")
}

type panickingNavigator struct{}

func (panickingNavigator) NavigateToLogin(context.Context) { panic("router not ready") }

func TestHandleCaughtResponse_NeverPanics(t *testing.T) {
	c := New(nil, nil, panickingNavigator{}, WithLogger(log.Discard()))

	assert.NotPanics(t, func() {
		kind := c.HandleCaughtResponse(context.Background(), responseError(401, ""))
		assert.Equal(t, KindUnauthorized, kind)
	})
	assert.NotPanics(t, func() {
		assert.Equal(t, KindNone, c.HandleCaughtResponse(context.Background(), nil))
		assert.Equal(t, KindOther, c.HandleCaughtResponse(context.Background(), errors.New("x")))
	})
}

func TestNavigatorFunc(t *testing.T) {
	called := false
	var nav Navigator = NavigatorFunc(func(context.Context) { called = true })
	nav.NavigateToLogin(context.Background())
	assert.True(t, called)
}

func TestReauthPrompt_Subscribe(t *testing.T) {
	p := NewReauthPrompt()
	var seen []bool
	cancel := p.Subscribe(func(v bool) { seen = append(seen, v) })

	p.RequestReauthentication(context.Background())
	p.RequestReauthentication(context.Background())
	p.Resolve()
	cancel()
	p.RequestReauthentication(context.Background())

	assert.Equal(t, []bool{true, false}, seen)
	assert.True(t, p.Requested())
}
