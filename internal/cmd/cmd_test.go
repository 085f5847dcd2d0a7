package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wefram/sysui/internal/config"
	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/exitcode"
	"github.com/wefram/sysui/internal/health"
	"github.com/wefram/sysui/internal/testserver"
	"github.com/wefram/sysui/internal/ux"
	"github.com/wefram/sysui/internal/version"
	"github.com/wefram/sysui/pkg/sysui/types"
)

var alice = types.UserSummary{ID: "u-1", Login: "alice", FirstName: "Alice", LastName: "Liddell"}

type harness struct {
	t        *testing.T
	srv      *testserver.Server
	storeDir string
	stdin    string
	prompter *ux.ScriptedPrompter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	srv := testserver.New(t)
	srv.AddUser("alice", "wonderland", alice, []string{"crm.read"})

	return &harness{t: t, srv: srv, storeDir: t.TempDir()}
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (h *harness) run(args ...string) result {
	h.t.Helper()

	rootCmd, opts := newRootCmd()
	if h.prompter != nil {
		opts.prompter = h.prompter
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(h.stdin))
	rootCmd.SetArgs(append([]string{
		"--api-url", h.srv.URL,
		"--store-backend", config.BackendFile,
		"--store-path", h.storeDir,
	}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(h.t, opts.close(context.Background()))
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func (h *harness) login() {
	h.t.Helper()
	res := h.run("auth", "login", "-u", "alice", "-p", "wonderland")
	require.NoError(h.t, res.err)
}

func TestLoginStatusLogout(t *testing.T) {
	h := newHarness(t)

	res := h.run("auth", "login", "-u", "alice", "-p", "wonderland")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Signed in as Alice Liddell")

	res = h.run("auth", "status", "-o", "json")
	require.NoError(t, res.err)
	var status statusView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &status))
	assert.True(t, status.SignedIn)
	assert.Equal(t, "file", status.Store)
	assert.Equal(t, "alice", status.User.Login)
	assert.Equal(t, []string{"crm.read"}, status.Permissions)
	require.NotNil(t, status.Token)
	assert.Equal(t, "alice", status.Token.Subject)
	assert.False(t, status.Expired)

	res = h.run("auth", "logout")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Signed out")

	res = h.run("auth", "status", "-o", "json")
	require.NoError(t, res.err)
	status = statusView{}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &status))
	assert.False(t, status.SignedIn)
	assert.Nil(t, status.User)
}

func TestStatusText(t *testing.T) {
	h := newHarness(t)

	res := h.run("auth", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Not signed in")

	h.login()
	res = h.run("auth", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Alice Liddell (alice)")
	assert.Contains(t, res.stdout, "crm.read")
}

func TestLogoutRemote(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("auth", "logout", "--remote")
	require.NoError(t, res.err)
	assert.Equal(t, 1, h.srv.Hits("POST", "/system/session/logout"))

	res = h.run("auth", "status", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"signedIn": false`)
}

func TestLoginBadCredentials(t *testing.T) {
	tests := []struct {
		name    string
		locale  string
		message string
	}{
		{name: "english", locale: "en", message: "Login or password incorrect"},
		{name: "russian", locale: "ru", message: "Неверный логин или пароль"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			res := h.run("--locale", tt.locale, "auth", "login", "-u", "alice", "-p", "nope")
			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), tt.message)
			assert.Equal(t, errors.ErrCodeAuthBadCredentials, errors.CodeOf(res.err))
			assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
		})
	}
}

func TestLoginPrompts(t *testing.T) {
	h := newHarness(t)
	h.prompter = &ux.ScriptedPrompter{Login: "alice", Secret: "wonderland"}

	res := h.run("auth", "login")
	require.NoError(t, res.err)
	assert.Equal(t, 1, h.prompter.Requests)
	assert.Contains(t, res.stdout, "Signed in as Alice Liddell")
}

func TestLoginWithoutTerminal(t *testing.T) {
	h := newHarness(t)

	res := h.run("auth", "login", "-u", "alice")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
	assert.Zero(t, h.srv.Hits("POST", "/system/session/login"))
}

func TestLoginPasswordStdin(t *testing.T) {
	h := newHarness(t)
	h.stdin = "wonderland\n"

	res := h.run("auth", "login", "-u", "alice", "--password-stdin", "-o", "json")
	require.NoError(t, res.err)

	var view sessionView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, "alice", view.User.Login)
	assert.NotEmpty(t, view.Expire)
	assert.NotContains(t, res.stdout, "token")
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)

	res := h.run("auth", "whoami")
	require.Error(t, res.err)
	assert.Equal(t, errors.ErrCodeAuthNotLoggedIn, errors.CodeOf(res.err))

	h.login()
	res = h.run("auth", "whoami", "-o", "json")
	require.NoError(t, res.err)
	var view sessionView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, "u-1", view.User.ID)
	assert.Equal(t, []string{"crm.read"}, view.Permissions)
}

func TestWhoamiRevokedDropsCredential(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.RevokeAll()

	res := h.run("auth", "whoami")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
	assert.Contains(t, res.stderr, "You are not signed in")

	res = h.run("auth", "status", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"signedIn": false`)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)

	res := h.run("auth", "refresh")
	require.Error(t, res.err)
	assert.Equal(t, errors.ErrCodeAuthNoRefreshToken, errors.CodeOf(res.err))

	h.login()
	res = h.run("auth", "refresh")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Session refreshed")
	assert.Equal(t, 1, h.srv.Hits("POST", "/system/session/refresh"))

	res = h.run("auth", "whoami")
	require.NoError(t, res.err)
}

func TestCan(t *testing.T) {
	h := newHarness(t)

	res := h.run("can", "authenticated")
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, "no")
	assert.Equal(t, exitcode.PermissionDenied, exitcode.DetermineExitCode(res.err))

	h.login()

	tests := []struct {
		name      string
		scopes    []string
		permitted bool
	}{
		{name: "no scopes", scopes: nil, permitted: true},
		{name: "implicit", scopes: []string{"authenticated"}, permitted: true},
		{name: "granted", scopes: []string{"crm.read"}, permitted: true},
		{name: "one missing", scopes: []string{"crm.read", "crm.write"}, permitted: false},
		{name: "case sensitive", scopes: []string{"CRM.READ"}, permitted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(append([]string{"can", "-o", "json"}, tt.scopes...)...)

			var view canView
			require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
			assert.Equal(t, tt.permitted, view.Permitted)
			assert.Equal(t, "alice", view.User)
			if tt.permitted {
				assert.NoError(t, res.err)
			} else {
				require.Error(t, res.err)
				assert.Equal(t, exitcode.PermissionDenied, exitcode.DetermineExitCode(res.err))
			}
		})
	}
}

func TestAPIGet(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("api", "get", "crm", "contacts", "--api-version", "v1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Cheshire Cat")
	assert.Zero(t, h.srv.Hits("GET", "/system/session/touch"))
}

func TestAPIPostShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "wonderland", alice, []string{"crm.read", "crm.write"})
	h.login()

	res := h.run("api", "post", "crm", "contacts", "--api-version", "v1", "--data", `{"name":"March Hare"}`)
	require.NoError(t, res.err)
	assert.Equal(t, "Contact created\n", res.stdout)

	res = h.run("api", "delete", "crm", "contacts/{id}", "--api-version", "v1", "--param", "id=1")
	require.NoError(t, res.err)
	assert.Equal(t, "Request succeeded\n", res.stdout)
	assert.Equal(t, 1, h.srv.Hits("DELETE", "/crm/v1/contacts/1"))
}

func TestAPIForbiddenHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	h.prompter = &ux.ScriptedPrompter{Secret: "wonderland"}
	h.login()

	res := h.run("api", "delete", "crm", "contacts/{id}", "--api-version", "v1", "--param", "id=1")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Access denied")
	assert.Equal(t, exitcode.PermissionDenied, exitcode.DetermineExitCode(res.err))
	assert.Zero(t, h.prompter.Requests)
	assert.NotContains(t, res.stderr, "You are not signed in")

	res = h.run("auth", "status", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"signedIn": true`)
}

func TestAPIReauthenticatesAndRetries(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.RevokeAll()
	h.prompter = &ux.ScriptedPrompter{Secret: "wonderland"}

	res := h.run("api", "get", "crm", "contacts", "--api-version", "v1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Cheshire Cat")
	assert.Equal(t, 1, h.prompter.Requests)
	assert.Equal(t, 2, h.srv.Hits("POST", "/system/session/login"))
	assert.Equal(t, 2, h.srv.Hits("GET", "/crm/v1/contacts"))
	assert.NotContains(t, res.stderr, "You are not signed in")
}

func TestAPIReauthWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.RevokeAll()
	h.prompter = &ux.ScriptedPrompter{Secret: "wrong"}

	res := h.run("api", "get", "crm", "contacts", "--api-version", "v1")
	require.Error(t, res.err)
	assert.Equal(t, errors.ErrCodeAuthBadCredentials, errors.CodeOf(res.err))
	assert.Equal(t, 1, h.srv.Hits("GET", "/crm/v1/contacts"))
}

func TestAPIReauthWithoutPrompter(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.RevokeAll()

	res := h.run("api", "get", "crm", "contacts", "--api-version", "v1")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
	assert.Equal(t, 1, h.srv.Hits("POST", "/system/session/login"))
}

func TestAPIAnonymousUnauthorizedShowsLoginHint(t *testing.T) {
	h := newHarness(t)
	h.prompter = &ux.ScriptedPrompter{Secret: "wonderland"}

	res := h.run("api", "get", "crm", "contacts", "--api-version", "v1")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "You are not signed in")
	assert.Zero(t, h.prompter.Requests)
}

func TestAPIValidationMessage(t *testing.T) {
	h := newHarness(t)

	res := h.run("api", "get", "status", "{code}", "--param", "code=400", "-q", "body=Name is required")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Name is required")
	assert.Equal(t, exitcode.GeneralError, exitcode.DetermineExitCode(res.err))

	res = h.run("api", "get", "status", "{code}", "--param", "code=503")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Server error")
	assert.Equal(t, exitcode.ServerError, exitcode.DetermineExitCode(res.err))
}

func TestAPIArguments(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "bad method", args: []string{"api", "fetch", "crm", "contacts"}},
		{name: "bad param", args: []string{"api", "get", "crm", "contacts", "--param", "id"}},
		{name: "bad query", args: []string{"api", "get", "crm", "contacts", "-q", "=x"}},
		{name: "bad body", args: []string{"api", "post", "crm", "contacts", "--data", "{"}},
		{name: "missing args", args: []string{"api", "get", "crm"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(tt.args...)
			require.Error(t, res.err)
		})
	}
	assert.Zero(t, h.srv.Hits("GET", "/crm/contacts"))
}

func TestAPIDataFromFile(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "wonderland", alice, []string{"crm.write"})
	h.login()

	path := filepath.Join(t.TempDir(), "contact.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"Dormouse"}`), 0o600))

	res := h.run("api", "post", "crm", "contacts", "--api-version", "v1", "--data", "@"+path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Contact created")
}

func TestConfigView(t *testing.T) {
	h := newHarness(t)

	res := h.run("config", "view", "-o", "json")
	require.NoError(t, res.err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &cfg))
	assert.Equal(t, h.srv.URL, cfg.API.URL)
	assert.Equal(t, h.storeDir, cfg.Store.Path)

	res = h.run("config", "path")
	require.NoError(t, res.err)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".sysui", "config.yaml")+"\n", res.stdout)
}

func TestConfigViewRedactsPassphrase(t *testing.T) {
	h := newHarness(t)
	t.Setenv("SYSUI_STORE_PASSPHRASE", "hunter2")

	res := h.run("config", "view")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stdout, "hunter2")
	assert.Contains(t, res.stdout, "********")
}

func TestSealedStore(t *testing.T) {
	h := newHarness(t)
	t.Setenv("SYSUI_STORE_PASSPHRASE", "hunter2")
	h.login()

	data, err := os.ReadFile(filepath.Join(h.storeDir, "systemui.authorization.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "alice")

	res := h.run("auth", "whoami")
	require.NoError(t, res.err)

	t.Setenv("SYSUI_STORE_PASSPHRASE", "other")
	res = h.run("auth", "status", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"signedIn": false`)
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness(t)

	res := h.run("--store-backend", "floppy", "auth", "status")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
}

func TestMetricsTextfile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "sysui.prom")

	res := h.run("--metrics-out", path, "auth", "login", "-u", "alice", "-p", "wonderland")
	require.NoError(t, res.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sysui_auth_operations_total")
	assert.Contains(t, string(data), "sysui_api_requests_total")
}

func TestDoctor(t *testing.T) {
	h := newHarness(t)

	res := h.run("doctor", "-o", "json")
	require.NoError(t, res.err)
	var report health.Report
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, health.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 3)
	assert.Equal(t, "backend", report.Checks[0].Name)
	assert.Equal(t, health.StatusHealthy, report.Checks[1].Status)
	assert.Equal(t, "not signed in", report.Checks[2].Message)

	h.login()
	res = h.run("doctor")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "signed in")

	h.srv.Close()
	res = h.run("doctor")
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, "unreachable")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	res := h.run("version")
	require.NoError(t, res.err)
	assert.Equal(t, "sysui "+version.Version+"\n", res.stdout)

	res = h.run("version", "--json")
	require.NoError(t, res.err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, version.Version, info.Version)
}
