package credstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wefram/sysui/internal/log"
)

// fakeVault serves the subset of the KV v2 API the backend uses.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]string
	token   string
	headers http.Header
}

func newFakeVault(t *testing.T) (*fakeVault, *httptest.Server) {
	t.Helper()
	fv := &fakeVault{secrets: make(map[string]map[string]string), token: "s.test"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fv.mu.Lock()
			fv.headers = r.Header.Clone()
			fv.mu.Unlock()
			if r.Header.Get("X-Vault-Token") != fv.token {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/v1/secret/data/*", func(w http.ResponseWriter, r *http.Request) {
		fv.mu.Lock()
		data, ok := fv.secrets[chi.URLParam(r, "*")]
		fv.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"data": data}})
	})
	r.Post("/v1/secret/data/*", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data map[string]string `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fv.mu.Lock()
		fv.secrets[chi.URLParam(r, "*")] = body.Data
		fv.mu.Unlock()
		_, _ = w.Write([]byte(`{"data":{"version":1}}`))
	})
	r.Delete("/v1/secret/metadata/*", func(w http.ResponseWriter, r *http.Request) {
		fv.mu.Lock()
		delete(fv.secrets, chi.URLParam(r, "*"))
		fv.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fv, srv
}

func TestVaultBackend_Contract(t *testing.T) {
	_, srv := newFakeVault(t)
	b, err := NewVaultBackend(VaultConfig{Address: srv.URL + "/", Token: "s.test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	runBackendContract(t, b)
}

func TestVaultBackend_Layout(t *testing.T) {
	fv, srv := newFakeVault(t)
	b, err := NewVaultBackend(VaultConfig{Address: srv.URL, Token: "s.test", Namespace: "team-a", Prefix: "cli/"})
	require.NoError(t, err)

	store := New(b, WithLogger(log.Discard()))
	require.NoError(t, store.Put(context.Background(), testSession()))

	fv.mu.Lock()
	secret, ok := fv.secrets["cli/"+DefaultKey]
	headers := fv.headers
	fv.mu.Unlock()
	require.True(t, ok)
	assert.NotEmpty(t, secret["value"])
	assert.Equal(t, "team-a", headers.Get("X-Vault-Namespace"))

	assert.Equal(t, "T1", store.Get(context.Background()).Token)
}

func TestVaultBackend_Errors(t *testing.T) {
	fv, srv := newFakeVault(t)
	ctx := context.Background()

	b, err := NewVaultBackend(VaultConfig{Address: srv.URL, Token: "wrong"})
	require.NoError(t, err)
	_, err = b.Load(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "status 403")

	fv.mu.Lock()
	fv.secrets["sysui/k"] = map[string]string{"value": "not base64!"}
	fv.secrets["sysui/deleted"] = nil
	fv.mu.Unlock()

	b, err = NewVaultBackend(VaultConfig{Address: srv.URL, Token: "s.test"})
	require.NoError(t, err)
	_, err = b.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = b.Load(ctx, "deleted")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewVaultBackend_Validation(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")

	_, err := NewVaultBackend(VaultConfig{})
	assert.Error(t, err)

	_, err = NewVaultBackend(VaultConfig{Address: "http://vault:8200"})
	assert.ErrorContains(t, err, "token")

	t.Setenv("VAULT_TOKEN", "s.env")
	b, err := NewVaultBackend(VaultConfig{Address: "http://vault:8200"})
	require.NoError(t, err)
	assert.Equal(t, "s.env", b.cfg.Token)
	assert.Equal(t, "secret", b.cfg.Mount)
	assert.Equal(t, "vault", b.Name())
}
