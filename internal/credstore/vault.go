package credstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// VaultConfig locates a HashiCorp Vault KV v2 engine.
type VaultConfig struct {
	// Address is the Vault server address, e.g. https://vault.example.com:8200.
	Address string
	// Token authenticates requests. Falls back to VAULT_TOKEN.
	Token string
	// Mount is the KV v2 mount path. (default: "secret")
	Mount string
	// Namespace is the Vault Enterprise namespace, if any.
	Namespace string
	// Prefix is prepended to every key. (default: "sysui/")
	Prefix string
	// Timeout bounds each request. (default: 10s)
	Timeout time.Duration
}

// VaultBackend stores values as secrets in a Vault KV v2 engine. Each value
// is written base64-encoded under the "value" field of the secret.
type VaultBackend struct {
	cfg        VaultConfig
	httpClient *http.Client
}

// NewVaultBackend validates cfg and returns a backend. It does not contact
// Vault.
func NewVaultBackend(cfg VaultConfig) (*VaultBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token is required (set store.vault_token or VAULT_TOKEN)")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sysui/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.Address = strings.TrimRight(cfg.Address, "/")

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = cfg.Timeout
	return &VaultBackend{cfg: cfg, httpClient: hc}, nil
}

// Name implements Backend.
func (v *VaultBackend) Name() string { return "vault" }

type vaultSecret struct {
	Data struct {
		Data map[string]string `json:"data"`
	} `json:"data"`
}

// Load implements Backend.
func (v *VaultBackend) Load(ctx context.Context, key string) ([]byte, error) {
	resp, err := v.do(ctx, http.MethodGet, v.url("data", key), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, vaultStatusError("read", resp)
	}

	var secret vaultSecret
	if err := json.NewDecoder(resp.Body).Decode(&secret); err != nil {
		return nil, fmt.Errorf("failed to decode vault secret: %w", err)
	}
	encoded, ok := secret.Data.Data["value"]
	if !ok {
		// soft-deleted secrets come back without data
		return nil, ErrNotFound
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrCorrupt
	}
	return value, nil
}

// Save implements Backend.
func (v *VaultBackend) Save(ctx context.Context, key string, value []byte) error {
	payload, err := json.Marshal(map[string]any{
		"data": map[string]string{"value": base64.StdEncoding.EncodeToString(value)},
	})
	if err != nil {
		return err
	}

	resp, err := v.do(ctx, http.MethodPost, v.url("data", key), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return vaultStatusError("write", resp)
	}
	return nil
}

// Delete implements Backend. It removes the secret with all its versions.
func (v *VaultBackend) Delete(ctx context.Context, key string) error {
	resp, err := v.do(ctx, http.MethodDelete, v.url("metadata", key), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return vaultStatusError("delete", resp)
}

// Close implements Backend.
func (v *VaultBackend) Close() error {
	v.httpClient.CloseIdleConnections()
	return nil
}

// url builds /v1/{mount}/{kind}/{prefix}{key}.
func (v *VaultBackend) url(kind, key string) string {
	return fmt.Sprintf("%s/v1/%s/%s/%s%s", v.cfg.Address, v.cfg.Mount, kind, v.cfg.Prefix, key)
}

func (v *VaultBackend) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault request: %w", err)
	}

	req.Header.Set("X-Vault-Token", v.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.cfg.Namespace)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	return resp, nil
}

func vaultStatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("vault %s failed (status %d): %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
