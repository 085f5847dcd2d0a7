package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/auth"
	"github.com/wefram/sysui/internal/classify"
	"github.com/wefram/sysui/internal/config"
	"github.com/wefram/sysui/internal/credstore"
	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/metrics"
	"github.com/wefram/sysui/internal/session"
	"github.com/wefram/sysui/internal/telemetry"
	"github.com/wefram/sysui/internal/ux"
	"github.com/wefram/sysui/internal/version"
)

// App wires the session subsystem for one command invocation.
type App struct {
	Config     *config.Config
	Logger     *log.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Client     *api.Client
	Store      *credstore.Store
	State      *session.State
	Auth       *auth.Service
	Classifier *classify.Classifier
	Prompt     *classify.ReauthPrompt
	Messages   *classify.Messages

	// Prompter is nil when nobody can answer a prompt.
	Prompter ux.Prompter

	stderr        io.Writer
	loginHintOnce sync.Once
	shutdown      func(context.Context) error
}

// AppOptions carries what the caller decides outside of configuration.
type AppOptions struct {
	Logger   *log.Logger
	Prompter ux.Prompter
	Stderr   io.Writer
}

// NewApp builds the subsystem from cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version.Version
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	shutdown, err := telemetry.InitProvider(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	reg, m := metrics.NewRegistry()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Prompter: opts.Prompter,
		Prompt:   classify.NewReauthPrompt(),
		Messages: classify.NewMessages(cfg.Locale),
		stderr:   stderr,
		shutdown: shutdown,
	}

	a.Store = credstore.New(backend,
		credstore.WithKey(cfg.Store.Key),
		credstore.WithLogger(logger),
		credstore.WithMetrics(m),
	)
	a.Client = api.New(cfg.API.URL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithUserAgent(version.GetInfo().UserAgent()),
		api.WithLogger(logger),
		api.WithMetrics(m),
	)
	a.State = session.New()
	a.Auth = auth.New(a.Client, a.Store, a.State,
		auth.WithLogger(logger),
		auth.WithMetrics(m),
	)
	a.Classifier = classify.New(a.Auth, a.Prompt, classify.NavigatorFunc(a.showLoginHint),
		classify.WithLogger(logger),
		classify.WithMetrics(m),
		classify.WithExemptEndpoints(auth.DefaultEndpoints().Login),
	)
	a.Classifier.Install(a.Client)

	return a, nil
}

// showLoginHint is the CLI's "navigate to login": it tells the user once per
// invocation how to sign in.
func (a *App) showLoginHint(context.Context) {
	a.loginHintOnce.Do(func() {
		fmt.Fprintln(a.stderr, ux.Warn(a.Messages.Text(classify.MsgLoginRequired))+" "+ux.Hint("(sysui auth login)"))
	})
}

// Close flushes metrics, shuts down tracing and releases the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := metrics.WriteTextfile(a.Registry, a.Config.Metrics.Textfile); err != nil {
		errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// openBackend selects the credential backend named by the configuration and
// seals it when a passphrase is set.
func openBackend(ctx context.Context, cfg *config.Config) (credstore.Backend, error) {
	var (
		backend credstore.Backend
		err     error
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		backend = credstore.NewMemoryBackend()
	case config.BackendFile:
		backend = credstore.NewFileBackend(cfg.StorePath())
	case config.BackendBolt:
		backend, err = credstore.OpenBoltBackend(cfg.StorePath())
	case config.BackendRedis:
		backend, err = credstore.NewRedisBackend(ctx, cfg.Store.RedisURL, cfg.Store.RedisPrefix, cfg.Store.RedisTTL)
	case config.BackendVault:
		backend, err = credstore.NewVaultBackend(credstore.VaultConfig{
			Address:   cfg.Store.Vault.Address,
			Token:     cfg.Store.Vault.Token,
			Mount:     cfg.Store.Vault.Mount,
			Namespace: cfg.Store.Vault.Namespace,
			Prefix:    cfg.Store.Vault.Prefix,
			Timeout:   cfg.API.Timeout,
		})
	default:
		return nil, errors.NewConfigInvalidError("store.backend", fmt.Sprintf("unknown backend %q", cfg.Store.Backend))
	}
	if err != nil {
		return nil, errors.NewStoreUnavailableError(cfg.Store.Backend, err)
	}

	if cfg.Store.Passphrase == "" {
		return backend, nil
	}
	sealed, err := credstore.NewSealedBackend(backend, cfg.Store.Passphrase)
	if err != nil {
		_ = backend.Close()
		return nil, errors.NewStoreUnavailableError(cfg.Store.Backend, err)
	}
	return sealed, nil
}
