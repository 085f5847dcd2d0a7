package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/wefram/sysui/internal/config"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/ux"
)

// rootOptions holds global flag values and the lazily built application.
type rootOptions struct {
	configPath string
	apiURL     string
	output     string
	logLevel   string
	locale     string
	backend    string
	storePath  string
	metricsOut string

	// prompter overrides interactive prompts; tests inject a scripted one.
	prompter ux.Prompter

	cfg    *config.Config
	logger *log.Logger
	app    *App
}

// newRootCmd builds the command tree. Each call returns an independent tree
// so that tests can run commands side by side.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sysui",
		Short: "System UI session and request authorization client",
		Long: `sysui signs in to a System UI backend, keeps the issued credential in a
local store and sends authorized API requests on your behalf.

When the backend rejects the credential of a signed-in user, sysui asks for
the password again and retries the request once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.sysui/config.yaml)")
	flags.StringVar(&opts.apiURL, "api-url", "", "backend API base URL")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format (text, json, yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.locale, "locale", "", "message language (en, ru)")
	flags.StringVar(&opts.backend, "store-backend", "", "credential store backend (memory, file, bolt, redis, vault)")
	flags.StringVar(&opts.storePath, "store-path", "", "credential store directory or database file")
	flags.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus metrics to this textfile on exit")

	rootCmd.AddCommand(
		newAuthCmd(opts),
		newAPICmd(opts),
		newCanCmd(opts),
		newConfigCmd(opts),
		newDoctorCmd(opts),
		newVersionCmd(opts),
	)

	return rootCmd, opts
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"api-url":       "api.url",
	"log-level":     "log.level",
	"locale":        "locale",
	"store-backend": "store.backend",
	"store-path":    "store.path",
	"metrics-out":   "metrics.textfile",
}

// config loads the configuration on first use.
func (o *rootOptions) config(cmd *cobra.Command) (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}

	v, err := config.NewViper(o.configPath)
	if err != nil {
		return nil, err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return nil, err
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	logger := log.New(log.Config{
		Level:       log.ParseLevel(cfg.Log.Level),
		Format:      log.ParseFormat(cfg.Log.Format),
		Output:      log.NewOutput(cmd.ErrOrStderr()),
		ServiceName: "sysui",
	})
	log.SetDefaultLogger(logger)

	o.cfg = cfg
	o.logger = logger
	return cfg, nil
}

// application builds the session subsystem on first use.
func (o *rootOptions) application(cmd *cobra.Command) (*App, error) {
	if o.app != nil {
		return o.app, nil
	}

	cfg, err := o.config(cmd)
	if err != nil {
		return nil, err
	}

	prompter := o.prompter
	if prompter == nil && ux.IsInteractive(os.Stdin) {
		prompter = ux.FormPrompter{Accessible: os.Getenv("ACCESSIBLE") != ""}
	}

	app, err := NewApp(cmd.Context(), cfg, AppOptions{
		Logger:   o.logger,
		Prompter: prompter,
		Stderr:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	o.app = app
	return app, nil
}

func (o *rootOptions) close(ctx context.Context) error {
	if o.app == nil {
		return nil
	}
	err := o.app.Close(ctx)
	o.app = nil
	return err
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// SIGINT/SIGTERM by main.
func ExecuteContext(ctx context.Context) error {
	rootCmd, opts := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if cerr := opts.close(context.WithoutCancel(ctx)); cerr != nil {
		log.DefaultLogger().WithError(cerr).Warn("cleanup failed")
	}
	return err
}
