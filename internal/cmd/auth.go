package cmd

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/auth"
	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/telemetry"
	"github.com/wefram/sysui/internal/ux"
	"github.com/wefram/sysui/pkg/sysui/types"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in session",
		Long: `Sign in and out of the System UI backend and inspect the stored
credential.`,
	}

	authCmd.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newWhoamiCmd(opts),
		newRefreshCmd(opts),
	)
	return authCmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		username      string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the issued credential",
		Long: `Sign in with a login and password. The issued credential is written to
the configured store and reused by later commands.

Missing values are prompted for when stdin is a terminal.

Examples:
  sysui auth login
  sysui auth login --username alice
  echo "$PASSWORD" | sysui auth login --username alice --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth login")
			defer func() {
				telemetry.RecordError(span, err)
				span.End()
			}()

			app, err := opts.application(cmd)
			if err != nil {
				return err
			}

			if passwordStdin {
				if password, err = readSecret(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("failed to read password from stdin: %w", err)
				}
			}

			if username == "" || password == "" {
				if app.Prompter == nil {
					return fmt.Errorf("required flag(s) \"username\", \"password\" not set and stdin is not a terminal")
				}
				if password != "" {
					// only the login is missing; keep the supplied password
					username, _, err = app.Prompter.Credentials(ctx, "Sign in to "+app.Config.API.URL, username)
				} else {
					username, password, err = app.Prompter.Credentials(ctx, "Sign in to "+app.Config.API.URL, username)
				}
				if err != nil {
					return err
				}
			}

			issued, err := app.Auth.Authenticate(ctx, username, password)
			if err != nil {
				return app.loginError(err)
			}

			view := sessionView{User: &issued.User, Permissions: issued.Permissions, Expire: issued.Expire}
			return opts.render(cmd, view, func(w io.Writer) {
				fmt.Fprintln(w, ux.OK("Signed in as "+displayName(issued.User)))
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Long: `Remove the stored credential. With --remote the backend is asked to
revoke it first; the local credential is removed either way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth logout")
			defer func() {
				telemetry.RecordError(span, err)
				span.End()
			}()

			app, err := opts.application(cmd)
			if err != nil {
				return err
			}

			if remote && app.Auth.Restore(ctx) {
				if err := app.Auth.LogoutRemote(ctx); err != nil {
					return app.requestError(err)
				}
			} else if err := app.Auth.Logout(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), ux.OK("Signed out"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "also revoke the credential on the server")
	return cmd
}

// statusView describes the stored credential without contacting the server.
type statusView struct {
	SignedIn    bool               `json:"signedIn" yaml:"signed_in"`
	Store       string             `json:"store" yaml:"store"`
	Key         string             `json:"key" yaml:"key"`
	User        *types.UserSummary `json:"user,omitempty" yaml:"user,omitempty"`
	Permissions []string           `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Expire      string             `json:"expire,omitempty" yaml:"expire,omitempty"`
	Expired     bool               `json:"expired" yaml:"expired"`
	Token       *tokenView         `json:"token,omitempty" yaml:"token,omitempty"`
}

type tokenView struct {
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential",
		Long: `Show what is in the credential store. The server is not contacted, so a
stored credential may already have been revoked; use 'sysui auth whoami' to
validate it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.application(cmd)
			if err != nil {
				return err
			}

			view := buildStatusView(app, app.Store.Get(cmd.Context()), time.Now())
			return opts.render(cmd, view, func(w io.Writer) {
				writeStatus(w, view)
			})
		},
	}
}

func buildStatusView(app *App, stored *types.AuthorizationSession, now time.Time) statusView {
	view := statusView{
		SignedIn: stored != nil,
		Store:    app.Store.Backend(),
		Key:      app.Store.Key(),
	}
	if stored == nil {
		return view
	}

	view.User = &stored.User
	view.Permissions = stored.Permissions
	view.Expire = stored.Expire
	if expiry, ok := stored.Expiry(); ok && now.After(expiry) {
		view.Expired = true
	}
	if info, err := auth.TokenClaims(stored.Token); err == nil {
		view.Token = &tokenView{
			Subject:   info.Subject,
			Issuer:    info.Issuer,
			ID:        info.ID,
			ExpiresAt: info.ExpiresAt,
		}
		if info.Expired(now) {
			view.Expired = true
		}
	}
	return view
}

func writeStatus(w io.Writer, view statusView) {
	if !view.SignedIn {
		fmt.Fprintln(w, ux.Warn("Not signed in"))
		fmt.Fprintln(w, ux.Hint("Run 'sysui auth login' to authenticate"))
		return
	}

	fields := []ux.Field{
		{Key: "User", Value: fmt.Sprintf("%s (%s)", displayName(*view.User), view.User.Login)},
		{Key: "Permissions", Value: strings.Join(view.Permissions, ", ")},
		{Key: "Expires", Value: view.Expire},
		{Key: "Store", Value: view.Store + " / " + view.Key},
	}
	if view.Token != nil && !view.Token.ExpiresAt.IsZero() {
		fields = append(fields, ux.Field{Key: "Token expires", Value: view.Token.ExpiresAt.Local().Format(time.RFC1123)})
	}

	fmt.Fprintln(w, ux.Title("Session"))
	fmt.Fprint(w, ux.KeyValues(fields...))
	if view.Expired {
		fmt.Fprintln(w, ux.Warn("The credential has expired; run 'sysui auth refresh' or sign in again"))
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the stored credential with the server",
		Long: `Ask the server who the stored credential belongs to. A credential the
server does not accept is removed from the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth whoami")
			defer func() {
				telemetry.RecordError(span, err)
				span.End()
			}()

			app, err := opts.application(cmd)
			if err != nil {
				return err
			}

			app.Auth.Restore(ctx)
			if err := app.Auth.InitializeFromServer(ctx); err != nil {
				return app.requestError(err)
			}
			if !app.Auth.IsLoggedIn() {
				return errors.NewNotLoggedInError()
			}

			snap := app.State.Snapshot()
			view := sessionView{User: snap.User, Permissions: snap.Permissions}
			return opts.render(cmd, view, func(w io.Writer) {
				fmt.Fprint(w, ux.KeyValues(
					ux.Field{Key: "User", Value: displayName(*snap.User)},
					ux.Field{Key: "Login", Value: snap.User.Login},
					ux.Field{Key: "Permissions", Value: strings.Join(snap.Permissions, ", ")},
				))
			})
		},
	}
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth refresh")
			defer func() {
				telemetry.RecordError(span, err)
				span.End()
			}()

			app, err := opts.application(cmd)
			if err != nil {
				return err
			}

			issued, err := app.Auth.Refresh(ctx)
			if err != nil {
				return app.requestError(err)
			}

			view := sessionView{User: &issued.User, Permissions: issued.Permissions, Expire: issued.Expire}
			return opts.render(cmd, view, func(w io.Writer) {
				fmt.Fprintln(w, ux.OK("Session refreshed, expires "+issued.Expire))
			})
		},
	}
}

// loginError turns a rejected login into a bad-credentials error carrying
// the localized message.
func (a *App) loginError(err error) error {
	var rerr *api.ResponseError
	if stderrors.As(err, &rerr) && (rerr.Status() == 400 || rerr.Status() == 401) {
		return errors.NewBadCredentialsError(a.Messages.LoginErrorMessage(err), err)
	}
	return a.requestError(err)
}

func displayName(u types.UserSummary) string {
	if name := u.DisplayName(); name != "" {
		return name
	}
	return u.Login
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
