package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wefram/sysui/internal/classify"
	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/telemetry"
	"github.com/wefram/sysui/internal/ux"
)

type canView struct {
	Scopes    []string `json:"scopes" yaml:"scopes"`
	Permitted bool     `json:"permitted" yaml:"permitted"`
	User      string   `json:"user,omitempty" yaml:"user,omitempty"`
}

func newCanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "can [scope...]",
		Short: "Check whether the signed-in user holds every given permission",
		Long: `Validate the stored credential with the server, then check that the user
holds every listed permission scope. The implicit "authenticated" scope is
held by any signed-in user. With no scopes the answer is always yes.

The command exits with status 3 when a scope is missing.

Examples:
  sysui can crm.read
  sysui can crm.read crm.write
  sysui can authenticated -o json`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := telemetry.StartCommandSpan(cmd.Context(), "can")
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
				// the session is already dropped; only report failures that
				// say nothing about the credential itself
				switch classify.Classify(err) {
				case classify.KindNetwork, classify.KindServer:
					return app.requestError(err)
				}
			}

			view := canView{
				Scopes:    args,
				Permitted: app.State.Permitted(args...),
			}
			if user := app.State.User(); user != nil {
				view.User = user.Login
			}
			if view.Scopes == nil {
				view.Scopes = []string{}
			}

			if err := opts.render(cmd, view, func(w io.Writer) {
				if view.Permitted {
					fmt.Fprintln(w, ux.OK("yes"))
				} else {
					fmt.Fprintln(w, ux.Bad("no"))
				}
			}); err != nil {
				return err
			}

			if !view.Permitted {
				return errors.New(errors.ErrCodeAuthForbidden,
					fmt.Sprintf("missing permission: %s", strings.Join(args, ", ")))
			}
			return nil
		},
	}
}
