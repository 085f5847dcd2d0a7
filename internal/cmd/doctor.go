package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/auth"
	"github.com/wefram/sysui/internal/health"
	"github.com/wefram/sysui/internal/ux"
	"github.com/wefram/sysui/internal/version"
)

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long: `Check that sysui can do its job:

  - backend: the session endpoint answers
  - credential-store: the configured store is writable
  - credential: a stored credential exists and has not expired

Examples:
  sysui doctor
  sysui doctor -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.application(cmd)
			if err != nil {
				return err
			}

			// anonymous client without the classifier installed
			probe := api.New(app.Config.API.URL,
				api.WithTimeout(timeout),
				api.WithUserAgent(version.GetInfo().UserAgent()),
				api.WithLogger(app.Logger),
			)

			manager := health.NewManager().WithTimeout(timeout)
			manager.AddChecker(health.NewBackendChecker(probe, auth.DefaultEndpoints().Touch))
			manager.AddChecker(health.NewStoreChecker(app.Store))
			manager.AddChecker(health.NewCredentialChecker(app.Store))

			report := manager.Check(cmd.Context())
			if err := opts.render(cmd, report, func(w io.Writer) {
				writeReport(w, report)
			}); err != nil {
				return err
			}

			if report.Status == health.StatusUnhealthy {
				return fmt.Errorf("diagnostics failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-check timeout")
	return cmd
}

func writeReport(w io.Writer, report health.Report) {
	fmt.Fprintln(w, ux.Title("sysui doctor"))
	for _, c := range report.Checks {
		var mark string
		switch c.Status {
		case health.StatusHealthy:
			mark = ux.OK("✓")
		case health.StatusDegraded:
			mark = ux.Warn("!")
		default:
			mark = ux.Bad("✗")
		}
		fmt.Fprintf(w, "%s %-17s %s\n", mark, c.Name, c.Message)
	}
}
