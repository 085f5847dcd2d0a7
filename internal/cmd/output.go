package cmd

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/ux"
	"github.com/wefram/sysui/pkg/sysui/types"
)

// render writes data in the selected --output format. In text mode text is
// called instead.
func (o *rootOptions) render(cmd *cobra.Command, data any, text func(w io.Writer)) error {
	if o.output == "" || o.output == "text" {
		text(cmd.OutOrStdout())
		return nil
	}
	return ux.Render(cmd.OutOrStdout(), o.output, data)
}

// sessionView is the printable part of a session; tokens are never shown.
type sessionView struct {
	User        *types.UserSummary `json:"user" yaml:"user"`
	Permissions []string           `json:"permissions" yaml:"permissions"`
	Expire      string             `json:"expire,omitempty" yaml:"expire,omitempty"`
}

// requestError prefixes a failed request with its localized message.
func (a *App) requestError(err error) error {
	var rerr *api.ResponseError
	if !stderrors.As(err, &rerr) {
		return err
	}
	return ux.EnhanceError(fmt.Errorf("%s: %w", a.Messages.ResponseErrorMessage(err), err))
}
