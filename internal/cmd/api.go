package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wefram/sysui/internal/api"
	"github.com/wefram/sysui/internal/classify"
	"github.com/wefram/sysui/internal/telemetry"
	"github.com/wefram/sysui/internal/ux"
)

type apiOptions struct {
	version string
	params  []string
	query   []string
	headers []string
	data    string
}

func newAPICmd(opts *rootOptions) *cobra.Command {
	var o apiOptions

	cmd := &cobra.Command{
		Use:   "api <method> <app> <path>",
		Short: "Send an authorized request to a backend application",
		Long: `Send a request to /{app}/{version}/{path} with the stored credential.

Path placeholders such as {id} are filled from --param values. When the server
rejects the credential of a signed-in user, you are asked for your password
and the request is sent once more.

Examples:
  sysui api get crm contacts --api-version v1
  sysui api delete crm 'contacts/{id}' --api-version v1 --param id=42
  sysui api post crm contacts --api-version v1 --data '{"name":"Cheshire Cat"}'
  sysui api put crm 'contacts/{id}' --param id=42 --data @contact.json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, span := telemetry.StartCommandSpan(cmd.Context(), "api")
			defer func() {
				telemetry.RecordError(span, err)
				span.End()
			}()

			method := strings.ToUpper(args[0])
			if !allowedMethods[method] {
				return fmt.Errorf("invalid argument %q for method: accepts GET, HEAD, OPTIONS, POST, PUT, PATCH or DELETE", args[0])
			}
			endpoint := api.Endpoint{App: args[1], Version: o.version, Path: args[2]}

			reqOpts, err := o.requestOptions()
			if err != nil {
				return err
			}
			body, err := o.body(cmd.InOrStdin())
			if err != nil {
				return err
			}

			app, err := opts.application(cmd)
			if err != nil {
				return err
			}
			app.Auth.Resume(ctx)

			resp, err := app.sendWithReauth(ctx, func(ctx context.Context) (*api.Response, error) {
				return app.Client.Do(ctx, method, endpoint, body, reqOpts...)
			})
			if err != nil {
				return app.requestError(err)
			}

			return opts.renderResponse(cmd, app.Messages, resp)
		},
	}

	cmd.Flags().StringVar(&o.version, "api-version", "", "application API version (v1, v2, ...)")
	cmd.Flags().StringArrayVar(&o.params, "param", nil, "path placeholder value as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&o.query, "query", "q", nil, "query string value as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&o.headers, "header", "H", nil, "extra header as Name=value (repeatable)")
	cmd.Flags().StringVarP(&o.data, "data", "d", "", "JSON request body, @file to read a file or @- for stdin")

	return cmd
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
}

func (o apiOptions) requestOptions() ([]api.RequestOption, error) {
	var reqOpts []api.RequestOption

	params := make(map[string]string, len(o.params))
	for _, kv := range o.params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q for --param: expected name=value", kv)
		}
		params[k] = v
	}
	if len(params) > 0 {
		reqOpts = append(reqOpts, api.WithPathParams(params))
	}

	query := url.Values{}
	for _, kv := range o.query {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q for --query: expected name=value", kv)
		}
		query.Add(k, v)
	}
	if len(query) > 0 {
		reqOpts = append(reqOpts, api.WithQuery(query))
	}

	for _, kv := range o.headers {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q for --header: expected Name=value", kv)
		}
		reqOpts = append(reqOpts, api.WithHeader(k, v))
	}

	return reqOpts, nil
}

// body returns the request payload as raw JSON, or nil when --data is empty.
func (o apiOptions) body(stdin io.Reader) (any, error) {
	if o.data == "" {
		return nil, nil
	}

	var (
		data []byte
		err  error
	)
	switch {
	case o.data == "@-":
		data, err = io.ReadAll(stdin)
	case strings.HasPrefix(o.data, "@"):
		data, err = os.ReadFile(o.data[1:])
	default:
		data = []byte(o.data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid argument for --data: body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// sendWithReauth runs send and, when the failure raised a re-authentication
// request, asks for the password of the current user, signs in again and
// runs send once more. The original error is returned when nobody can answer
// the prompt.
func (a *App) sendWithReauth(ctx context.Context, send func(context.Context) (*api.Response, error)) (*api.Response, error) {
	resp, err := send(ctx)
	if err == nil || !a.Prompt.Requested() {
		return resp, err
	}
	defer a.Prompt.Resolve()

	user := a.State.User()
	if a.Prompter == nil || user == nil {
		return nil, err
	}

	title := fmt.Sprintf("%s (%s)", a.Messages.Text(classify.MsgSessionExpired), user.Login)
	password, perr := a.Prompter.Password(ctx, title)
	if perr != nil {
		return nil, err
	}

	if _, aerr := a.Auth.Authenticate(ctx, user.Login, password); aerr != nil {
		return nil, a.loginError(aerr)
	}
	a.Logger.InfoContext(ctx, "re-authenticated; retrying request", "user", user.Login)
	return send(ctx)
}

// renderResponse prints a successful response. JSON bodies are re-encoded
// in the selected format; anything else prints as text.
func (o *rootOptions) renderResponse(cmd *cobra.Command, messages *classify.Messages, resp *api.Response) error {
	var decoded any
	if len(bytes.TrimSpace(resp.Data)) > 0 && json.Unmarshal(resp.Data, &decoded) == nil {
		if _, isString := decoded.(string); !isString {
			format := o.output
			if format == "" || format == "text" {
				format = "json"
			}
			return ux.Render(cmd.OutOrStdout(), format, decoded)
		}
	}

	return o.render(cmd, map[string]any{"status": resp.Status, "message": messages.ResponseSuccessMessage(resp)}, func(w io.Writer) {
		fmt.Fprintln(w, messages.ResponseSuccessMessage(resp))
	})
}
