package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readSecret reads a shared key without echo on a terminal, or one line from in otherwise.
func (o *cliOptions) readSecret(prompt string, errOut io.Writer) (string, error) {
	if o.in == os.Stdin && stdinIsTerminal() {
		fmt.Fprint(errOut, prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(errOut)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(o.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newLoginCmd(opts *cliOptions) *cobra.Command {
	var (
		clientID        string
		sharedKey       string
		sharedKeyFile   string
		credentialsFile string
		saveKey         bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a client ID and shared key for an access token",
		Long: `Exchange a client ID and shared key for an access token and store it in
the active context.

The shared key is read from --shared-key-file, a credentials file written by
the server, or prompted for. With --save-key the key is kept in the context
so expired tokens are renewed automatically.`,
		Example: `  configurine login --server http://localhost:8088 --client-id admin
  configurine login --credentials-file /var/lib/configurine/admin-credentials.yaml --save-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := opts.server()
			if credentialsFile != "" {
				creds, err := client.LoadCredentials(credentialsFile)
				if err != nil {
					return err
				}
				if clientID == "" {
					clientID = creds.ClientID
				}
				if sharedKey == "" {
					sharedKey = creds.SharedKey
				}
				if server == "" {
					server = creds.Server
				}
			}
			if sharedKey == "" && sharedKeyFile != "" {
				b, err := os.ReadFile(sharedKeyFile)
				if err != nil {
					return fmt.Errorf("failed to read shared key file: %w", err)
				}
				sharedKey = strings.TrimSpace(string(b))
			}

			path := opts.contextPath()
			cfg, err := loadContextConfig(path)
			if err != nil {
				return err
			}
			name, ctx := opts.activeContext(cfg)

			if server == "" {
				server = ctx.Server
			}
			if server == "" {
				server = defaultServer()
			}
			if clientID == "" {
				clientID = ctx.ClientID
			}
			if clientID == "" {
				return types.NewValidationError("--client-id is required")
			}
			if sharedKey == "" {
				sharedKey, err = opts.readSecret(fmt.Sprintf("Shared key for %s: ", clientID), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}

			c, err := client.NewClient(&client.ClientOptions{
				Address:     server,
				UseTLS:      strings.HasPrefix(server, "https://"),
				TLSCertFile: ctx.TLSCertFile,
				CallTimeout: opts.timeout(),
				Logger:      opts.logger(cmd.ErrOrStderr()),
			})
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := client.NewAuthClient(c).Login(clientID, sharedKey)
			if err != nil {
				return err
			}

			ctx.Server = server
			ctx.ClientID = types.NormalizeClientName(clientID)
			ctx.Token = resp.AccessToken
			if saveKey {
				ctx.SharedKey = sharedKey
			} else {
				ctx.SharedKey = ""
			}
			cfg.Contexts[name] = ctx
			cfg.CurrentContext = name
			if err := saveContextConfig(path, cfg); err != nil {
				return err
			}

			expires := opts.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
			fmt.Fprintln(cmd.OutOrStdout(), format.Success("Logged in as %s", ctx.ClientID))
			fmt.Fprintln(cmd.OutOrStdout(), format.Label("Context", name))
			fmt.Fprintln(cmd.OutOrStdout(), format.Label("Token expires", formatTime(expires)))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Client ID")
	cmd.Flags().StringVar(&sharedKey, "shared-key", "", "Shared key (prefer --shared-key-file or the prompt)")
	cmd.Flags().StringVar(&sharedKeyFile, "shared-key-file", "", "File containing the shared key")
	cmd.Flags().StringVar(&credentialsFile, "credentials-file", "", "Credentials file written by the server at bootstrap")
	cmd.Flags().BoolVar(&saveKey, "save-key", false, "Store the shared key in the context for automatic token renewal")
	return cmd
}
