package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultContextName = "default"

// ContextConfig is the CLI config file: named server contexts and the one in use.
type ContextConfig struct {
	CurrentContext string             `yaml:"current-context"`
	Contexts       map[string]Context `yaml:"contexts"`
}

// Context is one server and the identity used against it. SharedKey is only kept when the
// user asked for it at login; it lets the CLI fetch a new token when the old one expires.
type Context struct {
	Server      string `yaml:"server"`
	ClientID    string `yaml:"clientId,omitempty"`
	SharedKey   string `yaml:"sharedKey,omitempty"`
	Token       string `yaml:"token,omitempty"`
	TLSCertFile string `yaml:"tlsCertFile,omitempty"`
}

// contextPath returns the CLI config path: --cli-config, CONFIGURINE_CLI_CONFIG, then the
// home directory.
func (o *cliOptions) contextPath() string {
	if p := o.v.GetString("cli-config"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".configurine", "cli.yaml")
	}
	return filepath.Join(home, ".configurine", "cli.yaml")
}

func loadContextConfig(path string) (*ContextConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ContextConfig{CurrentContext: defaultContextName, Contexts: make(map[string]Context)}, nil
		}
		return nil, err
	}

	var cfg ContextConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse CLI config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]Context)
	}
	if cfg.CurrentContext == "" {
		cfg.CurrentContext = defaultContextName
	}
	return &cfg, nil
}

func saveContextConfig(path string, cfg *ContextConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal CLI config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write CLI config: %w", err)
	}
	return nil
}

// activeContext returns the context selected by --context or the config's current context.
func (o *cliOptions) activeContext(cfg *ContextConfig) (string, Context) {
	name := o.contextName()
	if name == "" {
		name = cfg.CurrentContext
	}
	return name, cfg.Contexts[name]
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return "(none)"
	case len(s) <= 8:
		return "********"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

func newContextCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "context",
		Aliases: []string{"ctx"},
		Short:   "Manage CLI contexts",
		Long: `Manage CLI contexts.

A context names a server and the client identity used against it. The
current context is used unless --context is given.`,
	}
	cmd.AddCommand(
		newContextViewCmd(opts),
		newContextSetCmd(opts),
		newContextUseCmd(opts),
		newContextListCmd(opts),
		newContextDeleteCmd(opts),
	)
	return cmd
}

func newContextViewCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadContextConfig(opts.contextPath())
			if err != nil {
				return err
			}
			name, ctx := opts.activeContext(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, format.Label("Context", name))
			if _, ok := cfg.Contexts[name]; !ok {
				fmt.Fprintln(out, format.Warning("Context not found in %s", opts.contextPath()))
				return nil
			}
			fmt.Fprintln(out, format.Label("Server", ctx.Server))
			fmt.Fprintln(out, format.Label("Client", ctx.ClientID))
			fmt.Fprintln(out, format.Label("Token", maskSecret(ctx.Token)))
			if ctx.SharedKey != "" {
				fmt.Fprintln(out, format.Label("Shared key", "stored"))
			}
			return nil
		},
	}
}

func newContextSetCmd(opts *cliOptions) *cobra.Command {
	var server, clientID, tokenValue, certFile string

	cmd := &cobra.Command{
		Use:   "set [context-name]",
		Short: "Create or update a context and make it current",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := defaultContextName
			if len(args) > 0 {
				name = args[0]
			}

			path := opts.contextPath()
			cfg, err := loadContextConfig(path)
			if err != nil {
				return err
			}

			ctx, exists := cfg.Contexts[name]
			if !exists && server == "" {
				return types.NewValidationError("--server is required for a new context")
			}
			if server != "" {
				ctx.Server = server
			}
			if cmd.Flags().Changed("client-id") {
				ctx.ClientID = clientID
			}
			if cmd.Flags().Changed("token") {
				ctx.Token = tokenValue
			}
			if cmd.Flags().Changed("tls-cert") {
				ctx.TLSCertFile = certFile
			}

			cfg.Contexts[name] = ctx
			cfg.CurrentContext = name
			if err := saveContextConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.Success("Context '%s' configured and set as current", name))
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "API server URL")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Client ID for this context")
	cmd.Flags().StringVar(&tokenValue, "token", "", "Bearer token value")
	cmd.Flags().StringVar(&certFile, "tls-cert", "", "CA certificate for an https server")
	return cmd
}

func newContextUseCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <context-name>",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.contextPath()
			cfg, err := loadContextConfig(path)
			if err != nil {
				return err
			}
			if _, ok := cfg.Contexts[args[0]]; !ok {
				return types.NewNotFoundError("context", args[0])
			}
			cfg.CurrentContext = args[0]
			if err := saveContextConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.Success("Switched to context '%s'", args[0]))
			return nil
		},
	}
}

func newContextListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadContextConfig(opts.contextPath())
			if err != nil {
				return err
			}
			if len(cfg.Contexts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured")
				return nil
			}

			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := [][]string{{"CURRENT", "NAME", "SERVER", "CLIENT"}}
			for _, name := range names {
				marker := ""
				if name == cfg.CurrentContext {
					marker = "*"
				}
				ctx := cfg.Contexts[name]
				rows = append(rows, []string{marker, name, ctx.Server, ctx.ClientID})
			}
			return renderTable(cmd.OutOrStdout(), rows)
		},
	}
}

func newContextDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <context-name>",
		Short: "Delete a context",
		Long:  "Delete a context. The current context cannot be deleted; switch first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.contextPath()
			cfg, err := loadContextConfig(path)
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := cfg.Contexts[name]; !ok {
				return types.NewNotFoundError("context", name)
			}
			if name == cfg.CurrentContext {
				return types.NewValidationError("cannot delete current context '%s', switch to a different context first", name)
			}
			delete(cfg.Contexts, name)
			if err := saveContextConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.Success("Context '%s' deleted", name))
			return nil
		},
	}
}
