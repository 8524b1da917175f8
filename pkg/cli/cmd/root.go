// Package cmd implements the configurine command line client.
package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
	"github.com/mac-/configurine/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cliOptions carries the global flags and the I/O streams shared by every command. Flag values
// are read through v so CONFIGURINE_* environment variables apply when a flag is not given.
type cliOptions struct {
	v       *viper.Viper
	in      io.Reader
	now     func() time.Time
	verbose bool
}

func (o *cliOptions) server() string      { return o.v.GetString("server") }
func (o *cliOptions) token() string       { return o.v.GetString("token") }
func (o *cliOptions) contextName() string { return o.v.GetString("context") }
func (o *cliOptions) output() string      { return strings.ToLower(o.v.GetString("output")) }
func (o *cliOptions) timeout() time.Duration {
	return o.v.GetDuration("timeout")
}

// logger writes client debug output to stderr when --verbose is set.
func (o *cliOptions) logger(errOut io.Writer) log.Logger {
	level := log.WarnLevel
	if o.verbose {
		level = log.DebugLevel
	}
	return log.NewLogger(
		log.WithLevel(level),
		log.WithFormatter(log.NewTextFormatter()),
		log.WithOutput(log.NewConsoleOutput(log.WithWriter(errOut))),
	).WithComponent("cli")
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cliOptions{in: os.Stdin, now: time.Now})
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "configurine",
		Short: "configurine - centralized configuration store",
		Long: `configurine stores named configuration values targeted by tags and
associations, and resolves the most relevant value for a caller.

Log in once with a client ID and shared key, then manage config entries,
clients and tag types on the server.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	v := viper.New()
	v.SetEnvPrefix("CONFIGURINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	opts.v = v

	pf := root.PersistentFlags()
	pf.String("cli-config", "", "CLI config file (default is $HOME/.configurine/cli.yaml)")
	pf.String("context", "", "Context to use instead of the current one")
	pf.String("server", "", "API server URL, overrides the context")
	pf.String("token", "", "Bearer token, overrides the context")
	pf.StringP("output", "o", "table", "Output format (table, json, yaml)")
	pf.Duration("timeout", 30*time.Second, "Timeout for each API call")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	for _, name := range []string{"cli-config", "context", "server", "token", "output", "timeout"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return types.NewValidationError("%v", err)
	})

	root.AddCommand(
		newLoginCmd(opts),
		newContextCmd(opts),
		newConfigCmd(opts),
		newClientCmd(opts),
		newTagTypeCmd(opts),
		newHealthCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		format.PrintError(root.ErrOrStderr(), err)
		return format.ExitCode(err)
	}
	return format.ExitOK
}
