package cmd

import (
	"fmt"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/version"
	"github.com/spf13/cobra"
)

func newVersionCmd(opts *cliOptions) *cobra.Command {
	var clientOnly bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, format.Label("Client", version.Info()))
			if clientOnly {
				return nil
			}

			c, err := opts.newAPIClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := client.NewHealthClient(c).GetVersion()
			if err != nil {
				fmt.Fprintln(out, format.Label("Server", format.Warning("unreachable (%v)", err)))
				return nil
			}
			fmt.Fprintln(out, format.Label("Server", fmt.Sprintf("%s (%s) %s/%s", info["version"], info["commit"], info["os"], info["arch"])))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clientOnly, "client", false, "Show only the client version")
	return cmd
}
