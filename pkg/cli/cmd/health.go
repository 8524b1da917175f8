package cmd

import (
	"fmt"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/types"
	"github.com/spf13/cobra"
)

func newHealthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server and store health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := client.NewHealthClient(c).GetHealth()
			if report == nil {
				return err
			}
			if err := opts.render(cmd.OutOrStdout(), report, func() error {
				printHealth(cmd, c.Address(), report)
				return nil
			}); err != nil {
				return err
			}
			if !report.Healthy() {
				return &client.APIError{StatusCode: 503, Category: types.CategoryUnavailable, Message: "server is unhealthy"}
			}
			return nil
		},
	}
}

func printHealth(cmd *cobra.Command, server string, report *service.HealthReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", format.StatusSymbol(report.Healthy()), format.Highlight("%s", server))
	fmt.Fprintln(out, format.Label("Status", format.StatusLabel(report.Status)))
	fmt.Fprintln(out, format.Label("Store", format.StatusLabel(report.Store)))
	if report.StoreError != "" {
		fmt.Fprintln(out, format.Label("Store error", report.StoreError))
	}
	fmt.Fprintln(out, format.Label("Checked", report.CheckedAt))
}
