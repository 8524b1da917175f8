package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/types"
	"github.com/spf13/cobra"
)

func newTagTypeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tagtype",
		Aliases: []string{"tagtypes", "tt"},
		Short:   "Manage tag types and their priorities",
		Long: `Manage tag types. An entry's weight in resolution is the sum of its tag
types' priorities, and the heaviest matching entry wins. Changes apply to
resolution after the server refreshes its priority table.`,
	}
	cmd.AddCommand(
		newTagTypeListCmd(opts),
		newTagTypeSetCmd(opts, "create", "Create a tag type"),
		newTagTypeSetCmd(opts, "update", "Change a tag type's priority"),
		newTagTypeDeleteCmd(opts),
	)
	return cmd
}

func (o *cliOptions) withTagTypeClient(cmd *cobra.Command, fn func(*client.TagTypeClient) error) error {
	c, err := o.newAPIClient(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(client.NewTagTypeClient(c))
}

func newTagTypeListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tag types by priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTagTypeClient(cmd, func(tc *client.TagTypeClient) error {
				tagTypes, err := tc.List()
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), tagTypes, func() error {
					return renderTagTypes(cmd.OutOrStdout(), tagTypes)
				})
			})
		},
	}
}

func newTagTypeSetCmd(opts *cliOptions, verb, short string) *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   verb + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("priority") {
				return types.NewValidationError("--priority is required")
			}
			return opts.withTagTypeClient(cmd, func(tc *client.TagTypeClient) error {
				var (
					tt  *types.TagType
					err error
				)
				if verb == "create" {
					tt, err = tc.Create(args[0], priority)
				} else {
					tt, err = tc.Update(args[0], priority)
				}
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), tt, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), format.Success("Tag type %s has priority %d", tt.Name, tt.Priority))
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority; higher is more significant")
	return cmd
}

func newTagTypeDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a tag type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTagTypeClient(cmd, func(tc *client.TagTypeClient) error {
				if err := tc.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), format.Success("Deleted tag type %s", args[0]))
				return nil
			})
		},
	}
}

func renderTagTypes(w io.Writer, tagTypes []*types.TagType) error {
	if len(tagTypes) == 0 {
		fmt.Fprintln(w, "No tag types defined")
		return nil
	}
	rows := [][]string{{"NAME", "PRIORITY", "MODIFIED"}}
	for _, tt := range tagTypes {
		rows = append(rows, []string{tt.Name, strconv.Itoa(tt.Priority), formatTime(tt.Modified)})
	}
	return renderTable(w, rows)
}
