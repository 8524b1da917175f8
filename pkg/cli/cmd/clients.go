package cmd

import (
	"fmt"
	"io"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/types"
	"github.com/spf13/cobra"
)

func newClientCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "client",
		Aliases: []string{"clients"},
		Short:   "Manage API clients",
		Long: `Manage API clients.

Anyone may register a client; an admin must confirm it before it can log in.
Listing, updating flags and deleting other clients needs an admin.`,
	}
	cmd.AddCommand(
		newClientRegisterCmd(opts),
		newClientListCmd(opts),
		newClientGetCmd(opts),
		newClientUpdateCmd(opts),
		newClientDeleteCmd(opts),
	)
	return cmd
}

func (o *cliOptions) withClientsClient(cmd *cobra.Command, fn func(*client.ClientsClient) error) error {
	c, err := o.newAPIClient(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(client.NewClientsClient(c))
}

func newClientRegisterCmd(opts *cliOptions) *cobra.Command {
	var email, sharedKey string

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a new client",
		Long: `Register a new client. When --shared-key is omitted a random key is
generated and printed once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generated := false
			if sharedKey == "" {
				key, err := crypto.RandomHex(32)
				if err != nil {
					return err
				}
				sharedKey = key
				generated = true
			}

			return opts.withClientsClient(cmd, func(cc *client.ClientsClient) error {
				view, err := cc.Register(types.ClientSpec{Name: args[0], Email: email, SharedKey: sharedKey})
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), view, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintln(out, format.Success("Registered client %s", view.Name))
					if generated {
						fmt.Fprintln(out, format.Label("Shared key", sharedKey))
						fmt.Fprintln(out, format.Warning("Store this key now; it is not shown again."))
					}
					if !view.IsConfirmed {
						fmt.Fprintln(out, format.Dim("An admin must confirm the client before it can log in."))
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	cmd.Flags().StringVar(&sharedKey, "shared-key", "", "Shared key (generated when omitted)")
	return cmd
}

func newClientListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClientsClient(cmd, func(cc *client.ClientsClient) error {
				views, err := cc.List()
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), views, func() error {
					return renderClients(cmd.OutOrStdout(), views)
				})
			})
		},
	}
}

func newClientGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClientsClient(cmd, func(cc *client.ClientsClient) error {
				view, err := cc.Get(args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), view, func() error {
					return renderClients(cmd.OutOrStdout(), []*types.ClientView{view})
				})
			})
		},
	}
}

func newClientUpdateCmd(opts *cliOptions) *cobra.Command {
	var (
		email     string
		sharedKey string
		admin     bool
		confirmed bool
		rotate    bool
	)

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update a client",
		Long: `Update a client. Only the given flags change. --admin and --confirmed
need an admin; clients may change their own email and shared key.`,
		Example: `  configurine client update billing --confirmed
  configurine client update billing --admin=false
  configurine client update billing --rotate-private-key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var update types.ClientUpdate
			flags := cmd.Flags()
			if flags.Changed("email") {
				update.Email = &email
			}
			if flags.Changed("shared-key") {
				update.SharedKey = &sharedKey
			}
			if flags.Changed("admin") {
				update.IsAdmin = &admin
			}
			if flags.Changed("confirmed") {
				update.IsConfirmed = &confirmed
			}
			update.RotatePrivateKey = rotate

			return opts.withClientsClient(cmd, func(cc *client.ClientsClient) error {
				view, err := cc.Update(args[0], update)
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), view, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), format.Success("Updated client %s", view.Name))
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "New contact email")
	cmd.Flags().StringVar(&sharedKey, "shared-key", "", "New shared key")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant or revoke admin")
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "Confirm or unconfirm the client")
	cmd.Flags().BoolVar(&rotate, "rotate-private-key", false, "Rotate the client's private key, invalidating its tokens")
	return cmd
}

func newClientDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClientsClient(cmd, func(cc *client.ClientsClient) error {
				if err := cc.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), format.Success("Deleted client %s", args[0]))
				return nil
			})
		},
	}
}

func renderClients(w io.Writer, views []*types.ClientView) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No clients found")
		return nil
	}
	rows := [][]string{{"NAME", "EMAIL", "ADMIN", "STATUS", "CREATED"}}
	for _, v := range views {
		status := "confirmed"
		if !v.IsConfirmed {
			status = "unconfirmed"
		}
		rows = append(rows, []string{v.Name, v.Email, yesNo(v.IsAdmin), format.StatusLabel(status), formatTime(v.Created)})
	}
	return renderTable(w, rows)
}
