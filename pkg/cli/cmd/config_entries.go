package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/cli/utils"
	"github.com/mac-/configurine/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"configs", "entry", "entries"},
		Short:   "Manage and resolve config entries",
	}
	cmd.AddCommand(
		newConfigGetCmd(opts),
		newConfigListCmd(opts),
		newConfigResolveCmd(opts),
		newConfigCreateCmd(opts),
		newConfigUpdateCmd(opts),
		newConfigDeleteCmd(opts),
	)
	return cmd
}

// withConfigClient runs fn against a ConfigClient for the active context.
func (o *cliOptions) withConfigClient(cmd *cobra.Command, fn func(*client.ConfigClient) error) error {
	c, err := o.newAPIClient(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(client.NewConfigClient(c))
}

func newConfigGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a config entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withConfigClient(cmd, func(cc *client.ConfigClient) error {
				entry, err := cc.Get(args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), entry, func() error {
					return printEntry(cmd.OutOrStdout(), entry)
				})
			})
		},
	}
}

func newConfigListCmd(opts *cliOptions) *cobra.Command {
	var (
		names        []string
		associations []string
		envs         []string
		apps         []string
		active       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Query config entries by name and association",
		Long: `Query config entries. Names are ANDed with the associations; an entry
matches when it has any of the given associations.`,
		Example: `  configurine config list --name db.host
  configurine config list --env production --app billing@1.2 --active true
  configurine config list --association 'environment|staging'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			isActive, err := utils.ParseOptionalBool(active)
			if err != nil {
				return err
			}
			q := client.QueryOptions{Names: names, Associations: associations, IsActive: isActive}
			for _, env := range envs {
				q.Associations = append(q.Associations, types.AssociationFilter{Kind: types.AssociationEnvironment, Name: env}.String())
			}
			parsedApps, err := utils.ParseApplications(apps)
			if err != nil {
				return err
			}
			for _, app := range parsedApps {
				for _, v := range app.Versions {
					q.Associations = append(q.Associations, types.AssociationFilter{Kind: types.AssociationApplication, Name: app.Name, Version: v}.String())
				}
			}

			return opts.withConfigClient(cmd, func(cc *client.ConfigClient) error {
				entries, err := cc.List(q)
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), entries, func() error {
					return renderEntries(cmd.OutOrStdout(), entries)
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&names, "name", nil, "Entry name (repeatable)")
	cmd.Flags().StringArrayVar(&associations, "association", nil, "Raw association: environment|<name> or application|<name>|<version>")
	cmd.Flags().StringSliceVar(&envs, "env", nil, "Environment association (repeatable)")
	cmd.Flags().StringSliceVar(&apps, "app", nil, "Application association as name@version (repeatable)")
	cmd.Flags().StringVar(&active, "active", "", "Filter by activity (true or false)")
	return cmd
}

func newConfigResolveCmd(opts *cliOptions) *cobra.Command {
	var (
		tags      []string
		valueOnly bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve the most relevant entry for a name and tags",
		Example: `  configurine config resolve db.host --tag environment:production --tag region:us-east
  configurine config resolve feature.flag --tag environment:staging --value-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := utils.ParseTags(tags)
			if err != nil {
				return err
			}
			return opts.withConfigClient(cmd, func(cc *client.ConfigClient) error {
				entry, err := cc.Resolve(args[0], parsed)
				if err != nil {
					return err
				}
				if valueOnly {
					return writeValue(cmd.OutOrStdout(), entry.Value)
				}
				return opts.render(cmd.OutOrStdout(), entry, func() error {
					return printEntry(cmd.OutOrStdout(), entry)
				})
			})
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag as type:value (repeatable)")
	cmd.Flags().BoolVar(&valueOnly, "value-only", false, "Print only the resolved value")
	return cmd
}

// entryFlags are the fields of an entry settable from the command line.
type entryFlags struct {
	file      string
	name      string
	value     string
	valueType string
	tags      []string
	envs      []string
	apps      []string
	sensitive bool
	active    bool
}

func (f *entryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read the entry from a yaml or json file (- for stdin)")
	cmd.Flags().StringVar(&f.name, "name", "", "Entry name")
	cmd.Flags().StringVar(&f.value, "value", "", "Entry value")
	cmd.Flags().StringVar(&f.valueType, "type", "auto", "How to read --value: auto, string or json")
	cmd.Flags().StringSliceVarP(&f.tags, "tag", "t", nil, "Tag as type:value (repeatable)")
	cmd.Flags().StringSliceVar(&f.envs, "env", nil, "Environment association (repeatable)")
	cmd.Flags().StringSliceVar(&f.apps, "app", nil, "Application association as name@version (repeatable)")
	cmd.Flags().BoolVar(&f.sensitive, "sensitive", false, "Mark the value as sensitive")
	cmd.Flags().BoolVar(&f.active, "active", true, "Whether the entry takes part in resolution")
}

// apply sets the fields whose flags were given, or all of them when all is true.
func (f *entryFlags) apply(cmd *cobra.Command, entry *types.ConfigEntry, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("name") {
		entry.Name = f.name
	}
	if changed("value") {
		v, err := parseValue(f.value, f.valueType)
		if err != nil {
			return err
		}
		entry.Value = v
	}
	if changed("tag") {
		tags, err := utils.ParseTags(f.tags)
		if err != nil {
			return err
		}
		entry.Tags = tags
	}
	if changed("env") {
		entry.Associations.Environments = append([]string(nil), f.envs...)
	}
	if changed("app") {
		apps, err := utils.ParseApplications(f.apps)
		if err != nil {
			return err
		}
		entry.Associations.Applications = apps
	}
	if changed("sensitive") {
		entry.IsSensitive = f.sensitive
	}
	if changed("active") {
		entry.IsActive = f.active
	}
	return nil
}

// parseValue reads a value flag. auto accepts any JSON literal and falls back to a string.
func parseValue(raw, kind string) (types.Value, error) {
	switch strings.ToLower(kind) {
	case "string":
		return types.StringValue(raw), nil
	case "json":
		var v types.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return types.Value{}, types.NewValidationError("invalid JSON value: %v", err)
		}
		return v, nil
	case "auto", "":
		var v types.Value
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, nil
		}
		return types.StringValue(raw), nil
	default:
		return types.Value{}, types.NewValidationError("unknown value type %q, use auto, string or json", kind)
	}
}

// readEntryFile decodes an entry from yaml or json. Parse errors are printed with the
// offending line.
func (o *cliOptions) readEntryFile(path string, errOut io.Writer) (*types.ConfigEntry, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(o.in)
		path = "stdin"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		format.NewFileError(path, data).Print(errOut, err)
		return nil, types.NewValidationError("invalid entry file %s", path)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, types.NewValidationError("invalid entry file %s: %v", path, err)
	}

	entry := &types.ConfigEntry{IsActive: true}
	if err := json.Unmarshal(encoded, entry); err != nil {
		return nil, types.NewValidationError("invalid entry file %s: %v", path, err)
	}
	return entry, nil
}

func newConfigCreateCmd(opts *cliOptions) *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a config entry",
		Example: `  configurine config create --name db.host --value db1.internal --tag environment:production
  configurine config create --name limits --type json --value '{"rps": 100}' --env staging
  configurine config create -f entry.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := &types.ConfigEntry{IsActive: true}
			if f.file != "" {
				var err error
				if entry, err = opts.readEntryFile(f.file, cmd.ErrOrStderr()); err != nil {
					return err
				}
				if err := f.apply(cmd, entry, false); err != nil {
					return err
				}
			} else {
				if !cmd.Flags().Changed("value") {
					return types.NewValidationError("--value or --file is required")
				}
				if err := f.apply(cmd, entry, true); err != nil {
					return err
				}
			}

			return opts.withConfigClient(cmd, func(cc *client.ConfigClient) error {
				created, err := cc.Create(entry)
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), created, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), format.Success("Created config entry %s", created.ID))
					return nil
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newConfigUpdateCmd(opts *cliOptions) *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a config entry",
		Long: `Update a config entry. With --file the entry is replaced by the file
contents; otherwise only the given flags change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withConfigClient(cmd, func(cc *client.ConfigClient) error {
				var entry *types.ConfigEntry
				var err error
				if f.file != "" {
					entry, err = opts.readEntryFile(f.file, cmd.ErrOrStderr())
				} else {
					entry, err = cc.Get(args[0])
				}
				if err != nil {
					return err
				}
				if err := f.apply(cmd, entry, false); err != nil {
					return err
				}
				entry.ID = args[0]
				if err := cc.Update(args[0], entry); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), format.Success("Updated config entry %s", args[0]))
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newConfigDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete config entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withConfigClient(cmd, func(cc *client.ConfigClient) error {
				for _, id := range args {
					if err := cc.Delete(id); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), format.Success("Deleted config entry %s", id))
				}
				return nil
			})
		},
	}
}

func writeValue(w io.Writer, v types.Value) error {
	if s, ok := v.AsString(); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func displayValue(entry *types.ConfigEntry) string {
	if entry.IsSensitive {
		return "********"
	}
	data, err := json.Marshal(entry.Value)
	if err != nil {
		return "?"
	}
	return utils.Truncate(string(data), 40)
}

func tagList(tags []types.Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

func associationList(a types.Associations) string {
	var parts []string
	for _, env := range a.Environments {
		parts = append(parts, "env:"+env)
	}
	for _, app := range a.Applications {
		for _, v := range app.Versions {
			parts = append(parts, app.Name+"@"+v)
		}
	}
	return strings.Join(parts, ",")
}

func renderEntries(w io.Writer, entries []*types.ConfigEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No config entries found")
		return nil
	}
	rows := [][]string{{"ID", "NAME", "VALUE", "TAGS", "ASSOCIATIONS", "ACTIVE", "OWNER"}}
	for _, e := range entries {
		active := "active"
		if !e.IsActive {
			active = "inactive"
		}
		rows = append(rows, []string{
			e.ID, e.Name, displayValue(e), tagList(e.Tags), associationList(e.Associations),
			format.StatusLabel(active), e.Owner,
		})
	}
	return renderTable(w, rows)
}

func printEntry(w io.Writer, e *types.ConfigEntry) error {
	value := "********"
	if !e.IsSensitive {
		data, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}
		value = string(data)
	}
	fmt.Fprintln(w, format.Label("ID", e.ID))
	fmt.Fprintln(w, format.Label("Name", e.Name))
	fmt.Fprintln(w, format.Label("Value", value))
	fmt.Fprintln(w, format.Label("Tags", tagList(e.Tags)))
	fmt.Fprintln(w, format.Label("Associations", associationList(e.Associations)))
	fmt.Fprintln(w, format.Label("Active", yesNo(e.IsActive)))
	fmt.Fprintln(w, format.Label("Sensitive", yesNo(e.IsSensitive)))
	fmt.Fprintln(w, format.Label("Owner", e.Owner))
	fmt.Fprintln(w, format.Label("Created", formatTime(e.Created)))
	fmt.Fprintln(w, format.Label("Modified", formatTime(e.Modified)))
	return nil
}
