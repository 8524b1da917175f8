package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mac-/configurine/pkg/types"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// render writes v as json or yaml, or calls table for the default table output.
func (o *cliOptions) render(w io.Writer, v interface{}, table func() error) error {
	switch o.output() {
	case "json":
		return writeJSON(w, v)
	case "yaml":
		return writeYAML(w, v)
	case "table", "":
		return table()
	default:
		return types.NewValidationError("unsupported output format %q, use table, json or yaml", o.output())
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeYAML goes through JSON so values keep their API field names and config values, which
// have no yaml form of their own, are included.
func writeYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// renderTable prints rows with the first row as header.
func renderTable(w io.Writer, rows [][]string) error {
	table := pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderStyle(pterm.NewStyle(pterm.FgCyan, pterm.Bold)).
		WithData(rows)
	s, err := table.Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
