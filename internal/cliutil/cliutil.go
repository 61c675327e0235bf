// Package cliutil is the shared rendering layer used by all three
// user-facing CLIs (spec §6): a one-line colored summary by default, or
// structured YAML when `--yaml` is passed (SUPPLEMENTED FEATURES #3).
package cliutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/ryanuber/columnize"
	"gopkg.in/yaml.v3"

	"github.com/dgbowl/tomato/internal/tomato"
)

// Render writes reply to w, either as a colored human summary or, if
// yamlOut is set, as structured YAML of the whole reply
// (success, msg and data).
func Render(w io.Writer, reply tomato.Reply, yamlOut bool) error {
	if yamlOut {
		buf, err := yaml.Marshal(reply)
		if err != nil {
			return fmt.Errorf("cliutil: marshal yaml: %w", err)
		}
		_, err = w.Write(buf)
		return err
	}

	label := color.GreenString("ok")
	if !reply.Success {
		label = color.RedString("failed")
	}
	fmt.Fprintf(w, "%s: %s\n", label, reply.Msg)
	return nil
}

// Table renders rows (first row is the header) as an aligned table, the
// way `nomad status` renders its listings.
func Table(w io.Writer, rows [][]string) error {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " | ")
	}
	fmt.Fprintln(w, columnize.SimpleFormat(lines))
	return nil
}

// ExitCode maps a Reply to the process exit code named in spec §6: 0 on
// success, non-zero on failure.
func ExitCode(reply tomato.Reply) int {
	if reply.Success {
		return 0
	}
	return 1
}
