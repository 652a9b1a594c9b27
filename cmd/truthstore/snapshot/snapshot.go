// Package snapshotcmder provides the snapshot command for reading and
// tombstoning snapshots on a running truthstore server.
package snapshotcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/utils"
	"github.com/papercomputeco/truthstore/pkg/value"
)

const snapshotLongDesc string = `Read snapshots from a running truthstore server.

Use subcommands to inspect or tombstone snapshots:
  truthstore snapshot get <key>                 Show a snapshot
  truthstore snapshot list                      List snapshots
  truthstore snapshot provenance <key> <field>  Show where a field came from
  truthstore snapshot history <key>             List the observations of a key
  truthstore snapshot delete <key>              Tombstone a key
  truthstore snapshot restore <key>             Lift a tombstone`

const snapshotShortDesc string = "Read and tombstone snapshots"

// maxValueLen bounds field values in tables.
const maxValueLen = 60

func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: snapshotShortDesc,
		Long:  snapshotLongDesc,
	}

	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newProvenanceCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newRestoreCmd())

	return cmd
}

const getLongDesc string = `Show the current snapshot of a key.

Prints each field with the observations that determined it. Output is
rendered as markdown on a terminal; use --json for machine readable output.

Examples:
  truthstore snapshot get acme
  truthstore snapshot get supplies:acme:globex --json
  truthstore snapshot get acme --include-deleted`

func newGetCmd() *cobra.Command {
	var (
		target         apitarget.Target
		includeDeleted bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show a snapshot",
		Long:  getLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			snap, err := c.GetSnapshot(cmd.Context(), args[0], includeDeleted)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			return writeMarkdown(cmd.OutOrStdout(), SnapshotMarkdown(snap))
		},
	}

	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Return tombstoned snapshots")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	target.AddFlags(cmd)

	return cmd
}

// SnapshotMarkdown renders snap as a markdown document with one table row
// per field.
func SnapshotMarkdown(snap *reducer.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", snap.Key)
	fmt.Fprintf(&b, "- **type:** %s\n", snap.EntityType)
	if snap.SchemaVersion != "" {
		fmt.Fprintf(&b, "- **schema:** %s\n", snap.SchemaVersion)
	}
	fmt.Fprintf(&b, "- **observations:** %d\n", snap.ObservationCount)
	fmt.Fprintf(&b, "- **computed:** %s\n", snap.ComputedAt.Format(time.RFC3339))
	if snap.Deleted {
		b.WriteString("- **deleted:** true\n")
	}
	b.WriteString("\n")

	b.WriteString("| field | value | observations |\n")
	b.WriteString("|---|---|---|\n")
	for _, name := range sortedNames(snap.Fields) {
		fmt.Fprintf(&b, "| %s | %s | %s |\n",
			name,
			escapeCell(utils.Truncate(snap.Fields[name].String(), maxValueLen)),
			strings.Join(snap.Provenance[name], ", "),
		)
	}

	return b.String()
}

func sortedNames(fields map[string]value.Value) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// writeMarkdown renders md through glamour when stdout is a terminal and
// prints it verbatim otherwise.
func writeMarkdown(out io.Writer, md string) error {
	if f, ok := out.(*os.File); ok && cliui.IsTerminal(f) {
		rendered, err := cliui.RenderMarkdown(md, cliui.WrapWidth(f))
		if err == nil {
			md = rendered
		}
	}
	_, err := io.WriteString(out, md)
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
