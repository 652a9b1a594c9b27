package schemacmder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
)

const listLongDesc string = `List the registered versions of a schema type.

The active version is marked with a ✓.

Examples:
  truthstore schema list company`

const listShortDesc string = "List schema versions"

func newListCmd() *cobra.Command {
	target := &apitarget.Target{OwnerOptional: true}

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			resp, err := c.ListSchemas(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n  %s\n\n", cliui.KeyStyle.Render(resp.Type))
			for _, def := range resp.Versions {
				mark := " "
				if def.Version == resp.Active {
					mark = cliui.SuccessMark
				}

				fields := make([]string, 0, len(def.Fields))
				for name := range def.Fields {
					fields = append(fields, name)
				}
				sort.Strings(fields)

				fmt.Fprintf(out, "  %s %s  %s\n",
					mark,
					cliui.ValueStyle.Render(def.Version),
					cliui.DimStyle.Render(strings.Join(fields, ", ")),
				)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	target.AddFlags(cmd)

	return cmd
}
