package snapshotcmder

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/utils"
)

const provenanceLongDesc string = `Show the value of a field and the observations that determined it.

Examples:
  truthstore snapshot provenance acme name`

func newProvenanceCmd() *cobra.Command {
	var target apitarget.Target

	cmd := &cobra.Command{
		Use:   "provenance <key> <field>",
		Short: "Show where a field came from",
		Long:  provenanceLongDesc,
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			prov, err := c.GetProvenance(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n  %s.%s = %s\n\n",
				cliui.KeyStyle.Render(prov.Key),
				cliui.KeyStyle.Render(prov.Field),
				cliui.ValueStyle.Render(utils.Truncate(prov.Value.String(), maxValueLen)),
			)
			printObservations(out, prov.Observations)
			return nil
		},
	}

	target.AddFlags(cmd)

	return cmd
}

const historyLongDesc string = `List every observation of a key in reduction order.

Examples:
  truthstore snapshot history acme`

func newHistoryCmd() *cobra.Command {
	var target apitarget.Target

	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "List the observations of a key",
		Long:  historyLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			history, err := c.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			printObservations(out, history.Observations)
			return nil
		},
	}

	target.AddFlags(cmd)

	return cmd
}

func printObservations(out io.Writer, obs []*observation.Observation) {
	if len(obs) == 0 {
		fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("(no observations)"))
		return
	}

	for _, o := range obs {
		fmt.Fprintf(out, "  %s  %s\n",
			cliui.ValueStyle.Render(o.ID),
			cliui.DimStyle.Render(fmt.Sprintf("priority %d, specificity %.2f, observed %s",
				o.SourcePriority, o.SpecificityScore, o.ObservedAt.Format(time.RFC3339))),
		)
		for _, name := range sortedNames(o.Fields) {
			fmt.Fprintf(out, "      %s = %s\n",
				cliui.KeyStyle.Render(name),
				utils.Truncate(o.Fields[name].String(), maxValueLen),
			)
		}
	}
	fmt.Fprintln(out)
}
