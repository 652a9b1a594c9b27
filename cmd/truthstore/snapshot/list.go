package snapshotcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
)

const listLongDesc string = `List the snapshots of an owner, ordered by key.

Examples:
  truthstore snapshot list
  truthstore snapshot list --type company --limit 20`

func newListCmd() *cobra.Command {
	var (
		target     apitarget.Target
		entityType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			resp, err := c.ListSnapshots(cmd.Context(), entityType, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resp.Count == 0 {
				fmt.Fprintln(out, "No snapshots found.")
				return nil
			}

			maxLen := 0
			for _, snap := range resp.Snapshots {
				if len(snap.Key) > maxLen {
					maxLen = len(snap.Key)
				}
			}

			fmt.Fprintln(out)
			for _, snap := range resp.Snapshots {
				fmt.Fprintf(out, "  %s  %s  %s\n",
					cliui.KeyStyle.Render(fmt.Sprintf("%-*s", maxLen, snap.Key)),
					cliui.ValueStyle.Render(snap.EntityType),
					cliui.DimStyle.Render(fmt.Sprintf("%d fields, %d observations", len(snap.Fields), snap.ObservationCount)),
				)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&entityType, "type", "t", "", "Only list snapshots of this entity type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of snapshots (0 for all)")
	target.AddFlags(cmd)

	return cmd
}
