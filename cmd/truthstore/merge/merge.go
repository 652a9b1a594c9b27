// Package mergecmder provides the merge command for folding a duplicate
// entity into its canonical key.
package mergecmder

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
)

const mergeLongDesc string = `Merge a duplicate entity into another.

Every observation of <from-key> is moved to <to-key> and the snapshot of
<to-key> is recomputed. Reads of <from-key> afterwards report the key it
was merged into. Both keys must belong to the same owner and have the same
entity type, and a key can be merged away only once.

Examples:
  truthstore merge acme-inc acme --reason "same tax id"`

const mergeShortDesc string = "Merge a duplicate entity"

func NewMergeCmd() *cobra.Command {
	var (
		target apitarget.Target
		reason string
		actor  string
	)

	cmd := &cobra.Command{
		Use:   "merge <from-key> <to-key>",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			if actor == "" {
				if u, err := user.Current(); err == nil {
					actor = u.Username
				}
			}

			record, err := c.Merge(cmd.Context(), &api.MergeRequest{
				FromKey: args[0],
				ToKey:   args[1],
				Reason:  reason,
				Actor:   actor,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Merged %s into %s\n  %s\n\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(record.FromKey),
				cliui.KeyStyle.Render(record.ToKey),
				cliui.DimStyle.Render(fmt.Sprintf("%d observations moved (%s)", record.ObservationsRewritten, record.ID)),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the keys are the same entity")
	cmd.Flags().StringVar(&actor, "actor", "", "Who requested the merge (default: current user)")
	target.AddFlags(cmd)

	return cmd
}
