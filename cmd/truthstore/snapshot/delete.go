package snapshotcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/api/client"
	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
)

const deleteLongDesc string = `Tombstone a key.

The snapshot is hidden from reads and listings; its observations are kept
and it can be restored.

Examples:
  truthstore snapshot delete acme`

const restoreLongDesc string = `Lift the tombstone of a key.

Examples:
  truthstore snapshot restore acme`

func newDeleteCmd() *cobra.Command {
	return newTombstoneCmd("delete <key>", "Tombstone a key", deleteLongDesc, "Deleted",
		func(ctx context.Context, c *client.Client, key string) (*api.ObservationResponse, error) {
			return c.SoftDelete(ctx, key)
		})
}

func newRestoreCmd() *cobra.Command {
	return newTombstoneCmd("restore <key>", "Lift a tombstone", restoreLongDesc, "Restored",
		func(ctx context.Context, c *client.Client, key string) (*api.ObservationResponse, error) {
			return c.Restore(ctx, key)
		})
}

func newTombstoneCmd(use, short, long, verb string, call func(context.Context, *client.Client, string) (*api.ObservationResponse, error)) *cobra.Command {
	var target apitarget.Target

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			resp, err := call(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s %s %s %s\n\n",
				cliui.SuccessMark,
				verb,
				cliui.KeyStyle.Render(args[0]),
				cliui.DimStyle.Render("("+resp.ObservationID+")"),
			)
			return nil
		},
	}

	target.AddFlags(cmd)

	return cmd
}
