package schemacmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
)

const activateLongDesc string = `Activate a registered schema version.

Observations submitted after activation are validated against the new
version; snapshots are rebuilt with its merge policies on their next
recompute.

Examples:
  truthstore schema activate company 1.1.0
  truthstore schema activate company 2.0.0 --owner acme-corp`

const activateShortDesc string = "Activate a schema version"

func newActivateCmd() *cobra.Command {
	target := &apitarget.Target{OwnerOptional: true}

	cmd := &cobra.Command{
		Use:   "activate <type> <version>",
		Short: activateShortDesc,
		Long:  activateLongDesc,
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			activation, err := c.ActivateSchema(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Activated %s %s %s\n\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(activation.Type),
				cliui.ValueStyle.Render(activation.Version),
				cliui.DimStyle.Render("("+scopeLabel(activation.OwnerScope)+")"),
			)
			return nil
		},
	}

	target.AddFlags(cmd)

	return cmd
}

const deactivateLongDesc string = `Deactivate the active schema version.

The version must be the active one. Without an active schema, an owner falls
back to the global schema, and without either, observations are stored
unvalidated.

Examples:
  truthstore schema deactivate company 1.1.0 --owner acme-corp`

const deactivateShortDesc string = "Deactivate a schema version"

func newDeactivateCmd() *cobra.Command {
	target := &apitarget.Target{OwnerOptional: true}

	cmd := &cobra.Command{
		Use:   "deactivate <type> <version>",
		Short: deactivateShortDesc,
		Long:  deactivateLongDesc,
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.Client()
			if err != nil {
				return err
			}

			if err := c.DeactivateSchema(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Deactivated %s %s\n\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(args[0]),
				cliui.ValueStyle.Render(args[1]),
			)
			return nil
		},
	}

	target.AddFlags(cmd)

	return cmd
}
