// Package schemacmder provides the schema command for registering and
// activating schema versions on a running truthstore server.
package schemacmder

import (
	"github.com/spf13/cobra"
)

const schemaLongDesc string = `Manage schema versions on a running truthstore server.

Schemas are registered per entity or relationship type. An empty owner
scope registers the global schema, which applies to every owner without an
active schema of its own.

Use subcommands to register, activate or inspect versions:
  truthstore schema apply <file>...               Register schema files
  truthstore schema activate <type> <version>     Activate a version
  truthstore schema deactivate <type> <version>   Deactivate the active version
  truthstore schema list <type>                   List registered versions`

const schemaShortDesc string = "Manage schema versions"

func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: schemaShortDesc,
		Long:  schemaLongDesc,
	}

	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newActivateCmd())
	cmd.AddCommand(newDeactivateCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
