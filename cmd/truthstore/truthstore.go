// Package truthstorecmder
package truthstorecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/truthstore/cmd/truthstore/config"
	initcmder "github.com/papercomputeco/truthstore/cmd/truthstore/init"
	mergecmder "github.com/papercomputeco/truthstore/cmd/truthstore/merge"
	observecmder "github.com/papercomputeco/truthstore/cmd/truthstore/observe"
	schemacmder "github.com/papercomputeco/truthstore/cmd/truthstore/schema"
	servecmder "github.com/papercomputeco/truthstore/cmd/truthstore/serve"
	snapshotcmder "github.com/papercomputeco/truthstore/cmd/truthstore/snapshot"
	versioncmder "github.com/papercomputeco/truthstore/cmd/version"
)

const truthstoreLongDesc string = `Truthstore keeps one deterministic snapshot per entity, reduced from
observations submitted by many sources.

Run the server:
  truthstore serve                 Run the API and MCP server

Talk to a running server:
  truthstore schema apply <file>   Register a schema definition
  truthstore observe <key> k=v     Submit an observation
  truthstore snapshot get <key>    Show the current snapshot of a key
  truthstore merge <from> <to>     Merge a duplicate entity`

const truthstoreShortDesc string = "Truthstore - deterministic multi-source truth store"

func NewTruthstoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "truthstore",
		Short:        truthstoreShortDesc,
		Long:         truthstoreLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .truthstore/ directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(schemacmder.NewSchemaCmd())
	cmd.AddCommand(observecmder.NewObserveCmd())
	cmd.AddCommand(snapshotcmder.NewSnapshotCmd())
	cmd.AddCommand(mergecmder.NewMergeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
