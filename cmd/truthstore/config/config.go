// Package configcmder provides the config command for managing persistent
// truthstore configuration stored in the .truthstore/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/pkg/config"
)

const configLongDesc string = `Manage persistent truthstore configuration.

Configuration is stored as config.toml in the .truthstore/ directory and
provides default values for command flags. CLI flags and TRUTHSTORE_
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen, client.api_target,
  recompute.async, recompute.workers, recompute.queue_size,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  schema.dir, schema.watch

Use subcommands to get, set, or list configuration values:
  truthstore config set <key> <value>    Set a configuration value
  truthstore config get <key>            Get a configuration value
  truthstore config list                 List all configuration values

Examples:
  truthstore config set storage.driver postgres
  truthstore config set eventstream.brokers kafka-1:9092,kafka-2:9092
  truthstore config get storage.driver
  truthstore config list`

const configShortDesc string = "Manage persistent truthstore configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// validKeyArgs completes the key argument of get and set.
func validKeyArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
