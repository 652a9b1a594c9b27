// Package apitarget holds the flags shared by commands that talk to a
// running truthstore API server.
package apitarget

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/api/client"
	"github.com/papercomputeco/truthstore/pkg/config"
)

// OwnerEnv supplies the owner scope when --owner is not given.
const OwnerEnv = "TRUTHSTORE_OWNER"

// Target is the server and owner scope a command acts against.
type Target struct {
	APITarget string
	Owner     string

	// OwnerOptional allows an empty owner, which schema commands read as
	// the global scope.
	OwnerOptional bool
}

// AddFlags registers --api-target and --owner on cmd.
func (t *Target) AddFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &t.APITarget)
	cmd.Flags().StringVarP(&t.Owner, "owner", "o", "", "Owner scope of the request (default: $"+OwnerEnv+")")
}

// Resolve fills values the user did not pass as flags: the API target from
// config.toml and the owner from the environment.
func (t *Target) Resolve(cmd *cobra.Command) error {
	if !cmd.Flags().Changed("api-target") {
		configDir, _ := cmd.Flags().GetString("config-dir")
		cfger, err := config.NewConfiger(configDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg, err := cfger.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		t.APITarget = cfg.Client.APITarget
	}

	if t.Owner == "" {
		t.Owner = strings.TrimSpace(os.Getenv(OwnerEnv))
	}
	if t.Owner == "" && !t.OwnerOptional {
		return errors.New("owner scope is required; pass --owner or set " + OwnerEnv)
	}
	return nil
}

// Client builds an API client for the resolved target.
func (t *Target) Client() (*client.Client, error) {
	return client.New(t.APITarget, t.Owner)
}
