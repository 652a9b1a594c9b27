// Package versioncmder
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/utils"
)

type VersionCommander struct {
	target apitarget.Target
	server bool
	json   bool
}

const versionLongDesc string = `Display the version of the truthstore CLI.

With --server the version of the running API server is shown as well.

Examples:
  truthstore version
  truthstore version --server --api-target http://localhost:8090
  truthstore version --json`

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{
		target: apitarget.Target{OwnerOptional: true},
	}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  versionLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmder.server {
				return nil
			}
			return cmder.target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.server, "server", false, "Also query the version of the API server")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print JSON")
	cmder.target.AddFlags(cmd)

	return cmd
}

func (c *VersionCommander) run(cmd *cobra.Command) error {
	versions := map[string]utils.BuildInfo{"cli": utils.CurrentBuild()}

	if c.server {
		client, err := c.target.Client()
		if err != nil {
			return err
		}
		info, err := client.Version(cmd.Context())
		if err != nil {
			return err
		}
		versions["server"] = *info
	}

	out := cmd.OutOrStdout()
	if c.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(versions)
	}

	printBuild(out, "", versions["cli"])
	if info, ok := versions["server"]; ok {
		printBuild(out, "Server ", info)
	}
	return nil
}

func printBuild(out io.Writer, prefix string, info utils.BuildInfo) {
	fmt.Fprintf(out, "%sVersion: %s\n%sSha: %s\n%sBuilt at: %s\n",
		prefix, info.Version, prefix, info.Sha, prefix, info.Buildtime)
}
