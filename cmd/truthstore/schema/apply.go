package schemacmder

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/api/client"
	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
	"github.com/papercomputeco/truthstore/pkg/schema"
)

const applyLongDesc string = `Register schema definition files.

Each file is YAML (.yaml, .yml) or TOML (.toml). A file that sets
"activate: true" is activated once registered. A file that sets owner_scope
is registered for that owner; otherwise --owner is used, and no owner means
the global scope.

Examples:
  truthstore schema apply schemas/company.yaml
  truthstore schema apply schemas/*.yaml --owner acme-corp`

const applyShortDesc string = "Register schema definition files"

func newApplyCmd() *cobra.Command {
	target := &apitarget.Target{OwnerOptional: true}

	cmd := &cobra.Command{
		Use:   "apply <file>...",
		Short: applyShortDesc,
		Long:  applyLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), cmd.OutOrStdout(), target, args)
		},
	}

	target.AddFlags(cmd)

	return cmd
}

func runApply(ctx context.Context, out io.Writer, target *apitarget.Target, paths []string) error {
	fmt.Fprintln(out)
	for _, path := range paths {
		f, err := schema.LoadFile(path)
		if err != nil {
			return err
		}

		owner := target.Owner
		if f.OwnerScope != "" {
			owner = f.OwnerScope
		}
		c, err := client.New(target.APITarget, owner)
		if err != nil {
			return err
		}

		var def *schema.Definition
		msg := fmt.Sprintf("Registering %s %s from %s", f.Type, f.Version, filepath.Base(path))
		err = cliui.Step(out, msg, func() error {
			var err error
			def, err = c.RegisterSchema(ctx, &api.SchemaRequest{
				Type:     f.Type,
				Version:  f.Version,
				Fields:   f.Fields,
				Policies: f.Policies,
				Activate: f.Activate,
			})
			return err
		})
		if err != nil {
			return err
		}

		status := "registered"
		if f.Activate {
			status = "registered and activated"
		}
		fmt.Fprintf(out, "    %s %s %s\n",
			cliui.KeyStyle.Render(def.Type),
			cliui.ValueStyle.Render(def.Version),
			cliui.DimStyle.Render(status+" ("+scopeLabel(def.OwnerScope)+")"),
		)
	}
	fmt.Fprintln(out)
	return nil
}

func scopeLabel(owner string) string {
	if owner == "" {
		return "global"
	}
	return "owner " + owner
}
