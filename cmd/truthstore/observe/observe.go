// Package observecmder provides the observe command for submitting
// observations and corrections to a running truthstore server.
package observecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/cliui"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/value"
)

type observeCommander struct {
	target apitarget.Target

	entityType       string
	priority         int
	specificity      float64
	idempotencyKey   string
	sourceID         string
	interpretationID string
	file             string
	correction       bool
	reason           string
	sync             bool
}

const observeLongDesc string = `Submit an observation about a key.

Fields are given as field=value pairs. Values that parse as JSON (numbers,
booleans, arrays, objects, null) keep their type; anything else is a
string. Use --file to read the fields from a JSON object instead; pairs on
the command line override fields from the file.

Relationship keys have the form type:source:target.

With --correction the fields are stored as a user correction, which
outranks every agent and interpretation source. --reason records why.

Examples:
  truthstore observe acme name="Acme Inc" employees=120 --type company
  truthstore observe acme --file extracted.json --priority 50 --specificity 0.8
  truthstore observe acme name="Acme Incorporated" --correction --reason "renamed in 2024"
  truthstore observe supplies:acme:globex since=2020`

const observeShortDesc string = "Submit an observation"

func NewObserveCmd() *cobra.Command {
	cmder := &observeCommander{}

	cmd := &cobra.Command{
		Use:   "observe <key> [field=value...]",
		Short: observeShortDesc,
		Long:  observeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.target.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&cmder.entityType, "type", "t", "", "Entity type (required for new entity keys)")
	cmd.Flags().IntVarP(&cmder.priority, "priority", "p", observation.PriorityAgent, "Source priority")
	cmd.Flags().Float64Var(&cmder.specificity, "specificity", 0.5, "Specificity score in [0, 1]")
	cmd.Flags().StringVar(&cmder.idempotencyKey, "idempotency-key", "", "Deduplicate resubmissions for this key")
	cmd.Flags().StringVar(&cmder.sourceID, "source-id", "", "Identifier of the source document")
	cmd.Flags().StringVar(&cmder.interpretationID, "interpretation-id", "", "Identifier of the interpretation run")
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "JSON file holding the fields object")
	cmd.Flags().BoolVar(&cmder.correction, "correction", false, "Submit as a user correction")
	cmd.Flags().StringVar(&cmder.reason, "reason", "", "Why the values are being corrected (with --correction)")
	cmd.Flags().BoolVar(&cmder.sync, "sync", false, "Wait for the snapshot to be recomputed")
	cmder.target.AddFlags(cmd)

	return cmd
}

func (c *observeCommander) run(ctx context.Context, out io.Writer, key string, pairs []string) error {
	fields, err := c.fields(pairs)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return errors.New("no fields given; pass field=value pairs or --file")
	}

	cl, err := c.target.Client()
	if err != nil {
		return err
	}

	var resp *api.ObservationResponse
	if c.correction {
		resp, err = cl.RequestCorrection(ctx, &api.CorrectionRequest{
			Key:            key,
			EntityType:     c.entityType,
			Fields:         fields,
			Reason:         c.reason,
			IdempotencyKey: c.idempotencyKey,
		})
	} else {
		resp, err = cl.SubmitObservation(ctx, &api.ObservationRequest{
			Key:              key,
			EntityType:       c.entityType,
			Fields:           fields,
			SourcePriority:   c.priority,
			SpecificityScore: c.specificity,
			IdempotencyKey:   c.idempotencyKey,
			SourceID:         c.sourceID,
			InterpretationID: c.interpretationID,
			Sync:             c.sync,
		})
	}
	if err != nil {
		return err
	}

	kind := "observation"
	if c.correction {
		kind = "correction"
	}
	fmt.Fprintf(out, "\n  %s Stored %s for %s\n  %s %s\n\n",
		cliui.SuccessMark,
		kind,
		cliui.KeyStyle.Render(key),
		cliui.DimStyle.Render("id:"),
		cliui.ValueStyle.Render(resp.ObservationID),
	)
	return nil
}

// fields merges the --file object with the command line pairs.
func (c *observeCommander) fields(pairs []string) (map[string]value.Value, error) {
	fields := map[string]value.Value{}

	if c.file != "" {
		data, err := os.ReadFile(c.file)
		if err != nil {
			return nil, fmt.Errorf("reading fields file: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing fields file %s: %w", c.file, err)
		}
		fromFile, err := value.FromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing fields file %s: %w", c.file, err)
		}
		for name, v := range fromFile {
			fields[name] = v
		}
	}

	for _, pair := range pairs {
		name, v, err := ParsePair(pair)
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}

	return fields, nil
}

// ParsePair parses one field=value argument.
func ParsePair(pair string) (string, value.Value, error) {
	name, raw, ok := strings.Cut(pair, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", value.Value{}, fmt.Errorf("invalid field %q: expected field=value", pair)
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return name, value.String(raw), nil
	}

	v, err := value.FromAny(decoded)
	if err != nil {
		return "", value.Value{}, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return name, v, nil
}
