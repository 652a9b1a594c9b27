package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/value"
)

var (
	getSnapshotToolName    = "get_snapshot"
	getSnapshotDescription = "Get the current merged snapshot of an entity or relationship: every field resolved from all observations, with the observation ids that determined each field."

	getProvenanceToolName    = "get_provenance"
	getProvenanceDescription = "Explain one field of a snapshot: its resolved value and the observations it came from, in reduction order."

	submitObservationToolName    = "submit_observation"
	submitObservationDescription = "Submit an observation (a set of field values from one source) about an entity or a \"type:source:target\" relationship. Returns the observation id."

	requestCorrectionToolName    = "request_correction"
	requestCorrectionDescription = "Submit a user correction. Corrections outrank every automated source and are applied before the tool returns."
)

// SnapshotInput identifies a snapshot.
type SnapshotInput struct {
	OwnerScope string `json:"owner_scope" jsonschema:"the owner the entity belongs to"`
	Key        string `json:"key" jsonschema:"entity id or type:source:target relationship key"`
	Fresh      bool   `json:"fresh,omitempty" jsonschema:"recompute before reading"`
}

// SnapshotOutput is a snapshot with plain JSON field values.
type SnapshotOutput struct {
	Key               string              `json:"key"`
	EntityType        string              `json:"entity_type"`
	SchemaVersion     string              `json:"schema_version,omitempty"`
	Fields            map[string]any      `json:"fields"`
	Provenance        map[string][]string `json:"provenance"`
	ObservationCount  int                 `json:"observation_count"`
	LastObservationAt string              `json:"last_observation_at"`
	ComputedAt        string              `json:"computed_at"`
}

// ProvenanceInput identifies a snapshot field.
type ProvenanceInput struct {
	OwnerScope string `json:"owner_scope" jsonschema:"the owner the entity belongs to"`
	Key        string `json:"key" jsonschema:"entity id or relationship key"`
	Field      string `json:"field" jsonschema:"the field to explain"`
}

// ObservationSummary is one contributing observation.
type ObservationSummary struct {
	ID               string  `json:"id"`
	Value            any     `json:"value"`
	SourcePriority   int     `json:"source_priority"`
	SpecificityScore float64 `json:"specificity_score"`
	ObservedAt       string  `json:"observed_at"`
	SourceID         string  `json:"source_id,omitempty"`
}

// ProvenanceOutput explains a field.
type ProvenanceOutput struct {
	Key          string               `json:"key"`
	Field        string               `json:"field"`
	Value        any                  `json:"value"`
	Observations []ObservationSummary `json:"observations"`
}

// SubmitObservationInput is an observation offered by an agent.
type SubmitObservationInput struct {
	OwnerScope       string         `json:"owner_scope" jsonschema:"the owner the entity belongs to"`
	Key              string         `json:"key" jsonschema:"entity id or type:source:target relationship key"`
	EntityType       string         `json:"entity_type,omitempty" jsonschema:"entity type, required for new keys"`
	Fields           map[string]any `json:"fields" jsonschema:"field values"`
	SourcePriority   int            `json:"source_priority,omitempty" jsonschema:"source priority (default 100 for agents)"`
	SpecificityScore float64        `json:"specificity_score,omitempty" jsonschema:"specificity between 0 and 1"`
	IdempotencyKey   string         `json:"idempotency_key,omitempty" jsonschema:"deduplicates retries of the same submission"`
	SourceID         string         `json:"source_id,omitempty" jsonschema:"where the values came from"`
}

// CorrectionInput is a user correction.
type CorrectionInput struct {
	OwnerScope     string         `json:"owner_scope" jsonschema:"the owner the entity belongs to"`
	Key            string         `json:"key" jsonschema:"entity id or relationship key"`
	EntityType     string         `json:"entity_type,omitempty" jsonschema:"entity type, required for new keys"`
	Fields         map[string]any `json:"fields" jsonschema:"corrected field values"`
	Reason         string         `json:"reason,omitempty" jsonschema:"why the value is being corrected"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" jsonschema:"deduplicates retries of the same correction"`
}

// SubmitOutput reports the stored observation.
type SubmitOutput struct {
	ObservationID string `json:"observation_id"`
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// textResult serializes the structured output as JSON for the text field,
// for clients that ignore structured content.
func textResult(out any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toSnapshotOutput(snap *reducer.Snapshot) SnapshotOutput {
	provenance := snap.Provenance
	if provenance == nil {
		provenance = map[string][]string{}
	}
	return SnapshotOutput{
		Key:               snap.Key,
		EntityType:        snap.EntityType,
		SchemaVersion:     snap.SchemaVersion,
		Fields:            value.ToMap(snap.Fields),
		Provenance:        provenance,
		ObservationCount:  snap.ObservationCount,
		LastObservationAt: formatTime(snap.LastObservationAt),
		ComputedAt:        formatTime(snap.ComputedAt),
	}
}

func (s *Server) handleGetSnapshot(ctx context.Context, _ *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, SnapshotOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP get_snapshot request", "owner_scope", input.OwnerScope, "key", input.Key)

	snap, err := s.config.Ledger.GetSnapshot(ctx, input.OwnerScope, input.Key, ledger.GetOptions{Fresh: input.Fresh})
	if err != nil {
		return errorResult("Failed to get snapshot: %v", err), SnapshotOutput{}, nil
	}

	output := toSnapshotOutput(snap)
	result, err := textResult(output)
	if err != nil {
		logger.Error("failed to marshal snapshot output", "error", err)
		return errorResult("Failed to serialize snapshot: %v", err), SnapshotOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handleGetProvenance(ctx context.Context, _ *mcp.CallToolRequest, input ProvenanceInput) (*mcp.CallToolResult, ProvenanceOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP get_provenance request", "owner_scope", input.OwnerScope, "key", input.Key, "field", input.Field)

	prov, err := s.config.Ledger.GetProvenance(ctx, input.OwnerScope, input.Key, input.Field)
	if err != nil {
		return errorResult("Failed to get provenance: %v", err), ProvenanceOutput{}, nil
	}

	output := ProvenanceOutput{
		Key:          prov.Key,
		Field:        prov.Field,
		Value:        prov.Value.ToAny(),
		Observations: make([]ObservationSummary, 0, len(prov.Observations)),
	}
	for _, o := range prov.Observations {
		output.Observations = append(output.Observations, summarize(o, input.Field))
	}

	result, err := textResult(output)
	if err != nil {
		logger.Error("failed to marshal provenance output", "error", err)
		return errorResult("Failed to serialize provenance: %v", err), ProvenanceOutput{}, nil
	}
	return result, output, nil
}

func summarize(o *observation.Observation, field string) ObservationSummary {
	return ObservationSummary{
		ID:               o.ID,
		Value:            o.Fields[field].ToAny(),
		SourcePriority:   o.SourcePriority,
		SpecificityScore: o.SpecificityScore,
		ObservedAt:       formatTime(o.ObservedAt),
		SourceID:         o.SourceID,
	}
}

func (s *Server) handleSubmitObservation(ctx context.Context, _ *mcp.CallToolRequest, input SubmitObservationInput) (*mcp.CallToolResult, SubmitOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP submit_observation request", "owner_scope", input.OwnerScope, "key", input.Key)

	fields, err := value.FromMap(input.Fields)
	if err != nil {
		return errorResult("Invalid fields: %v", err), SubmitOutput{}, nil
	}

	priority := input.SourcePriority
	if priority == 0 {
		priority = observation.PriorityAgent
	}

	id, err := s.config.Ledger.SubmitObservation(ctx, ledger.Submission{
		OwnerScope:       input.OwnerScope,
		Key:              input.Key,
		EntityType:       input.EntityType,
		Fields:           fields,
		SourcePriority:   priority,
		SpecificityScore: input.SpecificityScore,
		IdempotencyKey:   input.IdempotencyKey,
		SourceID:         input.SourceID,
	})
	if err != nil {
		return errorResult("Failed to submit observation: %v", err), SubmitOutput{}, nil
	}

	output := SubmitOutput{ObservationID: id}
	result, err := textResult(output)
	if err != nil {
		return errorResult("Failed to serialize result: %v", err), SubmitOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handleRequestCorrection(ctx context.Context, _ *mcp.CallToolRequest, input CorrectionInput) (*mcp.CallToolResult, SubmitOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP request_correction request", "owner_scope", input.OwnerScope, "key", input.Key)

	fields, err := value.FromMap(input.Fields)
	if err != nil {
		return errorResult("Invalid fields: %v", err), SubmitOutput{}, nil
	}

	id, err := s.config.Ledger.RequestCorrection(ctx, ledger.Correction{
		OwnerScope:     input.OwnerScope,
		Key:            input.Key,
		EntityType:     input.EntityType,
		Fields:         fields,
		Reason:         input.Reason,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return errorResult("Failed to request correction: %v", err), SubmitOutput{}, nil
	}

	output := SubmitOutput{ObservationID: id}
	result, err := textResult(output)
	if err != nil {
		return errorResult("Failed to serialize result: %v", err), SubmitOutput{}, nil
	}
	return result, output, nil
}
