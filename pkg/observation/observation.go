// Package observation defines immutable, source-attributed facts about one
// entity or relationship, and validates incoming fields against a schema.
package observation

import (
	"strings"
	"time"

	"github.com/papercomputeco/truthstore/pkg/value"
)

// Source priorities. Restorations sit one rank above deletions so they
// always win, while deletions outrank ordinary data.
const (
	PriorityInterpretation = 0
	PriorityAgent          = 100
	PriorityCorrection     = 1000
	PriorityRestoration    = 1001
)

// Observation is an immutable fact. Only a merge may rewrite Key.
type Observation struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	EntityType string `json:"entity_type"`
	OwnerScope string `json:"owner_scope"`

	// SchemaVersion is the version active when the observation was
	// created. Empty if no schema was active.
	SchemaVersion string `json:"schema_version,omitempty"`

	Fields map[string]value.Value `json:"fields"`

	SourcePriority   int       `json:"source_priority"`
	SpecificityScore float64   `json:"specificity_score"`
	ObservedAt       time.Time `json:"observed_at"`

	IdempotencyKey   string `json:"idempotency_key,omitempty"`
	SourceID         string `json:"source_id,omitempty"`
	InterpretationID string `json:"interpretation_id,omitempty"`

	// Reason is the free-text justification of a correction.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Defines reports whether the observation carries field.
func (o *Observation) Defines(field string) bool {
	_, ok := o.Fields[field]
	return ok
}

// FragmentReason explains why a field value became a raw fragment.
type FragmentReason string

const (
	ReasonUnknownField     FragmentReason = "unknown_field"
	ReasonTypeMismatch     FragmentReason = "type_mismatch"
	ReasonConversionFailed FragmentReason = "conversion_failed"
	ReasonConverted        FragmentReason = "converted_from_original"
	ReasonMissingRequired  FragmentReason = "missing_required"
	ReasonInvalidReserved  FragmentReason = "invalid_reserved"
)

// RawFragment preserves a field value that did not validate against the
// active schema. Identical fragments accumulate FrequencyCount.
type RawFragment struct {
	ID             string         `json:"id"`
	OwnerScope     string         `json:"owner_scope"`
	Key            string         `json:"key"`
	FieldName      string         `json:"field_name"`
	Value          value.Value    `json:"value"`
	TypeEnvelope   string         `json:"type_envelope"`
	Reason         FragmentReason `json:"reason"`
	ObservationID  string         `json:"observation_id,omitempty"`
	FrequencyCount int            `json:"frequency_count"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
}

// Identity is the de-duplication key of a fragment.
func (f *RawFragment) Identity() string {
	return strings.Join([]string{
		f.OwnerScope,
		f.Key,
		f.FieldName,
		string(f.Reason),
		f.Value.Canonical(),
	}, "\x1f")
}
