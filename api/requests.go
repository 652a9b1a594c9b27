package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/value"
)

var validate = validator.New()

// ObservationRequest is the body of POST /v1/observations.
type ObservationRequest struct {
	Key              string                 `json:"key" validate:"required"`
	EntityType       string                 `json:"entity_type,omitempty"`
	Fields           map[string]value.Value `json:"fields" validate:"required"`
	SourcePriority   int                    `json:"source_priority" validate:"gte=0"`
	SpecificityScore float64                `json:"specificity_score" validate:"gte=0,lte=1"`
	ObservedAt       time.Time              `json:"observed_at,omitzero"`
	IdempotencyKey   string                 `json:"idempotency_key,omitempty"`
	SourceID         string                 `json:"source_id,omitempty"`
	InterpretationID string                 `json:"interpretation_id,omitempty"`
	Sync             bool                   `json:"sync,omitempty"`
}

// CorrectionRequest is the body of POST /v1/corrections.
type CorrectionRequest struct {
	Key            string                 `json:"key" validate:"required"`
	EntityType     string                 `json:"entity_type,omitempty"`
	Fields         map[string]value.Value `json:"fields" validate:"required"`
	Reason         string                 `json:"reason,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// MergeRequest is the body of POST /v1/merges.
type MergeRequest struct {
	FromKey string `json:"from_key" validate:"required"`
	ToKey   string `json:"to_key" validate:"required"`
	Reason  string `json:"reason,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

// SchemaRequest is the body of POST /v1/schemas.
type SchemaRequest struct {
	Type     string                        `json:"type" validate:"required"`
	Version  string                        `json:"version" validate:"required"`
	Fields   map[string]schema.FieldDef    `json:"fields" validate:"required,min=1"`
	Policies map[string]schema.MergePolicy `json:"merge_policies,omitempty"`

	// Activate makes the registered version active immediately.
	Activate bool `json:"activate,omitempty"`
}

// SchemaUpdateRequest is the body of PATCH /v1/schemas/:type.
type SchemaUpdateRequest struct {
	Fields   map[string]schema.FieldDef    `json:"fields" validate:"required,min=1"`
	Policies map[string]schema.MergePolicy `json:"merge_policies,omitempty"`
}

// ObservationResponse reports the id of a stored (or deduplicated) observation.
type ObservationResponse struct {
	ObservationID string `json:"observation_id"`
}

// parseBody decodes and validates the JSON body into req.
func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	if err := validate.Struct(req); err != nil {
		return err
	}
	return nil
}

// ownerScope returns the owner scope of the request.
func ownerScope(c *fiber.Ctx) (string, error) {
	owner := c.Get(OwnerHeader)
	if owner == "" {
		return "", errMissingOwner
	}
	return owner, nil
}
