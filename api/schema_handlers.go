package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/truthstore/pkg/schema"
)

// SchemaListResponse is the body of GET /v1/schemas/:type.
type SchemaListResponse struct {
	Type string `json:"type"`

	// Active is the active version, empty when none is active.
	Active   string               `json:"active,omitempty"`
	Versions []*schema.Definition `json:"versions"`
}

// Schema routes use the owner header when present and the global scope
// otherwise.
func (s *Server) handleRegisterSchema(c *fiber.Ctx) error {
	var req SchemaRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	ctx := c.UserContext()
	registry := s.ledger.Registry()

	def, err := registry.Register(ctx, &schema.Definition{
		Type:       req.Type,
		Version:    req.Version,
		OwnerScope: c.Get(OwnerHeader),
		Fields:     req.Fields,
		Policies:   req.Policies,
	})
	if err != nil {
		return s.fail(c, err)
	}

	if req.Activate {
		if _, err := registry.Activate(ctx, def.Type, def.Version, def.OwnerScope); err != nil {
			return s.fail(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (s *Server) handleListSchemas(c *fiber.Ctx) error {
	ctx := c.UserContext()
	typ := c.Params("type")
	owner := c.Get(OwnerHeader)
	registry := s.ledger.Registry()

	defs, err := registry.List(ctx, typ, owner)
	if err != nil {
		return s.fail(c, err)
	}
	if len(defs) == 0 {
		return s.fail(c, schema.ErrSchemaNotFound)
	}

	resp := SchemaListResponse{Type: typ, Versions: defs}
	active, err := registry.LoadActive(ctx, typ, owner)
	switch {
	case err == nil:
		resp.Active = active.Version
	case !errors.Is(err, schema.ErrSchemaNotFound):
		return s.fail(c, err)
	}

	return c.JSON(resp)
}

func (s *Server) handleUpdateSchema(c *fiber.Ctx) error {
	var req SchemaUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	def, err := s.ledger.Registry().UpdateIncremental(c.UserContext(), c.Params("type"), c.Get(OwnerHeader), req.Fields, req.Policies)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(def)
}

func (s *Server) handleActivateSchema(c *fiber.Ctx) error {
	activation, err := s.ledger.Registry().Activate(c.UserContext(), c.Params("type"), c.Params("version"), c.Get(OwnerHeader))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(activation)
}

func (s *Server) handleDeactivateSchema(c *fiber.Ctx) error {
	err := s.ledger.Registry().Deactivate(c.UserContext(), c.Params("type"), c.Params("version"), c.Get(OwnerHeader))
	if err != nil {
		return s.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
