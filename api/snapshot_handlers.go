package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/utils"
)

// SnapshotListResponse is the body of GET /v1/snapshots.
type SnapshotListResponse struct {
	Snapshots []*reducer.Snapshot `json:"snapshots"`
	Count     int                 `json:"count"`
}

// HistoryResponse lists the observations of a key in reduction order.
type HistoryResponse struct {
	Key          string                     `json:"key"`
	Observations []*observation.Observation `json:"observations"`
}

// FragmentsResponse lists the raw fragments of a key.
type FragmentsResponse struct {
	Key       string                     `json:"key"`
	Fragments []*observation.RawFragment `json:"fragments"`
}

// RelationshipsResponse lists the relationships of an entity.
type RelationshipsResponse struct {
	Key           string                 `json:"key"`
	Direction     ledger.Direction       `json:"direction"`
	Relationships []*ledger.Relationship `json:"relationships"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleVersion(c *fiber.Ctx) error {
	return c.JSON(utils.CurrentBuild())
}

func (s *Server) handleSubmitObservation(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	var req ObservationRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	id, err := s.ledger.SubmitObservation(c.UserContext(), ledger.Submission{
		OwnerScope:       owner,
		Key:              req.Key,
		EntityType:       req.EntityType,
		Fields:           req.Fields,
		SourcePriority:   req.SourcePriority,
		SpecificityScore: req.SpecificityScore,
		ObservedAt:       req.ObservedAt,
		IdempotencyKey:   req.IdempotencyKey,
		SourceID:         req.SourceID,
		InterpretationID: req.InterpretationID,
		Sync:             req.Sync,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ObservationResponse{ObservationID: id})
}

func (s *Server) handleRequestCorrection(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	var req CorrectionRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	id, err := s.ledger.RequestCorrection(c.UserContext(), ledger.Correction{
		OwnerScope:     owner,
		Key:            req.Key,
		EntityType:     req.EntityType,
		Fields:         req.Fields,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ObservationResponse{ObservationID: id})
}

func (s *Server) handleGetSnapshot(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	snap, err := s.ledger.GetSnapshot(c.UserContext(), owner, c.Params("key"), ledger.GetOptions{
		IncludeDeleted: c.QueryBool("include_deleted"),
		Fresh:          c.QueryBool("fresh"),
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(snap)
}

func (s *Server) handleListSnapshots(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	limit := c.QueryInt("limit")
	offset := c.QueryInt("offset")
	if limit < 0 || offset < 0 {
		return s.fail(c, badRequest(errNegativePage))
	}

	snaps, err := s.ledger.ListSnapshots(c.UserContext(), owner, ledger.ListQuery{
		EntityType:     c.Query("entity_type"),
		IncludeDeleted: c.QueryBool("include_deleted"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return s.fail(c, err)
	}

	if snaps == nil {
		snaps = []*reducer.Snapshot{}
	}
	return c.JSON(SnapshotListResponse{Snapshots: snaps, Count: len(snaps)})
}

func (s *Server) handleGetProvenance(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	prov, err := s.ledger.GetProvenance(c.UserContext(), owner, c.Params("key"), c.Params("field"))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(prov)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	key := c.Params("key")
	obs, err := s.ledger.History(c.UserContext(), owner, key)
	if err != nil {
		return s.fail(c, err)
	}

	if obs == nil {
		obs = []*observation.Observation{}
	}
	return c.JSON(HistoryResponse{Key: key, Observations: obs})
}

func (s *Server) handleFragments(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	key := c.Params("key")
	frags, err := s.ledger.Fragments(c.UserContext(), owner, key)
	if err != nil {
		return s.fail(c, err)
	}

	if frags == nil {
		frags = []*observation.RawFragment{}
	}
	return c.JSON(FragmentsResponse{Key: key, Fragments: frags})
}

func (s *Server) handleSoftDelete(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	id, err := s.ledger.SoftDelete(c.UserContext(), owner, c.Params("key"))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(ObservationResponse{ObservationID: id})
}

func (s *Server) handleRestore(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	id, err := s.ledger.Restore(c.UserContext(), owner, c.Params("key"))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(ObservationResponse{ObservationID: id})
}

func (s *Server) handleRecompute(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	snap, err := s.ledger.Recompute(c.UserContext(), owner, c.Params("key"))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(snap)
}

func (s *Server) handleMerge(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	var req MergeRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	record, err := s.ledger.MergeEntities(c.UserContext(), merge.Request{
		OwnerScope: owner,
		FromKey:    req.FromKey,
		ToKey:      req.ToKey,
		Reason:     req.Reason,
		Actor:      req.Actor,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (s *Server) handleListRelationships(c *fiber.Ctx) error {
	owner, err := ownerScope(c)
	if err != nil {
		return s.fail(c, err)
	}

	dir, err := ledger.ParseDirection(c.Query("direction"))
	if err != nil {
		return s.fail(c, badRequest(err))
	}

	key := c.Params("key")
	rels, err := s.ledger.ListRelationships(c.UserContext(), owner, key, dir)
	if err != nil {
		return s.fail(c, err)
	}

	if rels == nil {
		rels = []*ledger.Relationship{}
	}
	return c.JSON(RelationshipsResponse{Key: key, Direction: dir, Relationships: rels})
}
