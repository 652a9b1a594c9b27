package sqldriver

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/storage"
)

const entitiesTable = "entities"

var entityColumns = []string{
	"entity_key", "kind", "entity_type", "owner_scope",
	"source_id", "target_id", "merged_into", "created_at",
}

func scanEntity(rows *sql.Rows) (*storage.Entity, error) {
	var (
		e       storage.Entity
		kind    string
		created int64
	)
	if err := rows.Scan(
		&e.Key, &kind, &e.EntityType, &e.OwnerScope,
		&e.SourceID, &e.TargetID, &e.MergedInto, &created,
	); err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	e.Kind = observation.TargetKind(kind)
	e.CreatedAt = fromNanos(created)
	return &e, nil
}

func (s *store) GetEntity(ctx context.Context, key string) (*storage.Entity, error) {
	sel := s.builder().Select(entityColumns...).
		From(s.builder().Table(entitiesTable)).
		Where(entsql.EQ("entity_key", key))

	var found *storage.Entity
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		e, err := scanEntity(rows)
		found = e
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}
	if found == nil {
		return nil, &storage.NotFoundError{Resource: "entity", Key: key}
	}
	return found, nil
}

func (s *store) PutEntity(ctx context.Context, e *storage.Entity) error {
	ins := s.builder().Insert(entitiesTable).
		Columns(entityColumns...).
		Values(
			e.Key, string(e.Kind), e.EntityType, e.OwnerScope,
			e.SourceID, e.TargetID, e.MergedInto, toNanos(e.CreatedAt),
		).
		OnConflict(
			entsql.ConflictColumns("entity_key"),
			entsql.ResolveWithNewValues(),
		)

	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to store entity: %w", err)
	}
	return nil
}

func (s *store) ListEntities(ctx context.Context, q storage.EntityQuery) ([]*storage.Entity, error) {
	var preds []*entsql.Predicate
	if q.OwnerScope != "" {
		preds = append(preds, entsql.EQ("owner_scope", q.OwnerScope))
	}
	if q.EntityType != "" {
		preds = append(preds, entsql.EQ("entity_type", q.EntityType))
	}
	if q.Kind != "" {
		preds = append(preds, entsql.EQ("kind", string(q.Kind)))
	}
	if q.MergedInto != "" {
		preds = append(preds, entsql.EQ("merged_into", q.MergedInto))
	}
	if len(q.SourceIn) > 0 {
		preds = append(preds, entsql.In("source_id", anySlice(q.SourceIn)...))
	}
	if len(q.TargetIn) > 0 {
		preds = append(preds, entsql.In("target_id", anySlice(q.TargetIn)...))
	}

	sel := s.builder().Select(entityColumns...).
		From(s.builder().Table(entitiesTable)).
		OrderBy("entity_key")
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	var out []*storage.Entity
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		e, err := scanEntity(rows)
		if err == nil {
			out = append(out, e)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return out, nil
}
