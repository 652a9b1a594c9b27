package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/schema"
)

const (
	schemasTable     = "schema_versions"
	activationsTable = "schema_activations"
)

func (s *store) selectSchemas(ctx context.Context, where *entsql.Predicate) ([]*schema.Definition, error) {
	sel := s.builder().Select("definition").
		From(s.builder().Table(schemasTable)).
		Where(where).
		OrderBy("created_at")

	var out []*schema.Definition
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan schema: %w", err)
		}
		var def schema.Definition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return fmt.Errorf("failed to decode schema: %w", err)
		}
		out = append(out, &def)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}
	return out, nil
}

func (s *store) InsertSchema(ctx context.Context, def *schema.Definition) error {
	existing, err := s.selectSchemas(ctx, entsql.And(
		entsql.EQ("schema_type", def.Type),
		entsql.EQ("owner_scope", def.OwnerScope),
		entsql.EQ("version", def.Version),
	))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s %s already stored", schema.ErrSchemaValidationFailed, def.Type, def.Version)
	}

	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	ins := s.builder().Insert(schemasTable).
		Columns("schema_type", "owner_scope", "version", "definition", "created_at").
		Values(def.Type, def.OwnerScope, def.Version, string(raw), toNanos(def.CreatedAt))
	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to insert schema: %w", err)
	}
	return nil
}

func (s *store) GetSchema(ctx context.Context, typ, version, ownerScope string) (*schema.Definition, error) {
	found, err := s.selectSchemas(ctx, entsql.And(
		entsql.EQ("schema_type", typ),
		entsql.EQ("owner_scope", ownerScope),
		entsql.EQ("version", version),
	))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s %s (owner %q)", schema.ErrSchemaNotFound, typ, version, ownerScope)
	}
	return found[0], nil
}

func (s *store) ListSchemas(ctx context.Context, typ, ownerScope string) ([]*schema.Definition, error) {
	return s.selectSchemas(ctx, entsql.And(
		entsql.EQ("schema_type", typ),
		entsql.EQ("owner_scope", ownerScope),
	))
}

func (s *store) PutActivation(ctx context.Context, a *schema.Activation) error {
	ins := s.builder().Insert(activationsTable).
		Columns("schema_type", "owner_scope", "version", "activated_at").
		Values(a.Type, a.OwnerScope, a.Version, toNanos(a.ActivatedAt)).
		OnConflict(
			entsql.ConflictColumns("schema_type", "owner_scope"),
			entsql.ResolveWithNewValues(),
		)

	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to store activation: %w", err)
	}
	return nil
}

func (s *store) DeleteActivation(ctx context.Context, typ, ownerScope string) error {
	del := s.builder().Delete(activationsTable).
		Where(entsql.And(
			entsql.EQ("schema_type", typ),
			entsql.EQ("owner_scope", ownerScope),
		))

	if _, err := s.exec(ctx, del); err != nil {
		return fmt.Errorf("failed to delete activation: %w", err)
	}
	return nil
}

func (s *store) GetActivation(ctx context.Context, typ, ownerScope string) (*schema.Activation, error) {
	sel := s.builder().Select("schema_type", "owner_scope", "version", "activated_at").
		From(s.builder().Table(activationsTable)).
		Where(entsql.And(
			entsql.EQ("schema_type", typ),
			entsql.EQ("owner_scope", ownerScope),
		))

	var found *schema.Activation
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		var (
			a         schema.Activation
			activated int64
		)
		if err := rows.Scan(&a.Type, &a.OwnerScope, &a.Version, &activated); err != nil {
			return fmt.Errorf("failed to scan activation: %w", err)
		}
		a.ActivatedAt = fromNanos(activated)
		found = &a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query activation: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: nothing active for %s (owner %q)", schema.ErrSchemaNotFound, typ, ownerScope)
	}
	return found, nil
}
