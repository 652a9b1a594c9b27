package sqldriver

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/value"
)

const observationsTable = "observations"

var observationColumns = []string{
	"id", "entity_key", "entity_type", "owner_scope", "schema_version", "fields",
	"source_priority", "specificity_score", "observed_at",
	"idempotency_key", "source_id", "interpretation_id", "reason", "created_at",
}

func scanObservation(rows *sql.Rows) (*observation.Observation, error) {
	var (
		o                 observation.Observation
		fields            string
		observed, created int64
	)
	if err := rows.Scan(
		&o.ID, &o.Key, &o.EntityType, &o.OwnerScope, &o.SchemaVersion, &fields,
		&o.SourcePriority, &o.SpecificityScore, &observed,
		&o.IdempotencyKey, &o.SourceID, &o.InterpretationID, &o.Reason, &created,
	); err != nil {
		return nil, fmt.Errorf("failed to scan observation: %w", err)
	}

	decoded, err := value.DecodeFields([]byte(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to decode fields of observation %s: %w", o.ID, err)
	}
	o.Fields = decoded
	o.ObservedAt = fromNanos(observed)
	o.CreatedAt = fromNanos(created)
	return &o, nil
}

func (s *store) selectObservations(ctx context.Context, where *entsql.Predicate) ([]*observation.Observation, error) {
	sel := s.builder().Select(observationColumns...).
		From(s.builder().Table(observationsTable)).
		Where(where).
		OrderBy("created_at", "id")

	var out []*observation.Observation
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		o, err := scanObservation(rows)
		if err == nil {
			out = append(out, o)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	return out, nil
}

func (s *store) InsertObservation(ctx context.Context, o *observation.Observation) error {
	existing, err := s.selectObservations(ctx, entsql.EQ("id", o.ID))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: observation %s", storage.ErrDuplicate, o.ID)
	}

	fields, err := value.EncodeFields(o.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	ins := s.builder().Insert(observationsTable).
		Columns(observationColumns...).
		Values(
			o.ID, o.Key, o.EntityType, o.OwnerScope, o.SchemaVersion, string(fields),
			o.SourcePriority, o.SpecificityScore, toNanos(o.ObservedAt),
			o.IdempotencyKey, o.SourceID, o.InterpretationID, o.Reason, toNanos(o.CreatedAt),
		)
	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

func (s *store) GetObservation(ctx context.Context, id string) (*observation.Observation, error) {
	found, err := s.selectObservations(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, &storage.NotFoundError{Resource: "observation", Key: id}
	}
	return found[0], nil
}

func (s *store) ListObservations(ctx context.Context, ownerScope, key string) ([]*observation.Observation, error) {
	return s.selectObservations(ctx, entsql.And(
		entsql.EQ("owner_scope", ownerScope),
		entsql.EQ("entity_key", key),
	))
}

func (s *store) FindObservationByIdempotencyKey(ctx context.Context, ownerScope, key, idempotencyKey string) (*observation.Observation, error) {
	found, err := s.selectObservations(ctx, entsql.And(
		entsql.EQ("owner_scope", ownerScope),
		entsql.EQ("entity_key", key),
		entsql.EQ("idempotency_key", idempotencyKey),
	))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, &storage.NotFoundError{Resource: "observation", Key: idempotencyKey}
	}
	return found[0], nil
}

func (s *store) RekeyObservations(ctx context.Context, ownerScope, from, to string) (int, error) {
	upd := s.builder().Update(observationsTable).
		Set("entity_key", to).
		Where(entsql.And(
			entsql.EQ("owner_scope", ownerScope),
			entsql.EQ("entity_key", from),
		))

	res, err := s.exec(ctx, upd)
	if err != nil {
		return 0, fmt.Errorf("failed to rekey observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count rekeyed observations: %w", err)
	}
	return int(n), nil
}
