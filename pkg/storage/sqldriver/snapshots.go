package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/value"
)

const snapshotsTable = "snapshots"

var snapshotColumns = []string{
	"entity_key", "owner_scope", "entity_type", "schema_version", "fields", "provenance",
	"observation_count", "last_observation_at", "computed_at", "deleted",
}

func scanSnapshot(rows *sql.Rows) (*reducer.Snapshot, error) {
	var (
		snap                   reducer.Snapshot
		fields, provenance     string
		lastObserved, computed int64
	)
	if err := rows.Scan(
		&snap.Key, &snap.OwnerScope, &snap.EntityType, &snap.SchemaVersion, &fields, &provenance,
		&snap.ObservationCount, &lastObserved, &computed, &snap.Deleted,
	); err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	decoded, err := value.DecodeFields([]byte(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot fields of %s: %w", snap.Key, err)
	}
	snap.Fields = decoded

	snap.Provenance = make(map[string][]string)
	if err := json.Unmarshal([]byte(provenance), &snap.Provenance); err != nil {
		return nil, fmt.Errorf("failed to decode provenance of %s: %w", snap.Key, err)
	}

	snap.LastObservationAt = fromNanos(lastObserved)
	snap.ComputedAt = fromNanos(computed)
	return &snap, nil
}

func (s *store) selectSnapshots(ctx context.Context, sel *entsql.Selector) ([]*reducer.Snapshot, error) {
	var out []*reducer.Snapshot
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		snap, err := scanSnapshot(rows)
		if err == nil {
			out = append(out, snap)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	return out, nil
}

func (s *store) GetSnapshot(ctx context.Context, ownerScope, key string) (*reducer.Snapshot, error) {
	sel := s.builder().Select(snapshotColumns...).
		From(s.builder().Table(snapshotsTable)).
		Where(entsql.And(
			entsql.EQ("owner_scope", ownerScope),
			entsql.EQ("entity_key", key),
		))

	found, err := s.selectSnapshots(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, &storage.NotFoundError{Resource: "snapshot", Key: key}
	}
	return found[0], nil
}

func (s *store) PutSnapshot(ctx context.Context, snap *reducer.Snapshot) error {
	fields, err := value.EncodeFields(snap.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot fields: %w", err)
	}
	provenance, err := json.Marshal(snap.Provenance)
	if err != nil {
		return fmt.Errorf("failed to encode provenance: %w", err)
	}

	ins := s.builder().Insert(snapshotsTable).
		Columns(snapshotColumns...).
		Values(
			snap.Key, snap.OwnerScope, snap.EntityType, snap.SchemaVersion, string(fields), string(provenance),
			snap.ObservationCount, toNanos(snap.LastObservationAt), toNanos(snap.ComputedAt), snap.Deleted,
		).
		OnConflict(
			entsql.ConflictColumns("entity_key"),
			entsql.ResolveWithNewValues(),
		)

	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

func (s *store) DeleteSnapshot(ctx context.Context, ownerScope, key string) error {
	del := s.builder().Delete(snapshotsTable).
		Where(entsql.And(
			entsql.EQ("owner_scope", ownerScope),
			entsql.EQ("entity_key", key),
		))

	if _, err := s.exec(ctx, del); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *store) ListSnapshots(ctx context.Context, q storage.SnapshotQuery) ([]*reducer.Snapshot, error) {
	var preds []*entsql.Predicate
	if q.OwnerScope != "" {
		preds = append(preds, entsql.EQ("owner_scope", q.OwnerScope))
	}
	if q.EntityType != "" {
		preds = append(preds, entsql.EQ("entity_type", q.EntityType))
	}
	if !q.IncludeDeleted {
		preds = append(preds, entsql.EQ("deleted", false))
	}

	sel := s.builder().Select(snapshotColumns...).
		From(s.builder().Table(snapshotsTable)).
		OrderBy("entity_key")
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	switch {
	case q.Limit > 0:
		sel.Limit(q.Limit)
	case q.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT.
		sel.Limit(math.MaxInt32)
	}
	if q.Offset > 0 {
		sel.Offset(q.Offset)
	}

	return s.selectSnapshots(ctx, sel)
}
