package sqldriver

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/value"
)

const fragmentsTable = "raw_fragments"

var fragmentColumns = []string{
	"id", "owner_scope", "entity_key", "field_name", "value", "type_envelope", "reason",
	"observation_id", "frequency_count", "first_seen", "last_seen",
}

func scanFragment(rows *sql.Rows) (*observation.RawFragment, error) {
	var (
		f               observation.RawFragment
		raw, reason     string
		first, lastSeen int64
	)
	if err := rows.Scan(
		&f.ID, &f.OwnerScope, &f.Key, &f.FieldName, &raw, &f.TypeEnvelope, &reason,
		&f.ObservationID, &f.FrequencyCount, &first, &lastSeen,
	); err != nil {
		return nil, fmt.Errorf("failed to scan fragment: %w", err)
	}

	v, err := value.UnmarshalTagged([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode fragment value %s: %w", f.ID, err)
	}
	f.Value = v
	f.Reason = observation.FragmentReason(reason)
	f.FirstSeen = fromNanos(first)
	f.LastSeen = fromNanos(lastSeen)
	return &f, nil
}

func (s *store) selectFragments(ctx context.Context, where *entsql.Predicate) ([]*observation.RawFragment, error) {
	sel := s.builder().Select(fragmentColumns...).
		From(s.builder().Table(fragmentsTable)).
		Where(where).
		OrderBy("field_name", "id")

	var out []*observation.RawFragment
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		f, err := scanFragment(rows)
		if err == nil {
			out = append(out, f)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	return out, nil
}

func (s *store) UpsertFragment(ctx context.Context, f *observation.RawFragment) error {
	identity := f.Identity()

	existing, err := s.selectFragments(ctx, entsql.EQ("identity", identity))
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		prev := existing[0]
		lastSeen := prev.LastSeen
		if f.LastSeen.After(lastSeen) {
			lastSeen = f.LastSeen
		}
		observationID := prev.ObservationID
		if f.ObservationID != "" {
			observationID = f.ObservationID
		}

		upd := s.builder().Update(fragmentsTable).
			Set("frequency_count", prev.FrequencyCount+max(f.FrequencyCount, 1)).
			Set("last_seen", toNanos(lastSeen)).
			Set("observation_id", observationID).
			Where(entsql.EQ("identity", identity))
		if _, err := s.exec(ctx, upd); err != nil {
			return fmt.Errorf("failed to update fragment: %w", err)
		}
		return nil
	}

	raw, err := f.Value.MarshalTagged()
	if err != nil {
		return fmt.Errorf("failed to encode fragment value: %w", err)
	}

	ins := s.builder().Insert(fragmentsTable).
		Columns(append([]string{"identity"}, fragmentColumns...)...).
		Values(
			identity, f.ID, f.OwnerScope, f.Key, f.FieldName, string(raw), f.TypeEnvelope, string(f.Reason),
			f.ObservationID, max(f.FrequencyCount, 1), toNanos(f.FirstSeen), toNanos(f.LastSeen),
		)
	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to insert fragment: %w", err)
	}
	return nil
}

func (s *store) ListFragments(ctx context.Context, ownerScope, key string) ([]*observation.RawFragment, error) {
	return s.selectFragments(ctx, entsql.And(
		entsql.EQ("owner_scope", ownerScope),
		entsql.EQ("entity_key", key),
	))
}

func (s *store) DeleteFragments(ctx context.Context, ownerScope, key string) error {
	del := s.builder().Delete(fragmentsTable).
		Where(entsql.And(
			entsql.EQ("owner_scope", ownerScope),
			entsql.EQ("entity_key", key),
		))

	if _, err := s.exec(ctx, del); err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	return nil
}
