package sqldriver

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/merge"
)

const mergesTable = "merge_records"

var mergeColumns = []string{
	"id", "owner_scope", "from_key", "to_key", "reason", "actor",
	"observations_rewritten", "created_at",
}

func (s *store) InsertMerge(ctx context.Context, r *merge.Record) error {
	ins := s.builder().Insert(mergesTable).
		Columns(mergeColumns...).
		Values(
			r.ID, r.OwnerScope, r.FromKey, r.ToKey, r.Reason, r.Actor,
			r.ObservationsRewritten, toNanos(r.CreatedAt),
		)

	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("failed to insert merge record: %w", err)
	}
	return nil
}

func (s *store) ListMerges(ctx context.Context, ownerScope, fromKey string) ([]*merge.Record, error) {
	where := entsql.EQ("owner_scope", ownerScope)
	if fromKey != "" {
		where = entsql.And(where, entsql.EQ("from_key", fromKey))
	}

	sel := s.builder().Select(mergeColumns...).
		From(s.builder().Table(mergesTable)).
		Where(where).
		OrderBy("created_at", "id")

	var out []*merge.Record
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		var (
			r       merge.Record
			created int64
		)
		if err := rows.Scan(
			&r.ID, &r.OwnerScope, &r.FromKey, &r.ToKey, &r.Reason, &r.Actor,
			&r.ObservationsRewritten, &created,
		); err != nil {
			return fmt.Errorf("failed to scan merge record: %w", err)
		}
		r.CreatedAt = fromNanos(created)
		out = append(out, &r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list merge records: %w", err)
	}
	return out, nil
}
