package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/storage"
)

// Direction selects which relationships of an entity to list.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// ParseDirection parses a direction name. Empty means both.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case "":
		return DirectionBoth, nil
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Relationship is a live relationship of an entity with its snapshot.
// Snapshot is nil while the first recompute is still queued.
type Relationship struct {
	Key      string            `json:"key"`
	Type     string            `json:"type"`
	SourceID string            `json:"source_id"`
	TargetID string            `json:"target_id"`
	Snapshot *reducer.Snapshot `json:"snapshot,omitempty"`
}

// ListRelationships returns the relationships attached to key, including
// those attached to keys merged into it. Merged-away and tombstoned
// relationships are skipped. Results are ordered by key.
func (l *Ledger) ListRelationships(ctx context.Context, ownerScope, key string, dir Direction) ([]*Relationship, error) {
	if _, err := l.readable(ctx, ownerScope, key); err != nil {
		return nil, err
	}

	aliases, err := l.driver.ListEntities(ctx, storage.EntityQuery{OwnerScope: ownerScope, MergedInto: key})
	if err != nil {
		return nil, fmt.Errorf("loading aliases of %s: %w", key, err)
	}
	endpoints := []string{key}
	for _, a := range aliases {
		endpoints = append(endpoints, a.Key)
	}

	var queries []storage.EntityQuery
	if dir == DirectionOutgoing || dir == DirectionBoth {
		queries = append(queries, storage.EntityQuery{
			OwnerScope: ownerScope,
			Kind:       observation.KindRelationship,
			SourceIn:   endpoints,
		})
	}
	if dir == DirectionIncoming || dir == DirectionBoth {
		queries = append(queries, storage.EntityQuery{
			OwnerScope: ownerScope,
			Kind:       observation.KindRelationship,
			TargetIn:   endpoints,
		})
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("unknown direction %q", dir)
	}

	seen := make(map[string]struct{})
	out := []*Relationship{}
	for _, q := range queries {
		rels, err := l.driver.ListEntities(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("listing relationships of %s: %w", key, err)
		}
		for _, r := range rels {
			if _, dup := seen[r.Key]; dup || r.MergedInto != "" {
				continue
			}
			seen[r.Key] = struct{}{}

			snap, err := l.driver.GetSnapshot(ctx, ownerScope, r.Key)
			switch {
			case storage.IsNotFound(err):
				snap = nil
			case err != nil:
				return nil, fmt.Errorf("loading snapshot of %s: %w", r.Key, err)
			case snap.Deleted:
				continue
			}

			out = append(out, &Relationship{
				Key:      r.Key,
				Type:     r.EntityType,
				SourceID: r.SourceID,
				TargetID: r.TargetID,
				Snapshot: snap,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
