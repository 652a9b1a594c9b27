// Package storage defines the persistence contract of the truth store: the
// append-only observation ledger, the snapshot cache, raw fragments, merge
// records, the entity registry and schema versions.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/schema"
)

// Entity is the registry entry of a known key. Keys are globally unique and
// belong to exactly one owner.
type Entity struct {
	Key        string                 `json:"key"`
	Kind       observation.TargetKind `json:"kind"`
	EntityType string                 `json:"entity_type"`
	OwnerScope string                 `json:"owner_scope"`

	// SourceID and TargetID are set for relationships.
	SourceID string `json:"source_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`

	// MergedInto is the key this entity was merged into, if any.
	MergedInto string `json:"merged_into,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EntityQuery filters ListEntities. Empty fields do not filter.
type EntityQuery struct {
	OwnerScope string
	EntityType string
	Kind       observation.TargetKind

	// MergedInto selects entities merged into the given key.
	MergedInto string

	// SourceIn and TargetIn select relationships by endpoint.
	SourceIn []string
	TargetIn []string
}

// SnapshotQuery filters ListSnapshots. Results are ordered by key.
type SnapshotQuery struct {
	OwnerScope     string
	EntityType     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Store is the set of operations available both directly on a Driver and
// inside a transaction.
type Store interface {
	schema.Store

	// GetEntity returns the registry entry of key.
	GetEntity(ctx context.Context, key string) (*Entity, error)

	// PutEntity inserts or replaces a registry entry.
	PutEntity(ctx context.Context, e *Entity) error

	ListEntities(ctx context.Context, q EntityQuery) ([]*Entity, error)

	// InsertObservation appends an observation. Observations are never
	// updated except by RekeyObservations.
	InsertObservation(ctx context.Context, o *observation.Observation) error

	GetObservation(ctx context.Context, id string) (*observation.Observation, error)

	// ListObservations returns every observation of (ownerScope, key) in no
	// particular order.
	ListObservations(ctx context.Context, ownerScope, key string) ([]*observation.Observation, error)

	// FindObservationByIdempotencyKey returns the observation previously
	// stored for (ownerScope, key, idempotencyKey).
	FindObservationByIdempotencyKey(ctx context.Context, ownerScope, key, idempotencyKey string) (*observation.Observation, error)

	// RekeyObservations moves every observation of from onto to and returns
	// how many were moved.
	RekeyObservations(ctx context.Context, ownerScope, from, to string) (int, error)

	GetSnapshot(ctx context.Context, ownerScope, key string) (*reducer.Snapshot, error)

	// PutSnapshot replaces the cached snapshot of its key wholesale.
	PutSnapshot(ctx context.Context, s *reducer.Snapshot) error

	// DeleteSnapshot drops the cached snapshot. Missing snapshots are not an error.
	DeleteSnapshot(ctx context.Context, ownerScope, key string) error

	ListSnapshots(ctx context.Context, q SnapshotQuery) ([]*reducer.Snapshot, error)

	// UpsertFragment stores f, or folds it into an identical fragment by
	// adding its frequency and advancing last_seen and observation_id.
	UpsertFragment(ctx context.Context, f *observation.RawFragment) error

	ListFragments(ctx context.Context, ownerScope, key string) ([]*observation.RawFragment, error)

	// DeleteFragments drops every fragment of (ownerScope, key).
	DeleteFragments(ctx context.Context, ownerScope, key string) error

	InsertMerge(ctx context.Context, r *merge.Record) error

	// ListMerges returns the merge records of ownerScope, oldest first.
	// A non-empty fromKey restricts the result to merges out of that key.
	ListMerges(ctx context.Context, ownerScope, fromKey string) ([]*merge.Record, error)
}

// Driver is a storage backend.
type Driver interface {
	Store

	// WithTx runs fn in a transaction. fn must only use the Store it is
	// given; the transaction commits when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Close releases the backend's resources.
	Close() error
}
