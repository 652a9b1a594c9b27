package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
	"github.com/papercomputeco/truthstore/pkg/ledger/recompute"
	"github.com/papercomputeco/truthstore/pkg/metrics"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/value"
)

// GetOptions tunes GetSnapshot.
type GetOptions struct {
	// IncludeDeleted returns tombstoned snapshots instead of ErrEntityNotFound.
	IncludeDeleted bool

	// Fresh recomputes before reading. Concurrent fresh reads of one key
	// share a single recompute.
	Fresh bool
}

// ListQuery filters ListSnapshots.
type ListQuery struct {
	EntityType     string `json:"entity_type,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// Provenance explains one snapshot field.
type Provenance struct {
	Key          string                     `json:"key"`
	Field        string                     `json:"field"`
	Value        value.Value                `json:"value"`
	Observations []*observation.Observation `json:"observations"`
}

func recomputeJob(ownerScope, key string) recompute.Job {
	return recompute.Job{OwnerScope: ownerScope, Key: key}
}

// Recompute rebuilds the snapshot of key from its observations and replaces
// the cached copy.
func (l *Ledger) Recompute(ctx context.Context, ownerScope, key string) (*reducer.Snapshot, error) {
	return l.recompute(ctx, ownerScope, key, TriggerManual)
}

func (l *Ledger) recompute(ctx context.Context, ownerScope, key, trigger string) (*reducer.Snapshot, error) {
	unlock := l.locks.lock(ownerScope, key)
	defer unlock()
	return l.recomputeLocked(ctx, ownerScope, key, trigger)
}

// recomputeLocked must be called with the key's lock held.
func (l *Ledger) recomputeLocked(ctx context.Context, ownerScope, key, trigger string) (snap *reducer.Snapshot, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveRecompute(trigger, started, err)
	}()

	e, err := l.readable(ctx, ownerScope, key)
	if err != nil {
		return nil, err
	}

	def, err := l.activeSchema(ctx, e.EntityType, ownerScope)
	if err != nil {
		return nil, err
	}

	obs, err := l.driver.ListObservations(ctx, ownerScope, key)
	if err != nil {
		return nil, fmt.Errorf("loading observations of %s: %w", key, err)
	}

	snap, err = reducer.Reduce(reducer.Input{
		Key:          key,
		EntityType:   e.EntityType,
		OwnerScope:   ownerScope,
		Observations: obs,
		Schema:       def,
		ComputedAt:   l.timestamp(),
	})
	if err != nil {
		l.logger.Error("reduction failed",
			"owner_scope", ownerScope,
			"key", key,
			"trigger", trigger,
			"error", err,
		)
		return nil, fmt.Errorf("reducing %s: %w", key, err)
	}

	if err := l.driver.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("storing snapshot of %s: %w", key, err)
	}

	l.logger.Debug("snapshot recomputed",
		"owner_scope", ownerScope,
		"key", key,
		"trigger", trigger,
		"observations", snap.ObservationCount,
		"deleted", snap.Deleted,
	)

	l.publish(ctx, eventstream.NewSnapshotRecomputed(ownerScope, key, eventstream.SnapshotRecomputed{
		EntityType:       snap.EntityType,
		SchemaVersion:    snap.SchemaVersion,
		ObservationCount: snap.ObservationCount,
		Deleted:          snap.Deleted,
		ComputedAt:       snap.ComputedAt,
		Trigger:          trigger,
	}, snap.ComputedAt))

	return snap, nil
}

// GetSnapshot returns the current snapshot of key. Keys merged away return a
// *MergedError naming their target.
func (l *Ledger) GetSnapshot(ctx context.Context, ownerScope, key string, opts GetOptions) (*reducer.Snapshot, error) {
	if _, err := l.readable(ctx, ownerScope, key); err != nil {
		return nil, err
	}

	var snap *reducer.Snapshot
	if opts.Fresh {
		s, err := l.freshRead(ctx, ownerScope, key)
		if err != nil {
			return nil, err
		}
		snap = s
	} else {
		s, err := l.driver.GetSnapshot(ctx, ownerScope, key)
		switch {
		case storage.IsNotFound(err):
			// Registered but not computed yet, e.g. still queued.
			s, err = l.freshRead(ctx, ownerScope, key)
			if err != nil {
				return nil, err
			}
		case err != nil:
			return nil, fmt.Errorf("loading snapshot of %s: %w", key, err)
		}
		snap = s
	}

	if snap.Deleted && !opts.IncludeDeleted {
		return nil, fmt.Errorf("%w: %s is deleted", ErrEntityNotFound, key)
	}
	return snap, nil
}

func (l *Ledger) freshRead(ctx context.Context, ownerScope, key string) (*reducer.Snapshot, error) {
	v, err, shared := l.reads.Do(lockID(ownerScope, key), func() (any, error) {
		return l.recompute(ctx, ownerScope, key, TriggerRead)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.FreshReadsShared.Inc()
	}

	cp := *v.(*reducer.Snapshot)
	return &cp, nil
}

// GetProvenance returns the observations that determined field, newest
// first. Tombstoned keys stay explainable.
func (l *Ledger) GetProvenance(ctx context.Context, ownerScope, key, field string) (*Provenance, error) {
	snap, err := l.GetSnapshot(ctx, ownerScope, key, GetOptions{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}

	ids, ok := snap.Provenance[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrFieldNotFound, key, field)
	}

	out := &Provenance{
		Key:          key,
		Field:        field,
		Value:        snap.Fields[field],
		Observations: make([]*observation.Observation, 0, len(ids)),
	}
	for _, id := range ids {
		o, err := l.driver.GetObservation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading observation %s: %w", id, err)
		}
		out.Observations = append(out.Observations, o)
	}
	reducer.Order(out.Observations)

	return out, nil
}

// History returns every observation of key in reducer order.
func (l *Ledger) History(ctx context.Context, ownerScope, key string) ([]*observation.Observation, error) {
	if _, err := l.readable(ctx, ownerScope, key); err != nil {
		return nil, err
	}

	obs, err := l.driver.ListObservations(ctx, ownerScope, key)
	if err != nil {
		return nil, fmt.Errorf("loading observations of %s: %w", key, err)
	}
	reducer.Order(obs)
	return obs, nil
}

// ListSnapshots returns the owner's cached snapshots ordered by key. Keys that
// were merged away have no snapshot and never appear.
func (l *Ledger) ListSnapshots(ctx context.Context, ownerScope string, q ListQuery) ([]*reducer.Snapshot, error) {
	snaps, err := l.driver.ListSnapshots(ctx, storage.SnapshotQuery{
		OwnerScope:     ownerScope,
		EntityType:     q.EntityType,
		IncludeDeleted: q.IncludeDeleted,
		Limit:          q.Limit,
		Offset:         q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return snaps, nil
}

// Fragments returns the raw fragments recorded for key.
func (l *Ledger) Fragments(ctx context.Context, ownerScope, key string) ([]*observation.RawFragment, error) {
	if _, err := l.readable(ctx, ownerScope, key); err != nil {
		return nil, err
	}

	frags, err := l.driver.ListFragments(ctx, ownerScope, key)
	if err != nil {
		return nil, fmt.Errorf("loading fragments of %s: %w", key, err)
	}
	return frags, nil
}
