// Package inmemory provides a map-backed storage driver for tests and
// ephemeral servers.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage"
)

// state is everything the driver holds. It is cloned for transactions.
type state struct {
	entities     map[string]*storage.Entity
	observations map[string]*observation.Observation
	snapshots    map[string]*reducer.Snapshot
	fragments    map[string]*observation.RawFragment
	merges       []*merge.Record
	schemas      map[string]*schema.Definition
	activations  map[string]*schema.Activation
}

func newState() *state {
	return &state{
		entities:     make(map[string]*storage.Entity),
		observations: make(map[string]*observation.Observation),
		snapshots:    make(map[string]*reducer.Snapshot),
		fragments:    make(map[string]*observation.RawFragment),
		schemas:      make(map[string]*schema.Definition),
		activations:  make(map[string]*schema.Activation),
	}
}

// clone copies the maps and the records they point to. Field maps inside
// records are shared: nothing mutates them after insert.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.entities {
		cp := *v
		c.entities[k] = &cp
	}
	for k, v := range s.observations {
		cp := *v
		c.observations[k] = &cp
	}
	for k, v := range s.snapshots {
		cp := *v
		c.snapshots[k] = &cp
	}
	for k, v := range s.fragments {
		cp := *v
		c.fragments[k] = &cp
	}
	for _, m := range s.merges {
		cp := *m
		c.merges = append(c.merges, &cp)
	}
	for k, v := range s.schemas {
		c.schemas[k] = v.Clone()
	}
	for k, v := range s.activations {
		cp := *v
		c.activations[k] = &cp
	}
	return c
}

// store implements storage.Store over a state. mu is nil inside a
// transaction, where the driver already holds the write lock.
type store struct {
	mu *sync.RWMutex
	st *state
}

func (s *store) rlock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *store) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	*store

	// mu guards st and serializes transactions.
	mu sync.RWMutex
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	d := &Driver{}
	d.store = &store{mu: &d.mu, st: newState()}
	return d
}

// WithTx runs fn against a copy of the state and swaps it in on success.
// Other callers block until the transaction finishes.
func (d *Driver) WithTx(_ context.Context, fn func(tx storage.Store) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &store{st: d.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	d.st = tx.st
	return nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func ownedKey(ownerScope, key string) string {
	return ownerScope + "\x1f" + key
}

func (s *store) GetEntity(_ context.Context, key string) (*storage.Entity, error) {
	defer s.rlock()()

	e, ok := s.st.entities[key]
	if !ok {
		return nil, &storage.NotFoundError{Resource: "entity", Key: key}
	}
	cp := *e
	return &cp, nil
}

func (s *store) PutEntity(_ context.Context, e *storage.Entity) error {
	defer s.lock()()

	cp := *e
	s.st.entities[e.Key] = &cp
	return nil
}

func (s *store) ListEntities(_ context.Context, q storage.EntityQuery) ([]*storage.Entity, error) {
	defer s.rlock()()

	var out []*storage.Entity
	for _, e := range s.st.entities {
		if q.OwnerScope != "" && e.OwnerScope != q.OwnerScope {
			continue
		}
		if q.EntityType != "" && e.EntityType != q.EntityType {
			continue
		}
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if q.MergedInto != "" && e.MergedInto != q.MergedInto {
			continue
		}
		if len(q.SourceIn) > 0 && !slices.Contains(q.SourceIn, e.SourceID) {
			continue
		}
		if len(q.TargetIn) > 0 && !slices.Contains(q.TargetIn, e.TargetID) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *store) InsertObservation(_ context.Context, o *observation.Observation) error {
	defer s.lock()()

	if _, exists := s.st.observations[o.ID]; exists {
		return fmt.Errorf("%w: observation %s", storage.ErrDuplicate, o.ID)
	}
	cp := *o
	s.st.observations[o.ID] = &cp
	return nil
}

func (s *store) GetObservation(_ context.Context, id string) (*observation.Observation, error) {
	defer s.rlock()()

	o, ok := s.st.observations[id]
	if !ok {
		return nil, &storage.NotFoundError{Resource: "observation", Key: id}
	}
	cp := *o
	return &cp, nil
}

func (s *store) ListObservations(_ context.Context, ownerScope, key string) ([]*observation.Observation, error) {
	defer s.rlock()()

	var out []*observation.Observation
	for _, o := range s.st.observations {
		if o.OwnerScope == ownerScope && o.Key == key {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *store) FindObservationByIdempotencyKey(_ context.Context, ownerScope, key, idempotencyKey string) (*observation.Observation, error) {
	defer s.rlock()()

	var found *observation.Observation
	for _, o := range s.st.observations {
		if o.OwnerScope != ownerScope || o.Key != key || o.IdempotencyKey != idempotencyKey {
			continue
		}
		if found == nil || o.CreatedAt.Before(found.CreatedAt) {
			found = o
		}
	}
	if found == nil {
		return nil, &storage.NotFoundError{Resource: "observation", Key: idempotencyKey}
	}
	cp := *found
	return &cp, nil
}

func (s *store) RekeyObservations(_ context.Context, ownerScope, from, to string) (int, error) {
	defer s.lock()()

	n := 0
	for _, o := range s.st.observations {
		if o.OwnerScope == ownerScope && o.Key == from {
			o.Key = to
			n++
		}
	}
	return n, nil
}

func (s *store) GetSnapshot(_ context.Context, ownerScope, key string) (*reducer.Snapshot, error) {
	defer s.rlock()()

	snap, ok := s.st.snapshots[ownedKey(ownerScope, key)]
	if !ok {
		return nil, &storage.NotFoundError{Resource: "snapshot", Key: key}
	}
	cp := *snap
	return &cp, nil
}

func (s *store) PutSnapshot(_ context.Context, snap *reducer.Snapshot) error {
	defer s.lock()()

	cp := *snap
	s.st.snapshots[ownedKey(snap.OwnerScope, snap.Key)] = &cp
	return nil
}

func (s *store) DeleteSnapshot(_ context.Context, ownerScope, key string) error {
	defer s.lock()()

	delete(s.st.snapshots, ownedKey(ownerScope, key))
	return nil
}

func (s *store) ListSnapshots(_ context.Context, q storage.SnapshotQuery) ([]*reducer.Snapshot, error) {
	defer s.rlock()()

	var out []*reducer.Snapshot
	for _, snap := range s.st.snapshots {
		if q.OwnerScope != "" && snap.OwnerScope != q.OwnerScope {
			continue
		}
		if q.EntityType != "" && snap.EntityType != q.EntityType {
			continue
		}
		if snap.Deleted && !q.IncludeDeleted {
			continue
		}
		cp := *snap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return page(out, q.Offset, q.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *store) UpsertFragment(_ context.Context, f *observation.RawFragment) error {
	defer s.lock()()

	id := f.Identity()
	if existing, ok := s.st.fragments[id]; ok {
		existing.FrequencyCount += max(f.FrequencyCount, 1)
		if f.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = f.LastSeen
		}
		if f.ObservationID != "" {
			existing.ObservationID = f.ObservationID
		}
		return nil
	}

	cp := *f
	if cp.FrequencyCount < 1 {
		cp.FrequencyCount = 1
	}
	s.st.fragments[id] = &cp
	return nil
}

func (s *store) ListFragments(_ context.Context, ownerScope, key string) ([]*observation.RawFragment, error) {
	defer s.rlock()()

	var out []*observation.RawFragment
	for _, f := range s.st.fragments {
		if f.OwnerScope == ownerScope && f.Key == key {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FieldName != out[j].FieldName {
			return out[i].FieldName < out[j].FieldName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *store) DeleteFragments(_ context.Context, ownerScope, key string) error {
	defer s.lock()()

	for id, f := range s.st.fragments {
		if f.OwnerScope == ownerScope && f.Key == key {
			delete(s.st.fragments, id)
		}
	}
	return nil
}

func (s *store) InsertMerge(_ context.Context, r *merge.Record) error {
	defer s.lock()()

	cp := *r
	s.st.merges = append(s.st.merges, &cp)
	return nil
}

func (s *store) ListMerges(_ context.Context, ownerScope, fromKey string) ([]*merge.Record, error) {
	defer s.rlock()()

	var out []*merge.Record
	for _, r := range s.st.merges {
		if r.OwnerScope != ownerScope {
			continue
		}
		if fromKey != "" && r.FromKey != fromKey {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
