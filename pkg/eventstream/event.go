package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSnapshotRecomputed is emitted after a snapshot is replaced.
	EventTypeSnapshotRecomputed = "truthstore.snapshot.recomputed"

	// EventTypeMergeCompleted is emitted after a merge commits.
	EventTypeMergeCompleted = "truthstore.merge.completed"
)

// Event is a transport-neutral event payload. Exactly one of Snapshot and
// Merge is set, matching EventType.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	OwnerScope    string    `json:"owner_scope"`

	// Key is the entity or relationship key the event is about. Publishers
	// partition on it.
	Key string `json:"key"`

	Snapshot *SnapshotRecomputed `json:"snapshot,omitempty"`
	Merge    *MergeCompleted     `json:"merge,omitempty"`
}

// SnapshotRecomputed describes a replaced snapshot.
type SnapshotRecomputed struct {
	EntityType       string    `json:"entity_type"`
	SchemaVersion    string    `json:"schema_version,omitempty"`
	ObservationCount int       `json:"observation_count"`
	Deleted          bool      `json:"deleted"`
	ComputedAt       time.Time `json:"computed_at"`

	// Trigger names what caused the recompute: observation, correction,
	// deletion, restoration, merge or read.
	Trigger string `json:"trigger"`
}

// MergeCompleted describes a committed merge. The event Key is the target.
type MergeCompleted struct {
	MergeID               string `json:"merge_id"`
	FromKey               string `json:"from_key"`
	ToKey                 string `json:"to_key"`
	ObservationsRewritten int    `json:"observations_rewritten"`
	Reason                string `json:"reason,omitempty"`
	Actor                 string `json:"actor,omitempty"`
}

func newEvent(eventType, ownerScope, key string, at time.Time) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.Must(uuid.NewV7()).String(),
		EmittedAt:     at.UTC(),
		OwnerScope:    ownerScope,
		Key:           key,
	}
}

// NewSnapshotRecomputed builds a snapshot-recomputed event.
func NewSnapshotRecomputed(ownerScope, key string, payload SnapshotRecomputed, at time.Time) *Event {
	e := newEvent(EventTypeSnapshotRecomputed, ownerScope, key, at)
	e.Snapshot = &payload
	return e
}

// NewMergeCompleted builds a merge-completed event keyed by the merge target.
func NewMergeCompleted(ownerScope string, payload MergeCompleted, at time.Time) *Event {
	e := newEvent(EventTypeMergeCompleted, ownerScope, payload.ToKey, at)
	e.Merge = &payload
	return e
}
