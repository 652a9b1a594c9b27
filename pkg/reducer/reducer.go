// Package reducer merges the observations of one entity or relationship into
// a Snapshot.
//
// Reduce is a pure function: it performs no I/O, reads no clock and holds no
// state, so the same observations and schema always produce the same snapshot
// and provenance. Recency for every strategy comes from a single ordering,
// observed_at descending then observation id ascending.
package reducer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/value"
)

// ErrMalformedObservation marks a stored observation the reducer refuses to
// merge. It is a data-integrity fault: no partial snapshot is produced.
var ErrMalformedObservation = errors.New("malformed observation")

// Snapshot is the merged current view of one key.
type Snapshot struct {
	Key           string `json:"key"`
	EntityType    string `json:"entity_type"`
	OwnerScope    string `json:"owner_scope"`
	SchemaVersion string `json:"schema_version,omitempty"`

	Fields map[string]value.Value `json:"fields"`

	// Provenance maps each field to the observations that determined it:
	// the single winner, or every contributor for merge_array fields.
	Provenance map[string][]string `json:"provenance"`

	ObservationCount  int       `json:"observation_count"`
	LastObservationAt time.Time `json:"last_observation_at"`
	ComputedAt        time.Time `json:"computed_at"`

	// Deleted is true when the merged tombstone field resolved to true.
	Deleted bool `json:"deleted"`
}

// Input is everything Reduce needs.
type Input struct {
	Key        string
	EntityType string
	OwnerScope string

	Observations []*observation.Observation

	// Schema supplies merge policies. Nil means every field uses last_write.
	Schema *schema.Definition

	// ComputedAt is stamped on the snapshot verbatim.
	ComputedAt time.Time
}

// Reduce merges in.Observations into a snapshot.
func Reduce(in Input) (*Snapshot, error) {
	obs, err := filter(in)
	if err != nil {
		return nil, err
	}
	Order(obs)

	snap := &Snapshot{
		Key:              in.Key,
		EntityType:       in.EntityType,
		OwnerScope:       in.OwnerScope,
		Fields:           make(map[string]value.Value),
		Provenance:       make(map[string][]string),
		ObservationCount: len(obs),
		ComputedAt:       in.ComputedAt,
	}
	if in.Schema != nil {
		snap.SchemaVersion = in.Schema.Version
	}
	if len(obs) > 0 {
		snap.LastObservationAt = obs[0].ObservedAt
		if snap.EntityType == "" {
			snap.EntityType = obs[0].EntityType
		}
	}

	for _, field := range fieldNames(obs) {
		candidates := definers(obs, field)
		policy := in.Schema.PolicyFor(field)

		if policy.Strategy == schema.MergeArray {
			v, ids := mergeArray(candidates, field)
			snap.Fields[field] = v
			snap.Provenance[field] = ids
			continue
		}

		winner := pick(candidates, policy)
		snap.Fields[field] = winner.Fields[field]
		snap.Provenance[field] = []string{winner.ID}
	}

	if deleted, ok := snap.Fields[schema.DeletedField].AsBool(); ok && deleted {
		snap.Deleted = true
	}

	return snap, nil
}

// Order sorts observations into reducer order: observed_at descending, then
// id ascending.
func Order(obs []*observation.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if c := obs[i].ObservedAt.Compare(obs[j].ObservedAt); c != 0 {
			return c > 0
		}
		return obs[i].ID < obs[j].ID
	})
}

// filter keeps the observations addressed to the input key and owner and
// validates them. It returns a fresh slice; the caller's slice is untouched.
func filter(in Input) ([]*observation.Observation, error) {
	seen := make(map[string]struct{}, len(in.Observations))
	out := make([]*observation.Observation, 0, len(in.Observations))

	for _, o := range in.Observations {
		if o == nil || o.Key != in.Key || o.OwnerScope != in.OwnerScope {
			continue
		}
		if o.ID == "" {
			return nil, fmt.Errorf("%w: empty id on key %q", ErrMalformedObservation, in.Key)
		}
		if _, dup := seen[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrMalformedObservation, o.ID)
		}
		seen[o.ID] = struct{}{}

		if math.IsNaN(o.SpecificityScore) || o.SpecificityScore < 0 || o.SpecificityScore > 1 {
			return nil, fmt.Errorf("%w: %s has specificity %v outside [0,1]", ErrMalformedObservation, o.ID, o.SpecificityScore)
		}
		for name, v := range o.Fields {
			if !v.Valid() {
				return nil, fmt.Errorf("%w: %s field %q holds an invalid value", ErrMalformedObservation, o.ID, name)
			}
		}

		out = append(out, o)
	}

	return out, nil
}

// fieldNames returns every field defined by any observation, sorted. Fields
// are collected from observations, not from the schema, so values written
// under an older schema version still surface.
func fieldNames(obs []*observation.Observation) []string {
	set := make(map[string]struct{})
	for _, o := range obs {
		for name := range o.Fields {
			set[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// definers returns the observations defining field, preserving order.
func definers(obs []*observation.Observation, field string) []*observation.Observation {
	out := make([]*observation.Observation, 0, len(obs))
	for _, o := range obs {
		if o.Defines(field) {
			out = append(out, o)
		}
	}
	return out
}
