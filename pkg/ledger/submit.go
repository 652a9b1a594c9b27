package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/papercomputeco/truthstore/pkg/metrics"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/value"
)

// Submission is an observation offered to the store.
type Submission struct {
	OwnerScope string `json:"owner_scope"`

	// Key is an entity id or a "type:source:target" relationship key.
	Key string `json:"key"`

	// EntityType may be empty for keys that are already registered.
	EntityType string `json:"entity_type,omitempty"`

	Fields map[string]value.Value `json:"fields"`

	SourcePriority   int     `json:"source_priority"`
	SpecificityScore float64 `json:"specificity_score"`

	// ObservedAt defaults to the time of submission.
	ObservedAt time.Time `json:"observed_at,omitzero"`

	IdempotencyKey   string `json:"idempotency_key,omitempty"`
	SourceID         string `json:"source_id,omitempty"`
	InterpretationID string `json:"interpretation_id,omitempty"`
	Reason           string `json:"reason,omitempty"`

	// Sync recomputes the snapshot before returning even in async mode.
	Sync bool `json:"sync,omitempty"`
}

// Correction is a user-supplied override. It is stored at correction
// priority with full specificity and always recomputed synchronously.
type Correction struct {
	OwnerScope     string                 `json:"owner_scope"`
	Key            string                 `json:"key"`
	EntityType     string                 `json:"entity_type,omitempty"`
	Fields         map[string]value.Value `json:"fields"`
	Reason         string                 `json:"reason,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// SubmitObservation stores sub and refreshes the snapshot of its key. It
// returns the id of the stored observation, or of the earlier observation
// when the idempotency key was already used for the key.
func (l *Ledger) SubmitObservation(ctx context.Context, sub Submission) (string, error) {
	trigger := TriggerObservation
	if sub.SourcePriority >= observation.PriorityCorrection {
		trigger = TriggerCorrection
		sub.Sync = true
	}
	return l.submit(ctx, sub, trigger)
}

// RequestCorrection stores a correction and recomputes synchronously.
func (l *Ledger) RequestCorrection(ctx context.Context, c Correction) (string, error) {
	return l.submit(ctx, Submission{
		OwnerScope:       c.OwnerScope,
		Key:              c.Key,
		EntityType:       c.EntityType,
		Fields:           c.Fields,
		SourcePriority:   observation.PriorityCorrection,
		SpecificityScore: 1,
		IdempotencyKey:   c.IdempotencyKey,
		Reason:           c.Reason,
		Sync:             true,
	}, TriggerCorrection)
}

// SoftDelete tombstones key. Its observations stay queryable through History.
func (l *Ledger) SoftDelete(ctx context.Context, ownerScope, key string) (string, error) {
	return l.toggleTombstone(ctx, ownerScope, key, true)
}

// Restore lifts a tombstone.
func (l *Ledger) Restore(ctx context.Context, ownerScope, key string) (string, error) {
	return l.toggleTombstone(ctx, ownerScope, key, false)
}

// toggleTombstone writes the reserved deleted field. Deletions are stored at
// correction priority and restorations one rank above. A deletion that
// follows a restoration is stored at the restoration rank so the latest
// toggle wins.
func (l *Ledger) toggleTombstone(ctx context.Context, ownerScope, key string, deleted bool) (string, error) {
	e, err := l.readable(ctx, ownerScope, key)
	if err != nil {
		return "", err
	}

	priority := observation.PriorityRestoration
	trigger := TriggerRestoration
	if deleted {
		trigger = TriggerDeletion
		priority, err = l.deletionPriority(ctx, ownerScope, key)
		if err != nil {
			return "", err
		}
	}

	return l.submit(ctx, Submission{
		OwnerScope:       ownerScope,
		Key:              key,
		EntityType:       e.EntityType,
		Fields:           map[string]value.Value{schema.DeletedField: value.Bool(deleted)},
		SourcePriority:   priority,
		SpecificityScore: 1,
		Sync:             true,
	}, trigger)
}

func (l *Ledger) deletionPriority(ctx context.Context, ownerScope, key string) (int, error) {
	obs, err := l.driver.ListObservations(ctx, ownerScope, key)
	if err != nil {
		return 0, fmt.Errorf("loading observations of %s: %w", key, err)
	}
	for _, o := range obs {
		if o.Defines(schema.DeletedField) && o.SourcePriority >= observation.PriorityRestoration {
			return observation.PriorityRestoration, nil
		}
	}
	return observation.PriorityCorrection, nil
}

func checkSubmission(sub *Submission) error {
	if strings.TrimSpace(sub.OwnerScope) == "" {
		return rejectf("owner scope is required")
	}
	if strings.TrimSpace(sub.Key) == "" {
		return rejectf("key is required")
	}
	if math.IsNaN(sub.SpecificityScore) || sub.SpecificityScore < 0 || sub.SpecificityScore > 1 {
		return rejectf("specificity score %v is outside [0, 1]", sub.SpecificityScore)
	}
	if sub.SourcePriority < 0 {
		return rejectf("source priority %d is negative", sub.SourcePriority)
	}
	for name, v := range sub.Fields {
		if strings.TrimSpace(name) == "" {
			return rejectf("empty field name")
		}
		if !v.Valid() {
			return rejectf("field %q holds an invalid value", name)
		}
	}
	return nil
}

func (l *Ledger) submit(ctx context.Context, sub Submission, trigger string) (string, error) {
	if err := checkSubmission(&sub); err != nil {
		metrics.ObservationsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	entity, key, unlock, err := l.acquire(ctx, sub.OwnerScope, sub.Key)
	if err != nil {
		return "", err
	}
	defer unlock()

	if key != sub.Key {
		l.logger.Debug("submission redirected to merge target",
			"owner_scope", sub.OwnerScope,
			"from_key", sub.Key,
			"to_key", key,
		)
	}

	target, err := resolveTarget(sub, entity, key)
	if err != nil {
		metrics.ObservationsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	if sub.IdempotencyKey != "" {
		prior, err := l.driver.FindObservationByIdempotencyKey(ctx, sub.OwnerScope, key, sub.IdempotencyKey)
		switch {
		case err == nil:
			metrics.ObservationsTotal.WithLabelValues("duplicate").Inc()
			l.logger.Debug("idempotent resubmission",
				"owner_scope", sub.OwnerScope,
				"key", key,
				"observation_id", prior.ID,
			)
			return prior.ID, nil
		case !storage.IsNotFound(err):
			return "", fmt.Errorf("checking idempotency key: %w", err)
		}
	}

	def, err := l.activeSchema(ctx, target.Type, sub.OwnerScope)
	if err != nil {
		return "", err
	}
	validation := observation.Validate(sub.Fields, def, sub.SourcePriority)

	now := l.timestamp()
	obs := &observation.Observation{
		ID:               newID(),
		Key:              key,
		EntityType:       target.Type,
		OwnerScope:       sub.OwnerScope,
		Fields:           validation.Fields,
		SourcePriority:   sub.SourcePriority,
		SpecificityScore: sub.SpecificityScore,
		ObservedAt:       sub.ObservedAt.UTC(),
		IdempotencyKey:   sub.IdempotencyKey,
		SourceID:         sub.SourceID,
		InterpretationID: sub.InterpretationID,
		Reason:           sub.Reason,
		CreatedAt:        now,
	}
	if def != nil {
		obs.SchemaVersion = def.Version
	}
	if sub.ObservedAt.IsZero() {
		obs.ObservedAt = now
	}

	err = l.driver.WithTx(ctx, func(tx storage.Store) error {
		if entity == nil {
			if err := registerTarget(ctx, tx, sub.OwnerScope, target, now); err != nil {
				return err
			}
		}
		if err := tx.InsertObservation(ctx, obs); err != nil {
			return fmt.Errorf("storing observation: %w", err)
		}
		for _, f := range validation.Fragments {
			f.ID = newID()
			f.OwnerScope = sub.OwnerScope
			f.Key = key
			f.ObservationID = obs.ID
			f.FirstSeen = now
			f.LastSeen = now
			if err := tx.UpsertFragment(ctx, &f); err != nil {
				return fmt.Errorf("storing raw fragment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.ObservationsTotal.WithLabelValues("stored").Inc()
	for _, f := range validation.Fragments {
		metrics.FragmentsTotal.WithLabelValues(string(f.Reason)).Inc()
	}

	l.logger.Debug("observation stored",
		"owner_scope", sub.OwnerScope,
		"key", key,
		"observation_id", obs.ID,
		"source_priority", obs.SourcePriority,
		"fields", len(obs.Fields),
		"fragments", len(validation.Fragments),
	)

	if l.pool != nil && !sub.Sync {
		if l.pool.Enqueue(recomputeJob(sub.OwnerScope, key)) {
			return obs.ID, nil
		}
	}

	if _, err := l.recomputeLocked(ctx, sub.OwnerScope, key, trigger); err != nil {
		// The observation is durable; the snapshot is rebuilt on the next
		// write or fresh read.
		l.logger.Error("recompute after submission failed",
			"owner_scope", sub.OwnerScope,
			"key", key,
			"observation_id", obs.ID,
			"error", err,
		)
	}

	return obs.ID, nil
}

// resolveTarget checks the submission against the registered entity, if any,
// and builds the target the observation is stored under.
func resolveTarget(sub Submission, entity *storage.Entity, key string) (observation.Target, error) {
	entityType := sub.EntityType
	if entity != nil {
		if entity.OwnerScope != sub.OwnerScope {
			return observation.Target{}, rejectf("key %s belongs to another owner", key)
		}
		if entityType == "" {
			entityType = entity.EntityType
		}
		if entityType != entity.EntityType {
			return observation.Target{}, rejectf("key %s is a %s, not a %s", key, entity.EntityType, entityType)
		}
	}

	target, err := observation.ResolveTarget(key, entityType)
	if err != nil {
		return observation.Target{}, fmt.Errorf("%w: %w", ErrObservationRejected, err)
	}
	return target, nil
}

// registerTarget adds a new key to the entity registry. A registration by
// another owner that landed since the key was read rejects the submission.
func registerTarget(ctx context.Context, tx storage.Store, ownerScope string, t observation.Target, now time.Time) error {
	existing, err := lookupEntity(ctx, tx, t.Key)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.OwnerScope != ownerScope {
			return rejectf("key %s belongs to another owner", t.Key)
		}
		if existing.EntityType != t.Type {
			return rejectf("key %s is a %s, not a %s", t.Key, existing.EntityType, t.Type)
		}
		return nil
	}

	err = tx.PutEntity(ctx, &storage.Entity{
		Key:        t.Key,
		Kind:       t.Kind,
		EntityType: t.Type,
		OwnerScope: ownerScope,
		SourceID:   t.SourceID,
		TargetID:   t.TargetID,
		CreatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("registering key %s: %w", t.Key, err)
	}
	return nil
}
