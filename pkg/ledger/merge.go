package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/metrics"
	"github.com/papercomputeco/truthstore/pkg/storage"
)

// MergeEntities moves every observation of req.FromKey onto req.ToKey and
// records the merge. Later writes to FromKey land on ToKey and reads of
// FromKey return a *MergedError.
func (l *Ledger) MergeEntities(ctx context.Context, req merge.Request) (*merge.Record, error) {
	rec, err := l.mergeEntities(ctx, req)
	switch {
	case err == nil:
		metrics.MergesTotal.WithLabelValues("completed").Inc()
	case isMergeRejection(err):
		metrics.MergesTotal.WithLabelValues("rejected").Inc()
	default:
		metrics.MergesTotal.WithLabelValues("failed").Inc()
	}
	return rec, err
}

func isMergeRejection(err error) bool {
	for _, target := range []error{
		ErrEntityNotFound,
		ErrSelfMerge,
		ErrCrossOwnerMerge,
		ErrAlreadyMerged,
		ErrMergeTargetAlreadyMerged,
		ErrEntityTypeMismatch,
		ErrInvalidMergeRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (l *Ledger) mergeEntities(ctx context.Context, req merge.Request) (*merge.Record, error) {
	if req.OwnerScope == "" {
		return nil, fmt.Errorf("%w: owner scope is required", ErrInvalidMergeRequest)
	}

	unlock := l.locks.lockPair(req.OwnerScope, req.FromKey, req.ToKey)
	defer unlock()

	from, err := l.mergeSide(ctx, req.FromKey)
	if err != nil {
		return nil, err
	}
	to, err := l.mergeSide(ctx, req.ToKey)
	if err != nil {
		return nil, err
	}
	if err := merge.Check(req.OwnerScope, from, to); err != nil {
		return nil, err
	}

	rec := &merge.Record{
		ID:         newID(),
		OwnerScope: req.OwnerScope,
		FromKey:    req.FromKey,
		ToKey:      req.ToKey,
		Reason:     req.Reason,
		Actor:      req.Actor,
		CreatedAt:  l.timestamp(),
	}

	err = l.driver.WithTx(ctx, func(tx storage.Store) error {
		n, err := tx.RekeyObservations(ctx, req.OwnerScope, req.FromKey, req.ToKey)
		if err != nil {
			return fmt.Errorf("rewriting observations: %w", err)
		}
		rec.ObservationsRewritten = n

		if err := tx.InsertMerge(ctx, rec); err != nil {
			return err
		}
		if err := tx.DeleteSnapshot(ctx, req.OwnerScope, req.FromKey); err != nil {
			return fmt.Errorf("dropping snapshot of %s: %w", req.FromKey, err)
		}
		if err := moveFragments(ctx, tx, req.OwnerScope, req.FromKey, req.ToKey); err != nil {
			return err
		}
		return redirect(ctx, tx, req.OwnerScope, req.FromKey, req.ToKey)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("entities merged",
		"owner_scope", req.OwnerScope,
		"from_key", req.FromKey,
		"to_key", req.ToKey,
		"observations_rewritten", rec.ObservationsRewritten,
		"actor", req.Actor,
	)

	if _, err := l.recomputeLocked(ctx, req.OwnerScope, req.ToKey, TriggerMerge); err != nil {
		l.logger.Error("recompute after merge failed",
			"owner_scope", req.OwnerScope,
			"key", req.ToKey,
			"error", err,
		)
	}

	l.publish(ctx, eventstream.NewMergeCompleted(req.OwnerScope, eventstream.MergeCompleted{
		MergeID:               rec.ID,
		FromKey:               rec.FromKey,
		ToKey:                 rec.ToKey,
		ObservationsRewritten: rec.ObservationsRewritten,
		Reason:                rec.Reason,
		Actor:                 rec.Actor,
	}, rec.CreatedAt))

	return rec, nil
}

func (l *Ledger) mergeSide(ctx context.Context, key string) (merge.Side, error) {
	if key == "" {
		return merge.Side{}, nil
	}

	e, err := lookupEntity(ctx, l.driver, key)
	if err != nil {
		return merge.Side{}, err
	}
	if e == nil {
		return merge.Side{}, fmt.Errorf("%w: %s", ErrEntityNotFound, key)
	}

	outbound, err := l.driver.ListMerges(ctx, e.OwnerScope, key)
	if err != nil {
		return merge.Side{}, fmt.Errorf("loading merges of %s: %w", key, err)
	}

	return merge.Side{
		Key:        e.Key,
		OwnerScope: e.OwnerScope,
		EntityType: e.EntityType,
		MergedInto: e.MergedInto,
		Outbound:   len(outbound) > 0,
	}, nil
}

// moveFragments re-homes the raw fragments of from onto to, folding them into
// identical fragments already recorded there.
func moveFragments(ctx context.Context, tx storage.Store, ownerScope, from, to string) error {
	frags, err := tx.ListFragments(ctx, ownerScope, from)
	if err != nil {
		return fmt.Errorf("loading fragments of %s: %w", from, err)
	}
	for _, f := range frags {
		f.Key = to
		if err := tx.UpsertFragment(ctx, f); err != nil {
			return fmt.Errorf("moving fragment %s: %w", f.ID, err)
		}
	}
	if err := tx.DeleteFragments(ctx, ownerScope, from); err != nil {
		return fmt.Errorf("dropping fragments of %s: %w", from, err)
	}
	return nil
}

// redirect marks from as merged into to and repoints every key previously
// merged into from, so no key is ever more than one hop from its target.
func redirect(ctx context.Context, tx storage.Store, ownerScope, from, to string) error {
	e, err := tx.GetEntity(ctx, from)
	if err != nil {
		return fmt.Errorf("loading entity %s: %w", from, err)
	}

	aliases, err := tx.ListEntities(ctx, storage.EntityQuery{OwnerScope: ownerScope, MergedInto: from})
	if err != nil {
		return fmt.Errorf("loading aliases of %s: %w", from, err)
	}

	for _, a := range append(aliases, e) {
		a.MergedInto = to
		if err := tx.PutEntity(ctx, a); err != nil {
			return fmt.Errorf("redirecting %s: %w", a.Key, err)
		}
	}
	return nil
}
