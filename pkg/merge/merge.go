// Package merge describes entity merges: the request an operator makes, the
// record it leaves behind and the checks that keep the merge relation acyclic.
package merge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSelfMerge                = errors.New("cannot merge an entity into itself")
	ErrCrossOwnerMerge          = errors.New("entities belong to different owners")
	ErrAlreadyMerged            = errors.New("source entity has already been merged")
	ErrMergeTargetAlreadyMerged = errors.New("merge target has been merged away")
	ErrEntityTypeMismatch       = errors.New("entities have different types")
	ErrInvalidRequest           = errors.New("invalid merge request")
)

// Request asks for every observation of FromKey to be moved onto ToKey.
type Request struct {
	OwnerScope string `json:"owner_scope" validate:"required"`
	FromKey    string `json:"from_key" validate:"required"`
	ToKey      string `json:"to_key" validate:"required"`
	Reason     string `json:"reason,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

// Record is the immutable audit entry written by a completed merge.
type Record struct {
	ID                    string    `json:"id"`
	OwnerScope            string    `json:"owner_scope"`
	FromKey               string    `json:"from_key"`
	ToKey                 string    `json:"to_key"`
	Reason                string    `json:"reason,omitempty"`
	Actor                 string    `json:"actor,omitempty"`
	ObservationsRewritten int       `json:"observations_rewritten"`
	CreatedAt             time.Time `json:"created_at"`
}

// Side is what a merge needs to know about one of its two keys.
type Side struct {
	Key        string
	OwnerScope string
	EntityType string
	MergedInto string

	// Outbound is true when a merge record already names Key as its source.
	Outbound bool
}

// Check validates a merge of from into to on behalf of owner. Both sides
// must exist; the caller reports missing keys itself.
func Check(owner string, from, to Side) error {
	if strings.TrimSpace(from.Key) == "" || strings.TrimSpace(to.Key) == "" {
		return fmt.Errorf("%w: from and to keys are required", ErrInvalidRequest)
	}
	if from.Key == to.Key {
		return fmt.Errorf("%w: %q", ErrSelfMerge, from.Key)
	}
	if from.OwnerScope != owner || to.OwnerScope != owner {
		return fmt.Errorf("%w: %q and %q", ErrCrossOwnerMerge, from.Key, to.Key)
	}
	if from.EntityType != to.EntityType {
		return fmt.Errorf("%w: %q is %s, %q is %s", ErrEntityTypeMismatch, from.Key, from.EntityType, to.Key, to.EntityType)
	}
	if from.MergedInto != "" || from.Outbound {
		return fmt.Errorf("%w: %q", ErrAlreadyMerged, from.Key)
	}
	if to.MergedInto != "" {
		return fmt.Errorf("%w: %q was merged into %q", ErrMergeTargetAlreadyMerged, to.Key, to.MergedInto)
	}
	return nil
}
