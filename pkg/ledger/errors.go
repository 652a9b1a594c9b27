package ledger

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/truthstore/pkg/merge"
)

var (
	// ErrObservationRejected is returned for submissions that cannot be
	// stored: a malformed key, an empty owner, a key owned by another owner
	// or an entity type that disagrees with the registered key.
	ErrObservationRejected = errors.New("observation rejected")

	// ErrEntityNotFound is returned for unknown keys, keys of another owner
	// and tombstoned snapshots.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityMerged is matched by *MergedError.
	ErrEntityMerged = errors.New("entity has been merged")

	// ErrFieldNotFound is returned when a snapshot has no such field.
	ErrFieldNotFound = errors.New("field not found")
)

// Merge errors, re-exported so callers only need this package.
var (
	ErrSelfMerge                = merge.ErrSelfMerge
	ErrCrossOwnerMerge          = merge.ErrCrossOwnerMerge
	ErrAlreadyMerged            = merge.ErrAlreadyMerged
	ErrMergeTargetAlreadyMerged = merge.ErrMergeTargetAlreadyMerged
	ErrEntityTypeMismatch       = merge.ErrEntityTypeMismatch
	ErrInvalidMergeRequest      = merge.ErrInvalidRequest
)

// MergedError is returned when reading a key that was merged away. Target is
// where its observations live now.
type MergedError struct {
	Key    string
	Target string
}

func (e *MergedError) Error() string {
	return fmt.Sprintf("entity %s has been merged into %s", e.Key, e.Target)
}

// Is reports whether target is ErrEntityMerged.
func (e *MergedError) Is(target error) bool {
	return target == ErrEntityMerged
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrObservationRejected, fmt.Sprintf(format, args...))
}
