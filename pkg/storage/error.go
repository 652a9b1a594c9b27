package storage

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}

	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrDuplicate is returned when inserting a record whose id already exists.
var ErrDuplicate = errors.New("duplicate record")
