// Package domain provides shared domain-level sentinel errors and the
// transient error family used by the retry executor.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates the request payload failed validation.
var ErrValidation = errors.New("validation failed")

// TransientCategory names a retryable failure class. The set is closed:
// only these categories are ever retried.
type TransientCategory string

const (
	TransientConnection TransientCategory = "connection"
	TransientTimeout    TransientCategory = "timeout"
	TransientRateLimit  TransientCategory = "rate_limit"
	TransientUpstream   TransientCategory = "upstream"
	TransientModel      TransientCategory = "model"
)

// TransientError marks an error as retryable. Adapters wrap I/O failures
// in a TransientError when the failure class is on the allow-list;
// everything else stays permanent.
type TransientError struct {
	Category TransientCategory
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient (%s): %v", e.Category, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable under the given category.
// Returns nil if err is nil.
func Transient(category TransientCategory, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Category: category, Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
