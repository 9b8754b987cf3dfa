package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by administrative operations (renaming a
// container, editing a card) when the target does not exist. Allocation
// operations never return it; they are silent no-ops instead.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// CapacityExceededError is returned when a resize asks for more copies than
// are available once every other claim is accounted for. No mutation has
// happened when it is returned.
type CapacityExceededError struct {
	CardID    string
	Requested int
	Max       int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("cannot allocate %d copies of card %s: only %d available", e.Requested, e.CardID, e.Max)
}

// PersistenceError wraps a failed durable write. The in-memory state that
// triggered the write is left as it was; callers that need durable and local
// state to agree must reload.
type PersistenceError struct {
	Entity string // "card" or "container"
	ID     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// BatchError collects the independent write failures of a reconciliation
// that touched several entities. Writes that succeeded are not rolled back.
type BatchError struct {
	Failures []*PersistenceError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d of the batch writes failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// IsPersistenceFailure reports whether err is, or contains, a failed write.
func IsPersistenceFailure(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
