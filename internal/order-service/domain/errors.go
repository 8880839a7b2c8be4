package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyOrder        = errors.New("order must keep at least one item")
	ErrNotEditable       = errors.New("order is not editable in its current status")
	ErrItemNotFound      = errors.New("line item not found")
	ErrForbidden         = errors.New("actor may not change this order")
	ErrInvalidOrder      = errors.New("invalid order")
)

// InvalidTransitionError carries the rejected edge. It matches ErrInvalidTransition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("%s: %q is terminal, cannot move to %q", ErrInvalidTransition, e.From, e.To)
	}
	return fmt.Sprintf("%s: %q -> %q", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// PersistenceError wraps a store failure. It is surfaced as is and never retried here.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err came from the store layer.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
