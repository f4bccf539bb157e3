package timeblock

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/salonhub/availability/internal/domain/appointment"
)

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError lists the active appointments a write would overlap.
type ConflictError struct {
	Conflicts []*appointment.Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time block conflicts with %d appointment(s)", len(e.Conflicts))
}

// NotFoundError covers both missing blocks and blocks owned by another
// provider.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("time block %s not found", e.ID)
}

// StateError reports an operation that does not apply to the block's
// current state.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// classify passes domain errors through and wraps everything else.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		se *StateError
		st *StorageError
	)
	if errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ne) ||
		errors.As(err, &se) || errors.As(err, &st) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
