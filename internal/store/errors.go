package store

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists indicates an entity with the same ID already exists.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrCorrupt indicates a persisted record could not be decoded.
	ErrCorrupt = errors.New("corrupt record")

	// ErrConflict indicates the record changed since it was loaded.
	ErrConflict = errors.New("version conflict")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidID indicates the provided ID is invalid.
	ErrInvalidID = errors.New("invalid entity ID")
)

// NotFoundError wraps ErrNotFound with entity details.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a typed not found error.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// CorruptError reports an unreadable record. It matches both ErrCorrupt and
// ErrNotFound: callers of a single-record read treat corruption as absence.
type CorruptError struct {
	ID  string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt session record %s: %v", e.ID, e.Err)
}

func (e *CorruptError) Unwrap() []error {
	return []error{ErrCorrupt, ErrNotFound, e.Err}
}

// ConflictError wraps ErrConflict with the versions involved.
type ConflictError struct {
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s: expected version %d, found %d", e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupt checks if an error is a corrupt record error.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// IsConflict checks if an error is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
