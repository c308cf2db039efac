package models

import "errors"

// Core error taxonomy. "No signal" is deliberately absent: a detection that
// finds nothing returns a zero-confidence result, not an error.
var (
	// ErrInvalidInput marks malformed or inconsistent input data, such as
	// transactions mixing currencies without a conversion table.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrGoalNotFound marks a referenced goal that does not exist.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrOwnership marks an entity that exists but belongs to another user.
	ErrOwnership = errors.New("entity not owned by requesting user")

	// ErrPersistenceConflict marks a failed atomic supersede-and-create,
	// typically a concurrent writer. Callers should retry the whole
	// detect-and-persist operation.
	ErrPersistenceConflict = errors.New("persistence conflict")
)
