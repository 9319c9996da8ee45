// Package persistence defines the store contracts and standardized error types
// for the runbook subsystem.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunbookNotFound indicates a runbook revision was not found by id.
	ErrRunbookNotFound = errors.New("runbook not found")

	// ErrRunNotFound indicates a run was not found by id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNodeRunNotFound indicates a running node record was not found by id.
	ErrNodeRunNotFound = errors.New("running node not found")

	// ErrReportNotFound indicates a report was not found by id.
	ErrReportNotFound = errors.New("report not found")

	// ErrValidation indicates a required field was missing or blank; raised
	// before any I/O and never retried.
	ErrValidation = errors.New("validation failed")

	// ErrRevisionChainCycle indicates a chain traversal revisited a revision or
	// exceeded the maximum depth. The persisted chain is malformed.
	ErrRevisionChainCycle = errors.New("revision chain cycle or excessive depth")

	// ErrDuplicateKey indicates a unique-constraint violation on insert. Report
	// stores swallow it into an empty-id outcome; everywhere else it propagates.
	ErrDuplicateKey = errors.New("duplicate key")
)

// StoreError wraps store errors with the failing operation and target.
type StoreError struct {
	Op     string // operation being performed, e.g. "Create", "Filter"
	Entity string // entity kind, e.g. "runbook", "run"
	ID     string // target id if applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a store error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunbookNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrNodeRunNotFound) ||
		errors.Is(err, ErrReportNotFound)
}

// IsValidation checks if an error indicates a pre-persistence validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRevisionChainCycle checks if an error indicates a malformed revision chain.
func IsRevisionChainCycle(err error) bool {
	return errors.Is(err, ErrRevisionChainCycle)
}

// IsDuplicateKey checks if an error indicates a unique-constraint violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
