/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The api package maps these onto HTTP statuses via the classification
  helpers at the bottom.

ERROR CATEGORIES:
  1. Not-found errors  - Unknown resource/allocation IDs (404-equivalent)
  2. Validation errors - Range/capacity rule violations (400-equivalent),
                         raised before any mutation, safe to retry
  3. Storage errors    - Transaction failures (500-equivalent), whole unit
                         of work rolled back, reported opaquely
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrResourceNotFound is returned when a referenced resource doesn't exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrAllocationNotFound is returned when a referenced allocation doesn't exist.
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrCapacityConflict is returned when the availability check fails.
	ErrCapacityConflict = errors.New("capacity conflict")

	// ErrInvalidRange is returned when a date range is malformed or an
	// allocation range falls outside its resource's validity window.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInvalidPersonCount is returned when a requested headcount is not
	// strictly positive.
	ErrInvalidPersonCount = errors.New("person count must be positive")

	// ErrUnknownStatus is returned when a status transition targets a
	// status outside the workflow.
	ErrUnknownStatus = errors.New("unknown allocation status")

	// ErrStorage is returned when the unit of work cannot be persisted.
	// The whole transaction has been rolled back.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CapacityConflictError details why an allocation request exceeds capacity.
type CapacityConflictError struct {
	ResourceID ResourceID
	Range      DateRange
	Requested  int
	Available  int
}

func (e *CapacityConflictError) Error() string {
	return fmt.Sprintf("resource %s not available for %s: requested %d persons, %d available",
		e.ResourceID, e.Range, e.Requested, e.Available)
}

func (e *CapacityConflictError) Unwrap() error { return ErrCapacityConflict }

// InvalidRangeError details a malformed or out-of-window date range.
type InvalidRangeError struct {
	Range  DateRange
	Window DateRange // resource validity window, zero when not applicable
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s: %s", e.Range, e.Reason)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// StorageError wraps a database failure without leaking internal detail
// to callers; the cause stays available via Unwrap for logging.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s", e.Op)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrAllocationNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// and a corrected retry is safe.
func IsClientError(err error) bool {
	return errors.Is(err, ErrCapacityConflict) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidPersonCount) ||
		errors.Is(err, ErrUnknownStatus)
}
