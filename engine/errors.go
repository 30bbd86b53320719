/*
errors.go - Centralized error types for the engine

PURPOSE:
  All blocking error types in one place. Callers classify with errors.Is /
  errors.As; the API layer maps classes to HTTP statuses.

ERROR CATEGORIES:
  1. Validation errors - rejected before any write, never partially applied
  2. Not-found errors  - vehicle or fillup missing, rejected before any write
  3. Chain write errors - partial recalculation failure after the primary
     mutation succeeded; carries applied-vs-attempted counts

Consistency warnings are NOT errors; see warnings.go.
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
	// ErrVehicleNotFound is returned when a referenced vehicle doesn't exist.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrFillupNotFound is returned when a referenced fillup doesn't exist or
	// belongs to a different vehicle.
	ErrFillupNotFound = errors.New("fillup not found")

	// ErrValidation is the base error for every input validation failure.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected input field. Nothing has been written
// when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ChainWriteError reports a partial recalculation failure: the primary
// mutation committed, Applied of Attempted chain patches were written, then
// one write failed. Already-written patches are NOT rolled back.
type ChainWriteError struct {
	Applied   int
	Attempted int
	Cause     error
}

func (e *ChainWriteError) Error() string {
	return fmt.Sprintf("chain update incomplete: %d of %d entries written: %v",
		e.Applied, e.Attempted, e.Cause)
}

func (e *ChainWriteError) Unwrap() error { return e.Cause }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVehicleNotFound) || errors.Is(err, ErrFillupNotFound)
}
