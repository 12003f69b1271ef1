// internal/pkg/errs/errs.go
package errs

import "errors"

// Validation errors are rejected before any write.
var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrInactiveLocation = errors.New("location is inactive")
)

// Business-rule violations are terminal for the current request.
var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidAllocationState = errors.New("invalid allocation state")
	ErrInvalidLotState        = errors.New("invalid lot state")
)

// ErrConcurrentAppendConflict is returned when another writer advanced the
// partition chain between reading the tip and inserting the next event.
var ErrConcurrentAppendConflict = errors.New("concurrent append conflict")

// ErrIntegrityViolation marks a broken hash chain or sequence gap. It is
// never retried.
var ErrIntegrityViolation = errors.New("ledger integrity violation")

// Code returns the stable machine-readable kind for an error.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInactiveLocation):
		return "inactive_location"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidAllocationState):
		return "invalid_allocation_state"
	case errors.Is(err, ErrInvalidLotState):
		return "invalid_lot_state"
	case errors.Is(err, ErrConcurrentAppendConflict):
		return "concurrent_append_conflict"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	default:
		return "internal_error"
	}
}

// IsRetryable reports whether the operation may succeed when resubmitted
// against a fresh chain tip.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentAppendConflict)
}
