/*
errors.go - Centralized error types for the rewards engine

PURPOSE:
  All error kinds in one place so the HTTP layer can map them to statuses
  with errors.Is() and never has to parse messages.

ERROR CATEGORIES:
  1. Validation errors - Caller input defects (missing field, bad range, ...)
  2. Store errors - Missing or duplicate customer records
  3. Wrapped store failures - Anything else, surfaced as internal errors

USAGE:
  resp, err := engine.Compute(ctx, customer, rng)
  if errors.Is(err, rewards.ErrFutureDate) {
      // caller sent a transaction dated tomorrow
  }

  var fe *rewards.FieldError
  if errors.As(err, &fe) {
      log.Printf("bad field %s: %s", fe.Field, fe.Message)
  }

SEE ALSO:
  - validate.go: Produces FieldError values
  - engine.go: Wraps validation failures with ErrInvalidCustomer
  - api/handlers.go: Maps these errors to HTTP statuses
*/
package rewards

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrEmptyCollection is returned when a list that must be non-empty is empty.
	ErrEmptyCollection = errors.New("empty collection")

	// ErrInvalidRange is returned when start is after end, or either bound is in the future.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrNonPositiveAmount is returned when a transaction amount is zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")

	// ErrAmountTooLarge is returned when a transaction amount exceeds MaxAmount.
	ErrAmountTooLarge = errors.New("amount is too large")

	// ErrFutureDate is returned when a transaction is dated after today.
	ErrFutureDate = errors.New("date is in the future")

	// ErrDuplicateCustomer is returned when creating a customer whose ID already exists.
	ErrDuplicateCustomer = errors.New("customer already exists")

	// ErrNotFound is returned when a referenced customer doesn't exist.
	ErrNotFound = errors.New("customer not found")

	// ErrInvalidCustomer wraps validation failures of a supplied customer payload.
	ErrInvalidCustomer = errors.New("invalid customer")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError describes a single validation failure. Kind is one of the
// validation sentinels above.
type FieldError struct {
	Field   string // e.g. "customerName", "transactions[2].amount"
	Message string
	Kind    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

func fieldError(kind error, field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...), Kind: kind}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrEmptyCollection) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrAmountTooLarge) ||
		errors.Is(err, ErrFutureDate) ||
		errors.Is(err, ErrInvalidCustomer)
}

// IsNotFound returns true if the error indicates a missing customer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error indicates an existing record clashes
// with the write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateCustomer)
}
