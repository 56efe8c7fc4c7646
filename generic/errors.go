/*
errors.go - Error types shared by every credit-keeping domain

PURPOSE:
  Ledger and store failures that are not specific to leave rules. The leave
  package defines its own policy errors (leave/errors.go) and wraps these
  where it adds context.

ERROR CATEGORIES:
  1. Ledger errors - Duplicate keys, failed persistence
  2. Validation errors - Negative amounts, inverted date ranges
  3. Store errors - Missing entities, lost write races

USAGE:
  if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
      // already processed, safe to ignore
  }

SEE ALSO:
  - ledger.go: Returns these errors
  - leave/errors.go: Domain errors and HTTP-facing classification
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. Expected on scheduler re-runs.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when a transaction cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInsufficientBalance is returned when a debit would take a balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNegativeAmount is returned when a credit or debit amount is not positive.
	ErrNegativeAmount = errors.New("amount must be positive")

	// ErrConcurrentModification is returned when a write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrEntityNotFound is returned when a referenced entity doesn't exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidDateRange is returned when an end date precedes its start date.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EntityID  EntityID
	Resource  ResourceType
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Shortfall is how much more balance the debit needed.
func (e *InsufficientBalanceError) Shortfall() Amount {
	return e.Requested.Sub(e.Available)
}

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level input problems.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field was rejected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidDateRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
