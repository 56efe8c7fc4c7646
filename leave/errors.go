package leave

import (
	"errors"
	"fmt"

	"github.com/govhr/leave-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// Validation
	ErrInvalidCategory = errors.New("invalid leave category")
	ErrNoWorkingDays   = errors.New("date range contains no working days")
	ErrInvalidLevel    = errors.New("invalid approval level")
	ErrInvalidDecision = errors.New("invalid approval decision")

	// Policy
	ErrInsufficientCredits        = errors.New("insufficient leave credits")
	ErrInsufficientGrantedCredits = errors.New("insufficient granted credits")
	ErrIneligible                 = errors.New("employee not eligible for leave category")
	ErrExceedsAllotment           = errors.New("request exceeds category allotment")
	ErrInvalidState               = errors.New("request is not in a valid state for this operation")
	ErrAlreadyDecided             = errors.New("approval level already decided")
	ErrForbidden                  = errors.New("caller is not allowed to perform this operation")

	// Not found
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrRequestNotFound  = errors.New("leave request not found")
	ErrGrantNotFound    = errors.New("expiry grant not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientCreditsError is returned by CheckAndDeduct when the category
// balance does not cover the requested working days.
type InsufficientCreditsError struct {
	EmployeeID generic.EntityID
	Category   Category
	Available  generic.Amount
	Requested  generic.Amount
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient %s credits: available %s, requested %s",
		e.Category, e.Available, e.Requested)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// InsufficientGrantedCreditsError is returned when open expiry grants
// cannot cover a consumption.
type InsufficientGrantedCreditsError struct {
	EmployeeID generic.EntityID
	Category   Category
	Remaining  generic.Amount
	Requested  generic.Amount
}

func (e *InsufficientGrantedCreditsError) Error() string {
	return fmt.Sprintf("insufficient granted %s credits: remaining %s, requested %s",
		e.Category, e.Remaining, e.Requested)
}

func (e *InsufficientGrantedCreditsError) Unwrap() error { return ErrInsufficientGrantedCredits }

type IneligibleError struct {
	EmployeeID generic.EntityID
	Category   Category
	Reason     string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s is not eligible for %s: %s", e.EmployeeID, e.Category, e.Reason)
}

func (e *IneligibleError) Unwrap() error { return ErrIneligible }

type ExceedsAllotmentError struct {
	Category  Category
	Allotment generic.Amount
	Requested int
}

func (e *ExceedsAllotmentError) Error() string {
	return fmt.Sprintf("%s allows at most %s days per request, requested %d",
		e.Category, e.Allotment, e.Requested)
}

func (e *ExceedsAllotmentError) Unwrap() error { return ErrExceedsAllotment }

// =============================================================================
// CLASSIFICATION
// =============================================================================

// IsValidationError reports malformed input, rejected before any mutation.
func IsValidationError(err error) bool {
	var ve *generic.ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrNoWorkingDays) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, generic.ErrInvalidDateRange) ||
		errors.Is(err, generic.ErrNegativeAmount)
}

// IsPolicyError reports a well-formed request refused by leave rules.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrInsufficientGrantedCredits) ||
		errors.Is(err, generic.ErrInsufficientBalance) ||
		errors.Is(err, ErrIneligible) ||
		errors.Is(err, ErrExceedsAllotment)
}

// IsConflict reports an operation refused because of the request's state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, generic.ErrDuplicateIdempotencyKey)
}

func IsClientError(err error) bool {
	return IsValidationError(err) || IsPolicyError(err) || IsConflict(err) || generic.IsClientError(err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		generic.IsNotFound(err)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
