package leave

import (
	"context"
	"fmt"

	"github.com/govhr/leave-engine/generic"
)

// Deduction is the outcome of a successful credit check.
type Deduction struct {
	EmployeeID    generic.EntityID
	Category      Category
	StartDate     generic.TimePoint
	EndDate       generic.TimePoint
	DaysRequested int
	Deducted      generic.Amount // zero for non-credit categories
	Allocations   []Allocation
	TransactionID generic.TransactionID
}

// CreditChecker validates a date range against the category rules and the
// employee's balance, then deducts. It must run on a Store bound to a
// database transaction so the check and the debit commit together.
type CreditChecker struct {
	store    Store
	registry *Registry
	ledger   *BalanceLedger
}

func NewCreditChecker(store Store, registry *Registry, ledger *BalanceLedger) *CreditChecker {
	return &CreditChecker{store: store, registry: registry, ledger: ledger}
}

// CheckAndDeduct counts the working days in [start, end] and deducts them
// from the category balance. referenceID links the deduction to its request.
// Non-credit categories skip the balance check and accept any valid range,
// including one with no working days.
func (c *CreditChecker) CheckAndDeduct(ctx context.Context, emp generic.EntityID, category string, start, end generic.TimePoint, referenceID string) (Deduction, error) {
	if end.Before(start) {
		return Deduction{}, fmt.Errorf("%w: %s is before %s", generic.ErrInvalidDateRange, end, start)
	}
	days := generic.BusinessDays(start, end)
	policy, err := c.registry.Lookup(category)
	if err != nil {
		return Deduction{}, err
	}
	e, err := c.store.GetEmployee(ctx, emp)
	if err != nil {
		return Deduction{}, err
	}
	if !e.IsActive() {
		return Deduction{}, &IneligibleError{EmployeeID: emp, Category: policy.Category, Reason: "employee is not active"}
	}
	if err := e.Eligible(policy); err != nil {
		return Deduction{}, err
	}

	d := Deduction{
		EmployeeID:    emp,
		Category:      policy.Category,
		StartDate:     start.Date(),
		EndDate:       end.Date(),
		DaysRequested: days,
		Deducted:      generic.Days(0),
	}

	if !policy.RequiresCredit {
		if policy.Capped() && generic.NewAmountFromInt(days, generic.UnitDays).GreaterThan(policy.AnnualAllotment) {
			return Deduction{}, &ExceedsAllotmentError{Category: policy.Category, Allotment: policy.AnnualAllotment, Requested: days}
		}
		return d, nil
	}

	// A credit category has nothing to deduct from a weekend-only range.
	if days == 0 {
		return Deduction{}, fmt.Errorf("%w: %s to %s", ErrNoWorkingDays, start, end)
	}
	requested := generic.NewAmountFromInt(days, generic.UnitDays)
	balance, err := c.ledger.Balance(ctx, emp, policy.Category)
	if err != nil {
		return Deduction{}, err
	}
	if balance.LessThan(requested) {
		return Deduction{}, &InsufficientCreditsError{EmployeeID: emp, Category: policy.Category, Available: balance, Requested: requested}
	}

	tx, err := c.ledger.DebitWith(ctx, Posting{
		EmployeeID:  emp,
		Category:    policy.Category,
		Amount:      requested,
		Type:        generic.TxDeduction,
		Reason:      fmt.Sprintf("leave %s to %s", d.StartDate, d.EndDate),
		ReferenceID: referenceID,
		Actor:       emp,
	})
	if err != nil {
		return Deduction{}, err
	}
	d.Deducted = requested
	d.TransactionID = tx.ID

	if policy.ExpiresAfterYear {
		allocs, err := c.ledger.Expiry().Consume(ctx, emp, policy.Category, requested)
		if err != nil {
			return Deduction{}, err
		}
		d.Allocations = allocs
	}
	return d, nil
}

// Reverse refunds what a request deducted and restores its grant
// allocations. Credits whose grant expired in the meantime are forfeited
// again straight away. Returns the net amount given back.
func (c *CreditChecker) Reverse(ctx context.Context, r LeaveRequest, actor generic.EntityID, reason string) (generic.Amount, error) {
	if r.Refunded || !r.Deducted.IsPositive() {
		return generic.Days(0), nil
	}
	policy, ok := c.registry.Policy(r.Category)
	if !ok || !policy.RefundOnCancel {
		return generic.Days(0), nil
	}

	base := Posting{
		EmployeeID:     r.EmployeeID,
		Category:       r.Category,
		Amount:         r.Deducted,
		Reason:         reason,
		ReferenceID:    r.ID,
		IdempotencyKey: "refund-" + r.ID,
		Actor:          actor,
	}
	if _, err := c.ledger.RefundWith(ctx, base); err != nil {
		return generic.Amount{}, err
	}

	lapsed, err := c.ledger.Expiry().Restore(ctx, r.Allocations)
	if err != nil {
		return generic.Amount{}, err
	}
	if !lapsed.IsPositive() {
		return r.Deducted, nil
	}
	forfeit := base
	forfeit.Amount = lapsed
	forfeit.Reason = "refunded credits belong to an expired grant"
	forfeit.IdempotencyKey = "refund-lapse-" + r.ID
	taken, err := c.ledger.Forfeit(ctx, forfeit)
	if err != nil {
		return generic.Amount{}, err
	}
	return r.Deducted.Sub(taken), nil
}
