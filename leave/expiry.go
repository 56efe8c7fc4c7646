/*
expiry.go - One-year grant tracking for mandatory, CTO and SLP credits

PURPOSE:
  Credits of the expiring categories are tracked per grant. Every grant
  expires exactly one calendar year after its grant date, whatever the
  calendar year boundaries are. Consumption draws from the oldest grant
  first, and a daily sweep forfeits whatever is left on grants past expiry.

GRANT LIFECYCLE:
  recorded -> partially used -> used          (consumed by requests)
  recorded -> expired                         (sweep, remaining forfeited)
  recorded -> voided                          (January reset of SLP)

  remaining = amount - used amount. A grant is open while it is neither
  used, expired nor voided. Only open grants are consumed or alerted.

NEXT EXPIRY:
  Each employee row carries one "next expiry" date per category. It is
  recomputed from the open grants after every change and always holds the
  soonest date, even when an older grant is recorded after a newer one.

SEE ALSO:
  - ledger.go: Credit records a grant for expiring categories
  - alerts.go: Turns ListExpiring results into tiered alerts
*/
package leave

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/govhr/leave-engine/generic"
)

// =============================================================================
// TYPES
// =============================================================================

type ExpiryGrant struct {
	ID         string
	EmployeeID generic.EntityID
	Category   Category
	Amount     generic.Amount
	UsedAmount generic.Amount
	GrantDate  generic.TimePoint
	ExpiryDate generic.TimePoint
	Expired    bool
	Used       bool
	Voided     bool
	SourceTxID string
	CreatedAt  generic.TimePoint
}

func (g ExpiryGrant) Remaining() generic.Amount { return g.Amount.Sub(g.UsedAmount) }

func (g ExpiryGrant) Open() bool {
	return !g.Expired && !g.Used && !g.Voided && g.Remaining().IsPositive()
}

// ExpiryDateFor is grantDate plus one calendar year.
func ExpiryDateFor(grantDate generic.TimePoint) generic.TimePoint {
	return grantDate.Date().AddYears(1)
}

// Allocation records how much of a grant a deduction consumed.
type Allocation struct {
	GrantID string
	Amount  generic.Amount
}

type ExpiringGrant struct {
	GrantID         string
	EmployeeID      generic.EntityID
	Category        Category
	Remaining       generic.Amount
	ExpiryDate      generic.TimePoint
	DaysUntilExpiry int
}

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CriticalWithinDays = 15
	WarningWithinDays  = 45
)

// Classify maps days until expiry onto an alert tier.
func Classify(daysUntil int) Severity {
	switch {
	case daysUntil <= CriticalWithinDays:
		return SeverityCritical
	case daysUntil <= WarningWithinDays:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

type Forfeiture struct {
	GrantID    string
	EmployeeID generic.EntityID
	Category   Category
	Amount     generic.Amount
}

type SweepResult struct {
	AsOf      generic.TimePoint
	Expired   int
	Forfeited []Forfeiture
}

// =============================================================================
// EXPIRY TRACKER
// =============================================================================

type ExpiryTracker struct {
	store  Store
	ledger generic.Ledger
	clock  generic.Clock
	newID  func() string
}

func NewExpiryTracker(store Store, clock generic.Clock) *ExpiryTracker {
	return &ExpiryTracker{
		store:  store,
		ledger: generic.NewLedger(store),
		clock:  clock,
		newID:  uuid.NewString,
	}
}

// RecordGrant persists a grant expiring one year after grantDate.
func (t *ExpiryTracker) RecordGrant(ctx context.Context, emp generic.EntityID, cat Category, amount generic.Amount, grantDate generic.TimePoint, sourceTxID string) (ExpiryGrant, error) {
	if !amount.IsPositive() {
		return ExpiryGrant{}, generic.ErrNegativeAmount
	}
	g := ExpiryGrant{
		ID:         t.newID(),
		EmployeeID: emp,
		Category:   cat,
		Amount:     amount,
		UsedAmount: amount.Zero(),
		GrantDate:  grantDate.Date(),
		ExpiryDate: ExpiryDateFor(grantDate),
		SourceTxID: sourceTxID,
		CreatedAt:  generic.Instant(t.clock.Now()),
	}
	if err := t.store.SaveGrant(ctx, g); err != nil {
		return ExpiryGrant{}, fmt.Errorf("save grant: %w", err)
	}
	return g, t.refreshNextExpiry(ctx, emp, cat)
}

// usable grants are open and not past their expiry date as of today.
func (t *ExpiryTracker) usable(ctx context.Context, emp generic.EntityID, cat Category) ([]ExpiryGrant, error) {
	grants, err := t.store.ListGrants(ctx, emp, cat)
	if err != nil {
		return nil, err
	}
	today := t.clock.Today()
	var out []ExpiryGrant
	for _, g := range grants {
		if g.Open() && g.ExpiryDate.After(today) {
			out = append(out, g)
		}
	}
	return out, nil
}

// Remaining sums the remaining amount of usable grants.
func (t *ExpiryTracker) Remaining(ctx context.Context, emp generic.EntityID, cat Category) (generic.Amount, error) {
	grants, err := t.usable(ctx, emp, cat)
	if err != nil {
		return generic.Amount{}, err
	}
	total := generic.Days(0)
	for _, g := range grants {
		total = total.Add(g.Remaining())
	}
	return total, nil
}

// Consume draws amount from the oldest usable grants first.
func (t *ExpiryTracker) Consume(ctx context.Context, emp generic.EntityID, cat Category, amount generic.Amount) ([]Allocation, error) {
	if !amount.IsPositive() {
		return nil, generic.ErrNegativeAmount
	}
	grants, err := t.usable(ctx, emp, cat)
	if err != nil {
		return nil, err
	}
	total := amount.Zero()
	for _, g := range grants {
		total = total.Add(g.Remaining())
	}
	if total.LessThan(amount) {
		return nil, &InsufficientGrantedCreditsError{EmployeeID: emp, Category: cat, Remaining: total, Requested: amount}
	}

	left := amount
	var allocs []Allocation
	for _, g := range grants {
		if !left.IsPositive() {
			break
		}
		take := g.Remaining().Min(left)
		g.UsedAmount = g.UsedAmount.Add(take)
		g.Used = !g.Remaining().IsPositive()
		if err := t.store.SaveGrant(ctx, g); err != nil {
			return nil, fmt.Errorf("save grant %s: %w", g.ID, err)
		}
		allocs = append(allocs, Allocation{GrantID: g.ID, Amount: take})
		left = left.Sub(take)
	}
	return allocs, t.refreshNextExpiry(ctx, emp, cat)
}

// Restore puts consumed amounts back on their grants. Amounts whose grant
// has since expired or been voided cannot be restored and are returned as
// lapsed so the caller can forfeit them.
func (t *ExpiryTracker) Restore(ctx context.Context, allocs []Allocation) (generic.Amount, error) {
	lapsed := generic.Days(0)
	type pair struct {
		emp generic.EntityID
		cat Category
	}
	touched := map[pair]bool{}
	for _, a := range allocs {
		g, err := t.store.GetGrant(ctx, a.GrantID)
		if err != nil {
			return generic.Amount{}, err
		}
		touched[pair{g.EmployeeID, g.Category}] = true
		if g.Expired || g.Voided {
			lapsed = lapsed.Add(a.Amount)
			continue
		}
		g.UsedAmount = g.UsedAmount.Sub(a.Amount).Max(g.UsedAmount.Zero())
		g.Used = !g.Remaining().IsPositive()
		if err := t.store.SaveGrant(ctx, g); err != nil {
			return generic.Amount{}, fmt.Errorf("save grant %s: %w", g.ID, err)
		}
	}
	for p := range touched {
		if err := t.refreshNextExpiry(ctx, p.emp, p.cat); err != nil {
			return generic.Amount{}, err
		}
	}
	return lapsed, nil
}

// Void closes every open grant for emp+cat without forfeiting anything.
// The annual reset overwrites the balance, so the old grants stop counting.
func (t *ExpiryTracker) Void(ctx context.Context, emp generic.EntityID, cat Category) error {
	grants, err := t.store.ListGrants(ctx, emp, cat)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if !g.Open() {
			continue
		}
		g.Voided = true
		if err := t.store.SaveGrant(ctx, g); err != nil {
			return fmt.Errorf("void grant %s: %w", g.ID, err)
		}
	}
	return t.refreshNextExpiry(ctx, emp, cat)
}

// ListExpiring returns open grants with 0 < expiryDate-asOf <= withinDays,
// soonest first. Grants already past expiry are not returned.
func (t *ExpiryTracker) ListExpiring(ctx context.Context, asOf generic.TimePoint, withinDays int) ([]ExpiringGrant, error) {
	grants, err := t.store.ListOpenGrants(ctx)
	if err != nil {
		return nil, err
	}
	var out []ExpiringGrant
	for _, g := range grants {
		if !g.Open() {
			continue
		}
		days := generic.DaysBetween(asOf, g.ExpiryDate)
		if days <= 0 || days > withinDays {
			continue
		}
		out = append(out, ExpiringGrant{
			GrantID:         g.ID,
			EmployeeID:      g.EmployeeID,
			Category:        g.Category,
			Remaining:       g.Remaining(),
			ExpiryDate:      g.ExpiryDate,
			DaysUntilExpiry: days,
		})
	}
	return out, nil
}

// Sweep expires open grants whose expiry date is on or before asOf and
// forfeits their remaining amount, capped at the current balance.
func (t *ExpiryTracker) Sweep(ctx context.Context, asOf generic.TimePoint) (SweepResult, error) {
	result := SweepResult{AsOf: asOf}
	grants, err := t.store.ListOpenGrants(ctx)
	if err != nil {
		return result, err
	}
	type pair struct {
		emp generic.EntityID
		cat Category
	}
	touched := map[pair]bool{}

	for _, g := range grants {
		if !g.Open() || g.ExpiryDate.After(asOf) {
			continue
		}
		remaining := g.Remaining()
		g.Expired = true
		if err := t.store.SaveGrant(ctx, g); err != nil {
			return result, fmt.Errorf("expire grant %s: %w", g.ID, err)
		}
		result.Expired++
		touched[pair{g.EmployeeID, g.Category}] = true

		balance, err := t.ledger.Balance(ctx, g.EmployeeID, g.Category)
		if err != nil {
			return result, err
		}
		forfeit := remaining.Min(balance)
		if !forfeit.IsPositive() {
			continue
		}
		err = t.ledger.Append(ctx, generic.Transaction{
			ID:             generic.TransactionID(t.newID()),
			EntityID:       g.EmployeeID,
			Resource:       g.Category,
			EffectiveAt:    g.ExpiryDate,
			Delta:          forfeit.Neg(),
			Type:           generic.TxExpiry,
			ReferenceID:    g.ID,
			Reason:         fmt.Sprintf("grant of %s expired on %s", g.GrantDate, g.ExpiryDate),
			IdempotencyKey: "expiry-" + g.ID,
			CreatedBy:      string(SystemActor.ID),
			CreatedAt:      generic.Instant(t.clock.Now()),
		})
		if err != nil {
			return result, fmt.Errorf("forfeit grant %s: %w", g.ID, err)
		}
		result.Forfeited = append(result.Forfeited, Forfeiture{
			GrantID: g.ID, EmployeeID: g.EmployeeID, Category: g.Category, Amount: forfeit,
		})
	}

	for p := range touched {
		if err := t.refreshNextExpiry(ctx, p.emp, p.cat); err != nil {
			return result, err
		}
	}
	return result, nil
}

// refreshNextExpiry stores the soonest open expiry date on the employee.
func (t *ExpiryTracker) refreshNextExpiry(ctx context.Context, emp generic.EntityID, cat Category) error {
	e, err := t.store.GetEmployee(ctx, emp)
	if err != nil {
		return err
	}
	grants, err := t.store.ListGrants(ctx, emp, cat)
	if err != nil {
		return err
	}
	var soonest generic.TimePoint
	for _, g := range grants {
		if !g.Open() {
			continue
		}
		if soonest.IsZero() || g.ExpiryDate.Before(soonest) {
			soonest = g.ExpiryDate
		}
	}
	current, had := e.NextExpiry[cat]
	if (!had && soonest.IsZero()) || (had && current.Equal(soonest)) {
		return nil
	}
	e.setNextExpiry(cat, soonest)
	return t.store.SaveEmployee(ctx, e)
}
