/*
accrual.go - Monthly vacation/sick accrual and the January reset

PURPOSE:
  Every month each active employee earns 1.25 days of vacation and 1.25
  days of sick leave (15 days per year each). In January, balances of
  non-cumulative annual categories are overwritten with their allotment:
  special privilege leave becomes exactly 3, solo parent leave exactly 7
  for solo parents.

STATE PER EMPLOYEE PER RUN:
  NotEligible     inactive, or less than one month of service and never accrued
  AlreadyAccrued  last accrual falls in the current month or later
  Eligible        everything else

IDEMPOTENCE:
  The last-accrual date makes a second run in the same month skip the
  employee. Each accrual transaction also carries the key
  "accrual-<employee>-<yyyy-mm>-<category>", so two overlapping runs cannot
  both credit even if they read the employee before either commits.

SEE ALSO:
  - engine.go: RunMonthlyAccrual loops over employees, one DB transaction each
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/govhr/leave-engine/generic"
)

// MonthlyRate is the CSC monthly vacation and sick leave increment.
var MonthlyRate = generic.NewAmount(1.25, generic.UnitDays)

// MonthlyAccrualCategories earn MonthlyRate every month.
var MonthlyAccrualCategories = []Category{Vacation, Sick}

type AccrualState string

const (
	StateNotEligible    AccrualState = "not_eligible"
	StateEligible       AccrualState = "eligible"
	StateAlreadyAccrued AccrualState = "already_accrued"
)

type AccrualOutcome string

const (
	OutcomeAccrued        AccrualOutcome = "accrued"
	OutcomeAlreadyAccrued AccrualOutcome = "already_accrued"
	OutcomeNotEligible    AccrualOutcome = "not_eligible"
	OutcomeError          AccrualOutcome = "error"
)

type AccrualDetail struct {
	EmployeeID generic.EntityID
	Outcome    AccrualOutcome
	Message    string
	Credited   map[Category]generic.Amount
}

// AccrualRun is the persisted summary of one RunMonthlyAccrual call.
type AccrualRun struct {
	ID          string
	Period      string // yyyy-mm
	StartedAt   generic.TimePoint
	FinishedAt  generic.TimePoint
	TriggeredBy generic.EntityID
	Processed   int
	Skipped     int
	Errors      int
	Details     []AccrualDetail
}

func (r *AccrualRun) add(d AccrualDetail) {
	switch d.Outcome {
	case OutcomeAccrued:
		r.Processed++
	case OutcomeError:
		r.Errors++
	default:
		r.Skipped++
	}
	r.Details = append(r.Details, d)
}

// Period formats the accrual month of today.
func Period(today generic.TimePoint) string {
	return fmt.Sprintf("%04d-%02d", today.Year(), int(today.Month()))
}

// AccrualEligibility classifies an employee for the run on today.
func AccrualEligibility(e Employee, today generic.TimePoint) (AccrualState, string) {
	if !e.IsActive() {
		return StateNotEligible, "employee is not active"
	}
	if !e.LastAccrualAt.IsZero() {
		if e.LastAccrualAt.MonthStamp() >= today.MonthStamp() {
			return StateAlreadyAccrued, "already accrued on " + e.LastAccrualAt.Date().String()
		}
		return StateEligible, ""
	}
	start := e.TenureStart()
	if start.IsZero() || start.AddMonths(1).After(today) {
		return StateNotEligible, "less than one month of service"
	}
	return StateEligible, ""
}

// Accruer applies one month of accrual to one employee.
type Accruer struct {
	store    Store
	registry *Registry
	ledger   *BalanceLedger
	clock    generic.Clock
}

func NewAccruer(store Store, registry *Registry, ledger *BalanceLedger, clock generic.Clock) *Accruer {
	return &Accruer{store: store, registry: registry, ledger: ledger, clock: clock}
}

func accrualKey(emp generic.EntityID, period string, c Category) string {
	return fmt.Sprintf("accrual-%s-%s-%s", emp, period, c)
}

// Accrue credits the monthly increments for emp. Ineligible and already
// accrued employees are reported without writing anything.
func (a *Accruer) Accrue(ctx context.Context, emp generic.EntityID, runID string) (AccrualDetail, error) {
	detail := AccrualDetail{EmployeeID: emp}
	e, err := a.store.GetEmployee(ctx, emp)
	if err != nil {
		return detail, err
	}
	today := a.clock.Today()
	state, msg := AccrualEligibility(e, today)
	switch state {
	case StateNotEligible:
		detail.Outcome, detail.Message = OutcomeNotEligible, msg
		return detail, nil
	case StateAlreadyAccrued:
		detail.Outcome, detail.Message = OutcomeAlreadyAccrued, msg
		return detail, nil
	}

	period := Period(today)
	detail.Credited = make(map[Category]generic.Amount)
	for _, c := range MonthlyAccrualCategories {
		if _, ok := a.registry.Policy(c); !ok {
			continue
		}
		_, err := a.ledger.Post(ctx, Posting{
			EmployeeID:     emp,
			Category:       c,
			Amount:         MonthlyRate,
			EffectiveAt:    today,
			Type:           generic.TxAccrual,
			Reason:         "monthly accrual " + period,
			ReferenceID:    runID,
			IdempotencyKey: accrualKey(emp, period, c),
			Actor:          SystemActor.ID,
		})
		if err != nil {
			return detail, fmt.Errorf("accrue %s: %w", c, err)
		}
		detail.Credited[c] = MonthlyRate
	}

	if today.Month() == time.January {
		for _, p := range a.registry.All() {
			if !p.ResetsAnnually || e.Eligible(p) != nil {
				continue
			}
			_, err := a.ledger.Reset(ctx, Posting{
				EmployeeID:     emp,
				Category:       p.Category,
				EffectiveAt:    today,
				Reason:         fmt.Sprintf("annual reset %d", today.Year()),
				ReferenceID:    runID,
				IdempotencyKey: accrualKey(emp, period, p.Category),
				Actor:          SystemActor.ID,
			}, p.AnnualAllotment)
			if err != nil {
				return detail, fmt.Errorf("reset %s: %w", p.Category, err)
			}
			detail.Credited[p.Category] = p.AnnualAllotment
		}
	}

	// grant bookkeeping above may have rewritten the employee row
	e, err = a.store.GetEmployee(ctx, emp)
	if err != nil {
		return detail, err
	}
	e.LastAccrualAt = today
	if err := a.store.SaveEmployee(ctx, e); err != nil {
		return detail, err
	}
	detail.Outcome = OutcomeAccrued
	return detail, nil
}
