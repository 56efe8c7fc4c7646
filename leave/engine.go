/*
engine.go - Entry point for every leave operation

PURPOSE:
  The Engine is what the HTTP layer, the scheduler and the report renderer
  talk to. Each write runs inside exactly one store transaction, so a credit
  check and its deduction, or one employee's accrual, commit or roll back
  together. Notifications go out only after the commit and their failures
  are logged, never returned.

OPERATIONS:
  SubmitRequest       check + deduct + create request
  CancelRequest       refund + cancel while pending and nothing approved
  RecordApproval      one slot decision, refund on final rejection
  RunMonthlyAccrual   per-employee transactions, failures isolated
  SweepExpired        expire grants past their date and forfeit the rest
  ExpiryAlerts        tiered alerts for grants about to expire
  GrantCredit         administrative top-up or migration

READ MODELS (for reports):
  Balances, History, Grants, Request, Requests, AccrualRuns, Audit

SEE ALSO:
  - api/handlers.go: HTTP mapping of these operations
  - api/scheduler.go: Cron wiring for accrual, sweep and alert dispatch
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/govhr/leave-engine/generic"
)

type Engine struct {
	store    TxStore
	registry *Registry
	clock    generic.Clock
	notifier Notifier
	logger   *zap.Logger
	newID    func() string
}

type Option func(*Engine)

func WithClock(c generic.Clock) Option       { return func(e *Engine) { e.clock = c } }
func WithNotifier(n Notifier) Option         { return func(e *Engine) { e.notifier = n } }
func WithLogger(l *zap.Logger) Option        { return func(e *Engine) { e.logger = l } }
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

func NewEngine(store TxStore, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		clock:    generic.SystemClock{},
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	return e
}

func (e *Engine) Registry() *Registry  { return e.registry }
func (e *Engine) Clock() generic.Clock { return e.clock }

// components binds the rule objects to one store, usually a transaction.
type components struct {
	ledger  *BalanceLedger
	checker *CreditChecker
	accruer *Accruer
	alerts  *AlertGenerator
}

func (e *Engine) bind(s Store) components {
	l := NewBalanceLedger(s, e.registry, e.clock)
	return components{
		ledger:  l,
		checker: NewCreditChecker(s, e.registry, l),
		accruer: NewAccruer(s, e.registry, l, e.clock),
		alerts:  NewAlertGenerator(s, e.registry, l),
	}
}

func (e *Engine) audit(ctx context.Context, s Store, actor Actor, action generic.AuditAction, emp generic.EntityID, subject string, payload map[string]string) error {
	return s.AppendAudit(ctx, generic.AuditEntry{
		ID:        e.newID(),
		Timestamp: generic.Instant(e.clock.Now()),
		ActorID:   string(actor.ID),
		Action:    action,
		EntityID:  emp,
		Subject:   subject,
		Payload:   payload,
	})
}

func (e *Engine) notify(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = e.clock.Now()
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notification failed",
			zap.String("event", string(n.Event)),
			zap.String("recipient", string(n.Recipient)),
			zap.Error(err))
	}
}

func (e *Engine) notifyEmployee(ctx context.Context, emp Employee, event Event, requestID, details string) {
	e.notify(ctx, Notification{
		Recipient: emp.ID, Name: emp.Name, Email: emp.Email,
		Event: event, RequestID: requestID, Details: details,
	})
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// RegisterEmployee creates or updates an employee record. Accrual and
// expiry bookkeeping fields are preserved on update.
func (e *Engine) RegisterEmployee(ctx context.Context, actor Actor, emp Employee) (Employee, error) {
	if !actor.IsAdmin() {
		return Employee{}, ErrForbidden
	}
	if emp.Status == "" {
		emp.Status = EmployeeActive
	}
	if emp.Role == "" {
		emp.Role = RoleStaff
	}
	if err := emp.Validate(); err != nil {
		return Employee{}, err
	}
	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetEmployee(ctx, emp.ID)
		switch {
		case err == nil:
			emp.CreatedAt = existing.CreatedAt
			emp.LastAccrualAt = existing.LastAccrualAt
			emp.NextExpiry = existing.NextExpiry
		case errors.Is(err, ErrEmployeeNotFound):
			emp.CreatedAt = generic.Instant(e.clock.Now())
		default:
			return err
		}
		return s.SaveEmployee(ctx, emp)
	})
	if err != nil {
		return Employee{}, err
	}
	e.logger.Info("employee registered", zap.String("employee_id", string(emp.ID)), zap.String("role", string(emp.Role)))
	return emp, nil
}

func (e *Engine) Employee(ctx context.Context, id generic.EntityID) (Employee, error) {
	return e.store.GetEmployee(ctx, id)
}

func (e *Engine) Employees(ctx context.Context) ([]Employee, error) {
	return e.store.ListEmployees(ctx, false)
}

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequest deducts the working days of [StartDate, EndDate] and files a
// pending request.
func (e *Engine) SubmitRequest(ctx context.Context, actor Actor, in SubmitInput) (SubmitResult, error) {
	if !actor.CanActFor(in.EmployeeID) {
		return SubmitResult{}, ErrForbidden
	}
	ve := &generic.ValidationError{}
	if in.EmployeeID == "" {
		ve.Add("employee_id", "required")
	}
	if in.Category == "" {
		ve.Add("category", "required")
	}
	if in.StartDate.IsZero() {
		ve.Add("start_date", "required")
	}
	if in.EndDate.IsZero() {
		ve.Add("end_date", "required")
	}
	if err := ve.OrNil(); err != nil {
		return SubmitResult{}, err
	}

	id := e.newID()
	var req LeaveRequest
	var emp Employee
	err := e.store.WithTx(ctx, func(s Store) error {
		c := e.bind(s)
		var err error
		if emp, err = s.GetEmployee(ctx, in.EmployeeID); err != nil {
			return err
		}
		d, err := c.checker.CheckAndDeduct(ctx, in.EmployeeID, in.Category, in.StartDate, in.EndDate, id)
		if err != nil {
			return err
		}
		now := generic.Instant(e.clock.Now())
		req = LeaveRequest{
			ID:             id,
			EmployeeID:     in.EmployeeID,
			Category:       d.Category,
			StartDate:      d.StartDate,
			EndDate:        d.EndDate,
			DaysRequested:  d.DaysRequested,
			Reason:         in.Reason,
			Status:         StatusPending,
			Approvals:      NewApprovalState(),
			RequiredLevels: RequiredLevels(emp.Role),
			Deducted:       d.Deducted,
			Allocations:    d.Allocations,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.SaveRequest(ctx, req); err != nil {
			return err
		}
		return e.audit(ctx, s, actor, generic.AuditRequestSubmitted, in.EmployeeID, id, map[string]string{
			"category": string(d.Category),
			"days":     fmt.Sprint(d.DaysRequested),
		})
	})
	if err != nil {
		return SubmitResult{}, err
	}

	e.logger.Info("leave request submitted",
		zap.String("request_id", id),
		zap.String("employee_id", string(in.EmployeeID)),
		zap.String("category", string(req.Category)),
		zap.Int("days", req.DaysRequested))
	e.notifyEmployee(ctx, emp, EventRequestSubmitted, id,
		fmt.Sprintf("%d day(s) of %s from %s to %s", req.DaysRequested, req.Category, req.StartDate, req.EndDate))

	return SubmitResult{RequestID: id, DaysRequested: req.DaysRequested, Status: req.Status}, nil
}

// CancelRequest withdraws a pending request nobody has approved yet and
// refunds its deduction.
func (e *Engine) CancelRequest(ctx context.Context, actor Actor, requestID string) (LeaveRequest, error) {
	var req LeaveRequest
	var emp Employee
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		if req, err = s.GetRequest(ctx, requestID); err != nil {
			return err
		}
		if !actor.CanActFor(req.EmployeeID) {
			return ErrForbidden
		}
		if err := req.Cancellable(); err != nil {
			return err
		}
		if emp, err = s.GetEmployee(ctx, req.EmployeeID); err != nil {
			return err
		}
		refunded, err := e.bind(s).checker.Reverse(ctx, req, actor.ID, "request cancelled")
		if err != nil {
			return err
		}
		req.Refunded = req.Refunded || req.Deducted.IsPositive()
		req.Status = StatusCancelled
		req.UpdatedAt = generic.Instant(e.clock.Now())
		if err := s.SaveRequest(ctx, req); err != nil {
			return err
		}
		return e.audit(ctx, s, actor, generic.AuditRequestCancelled, req.EmployeeID, req.ID, map[string]string{
			"refunded": refunded.String(),
		})
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	e.logger.Info("leave request cancelled", zap.String("request_id", requestID))
	e.notifyEmployee(ctx, emp, EventRequestCancelled, requestID, "your leave request was cancelled")
	return req, nil
}

// RecordApproval records one authority's decision and re-derives the status.
// A request that becomes rejected gets its deduction refunded.
func (e *Engine) RecordApproval(ctx context.Context, actor Actor, requestID, level, decision, reason string) (LeaveRequest, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return LeaveRequest{}, err
	}
	dec, err := ParseDecision(decision)
	if err != nil {
		return LeaveRequest{}, err
	}

	var req LeaveRequest
	var requester Employee
	var before RequestStatus
	err = e.store.WithTx(ctx, func(s Store) error {
		var err error
		if req, err = s.GetRequest(ctx, requestID); err != nil {
			return err
		}
		if requester, err = s.GetEmployee(ctx, req.EmployeeID); err != nil {
			return err
		}
		actorDept := ""
		if lvl == LevelDepartment {
			if self, err := s.GetEmployee(ctx, actor.ID); err == nil {
				actorDept = self.Department
			}
		}
		if !CanDecide(actor, actorDept, lvl, requester) {
			return fmt.Errorf("%w: %s cannot decide the %s level", ErrForbidden, actor.ID, lvl)
		}
		if req.Status.Terminal() {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, req.Status)
		}
		if req.Approvals.Get(lvl).Decided() {
			return fmt.Errorf("%w: %s level is %s", ErrAlreadyDecided, lvl, req.Approvals.Get(lvl).Decision)
		}

		now := generic.Instant(e.clock.Now())
		before = req.Status
		req.Approvals = req.Approvals.With(lvl, LevelDecision{Decision: dec, DecidedBy: actor.ID, Reason: reason, DecidedAt: now})
		req.Status = DeriveStatus(req.Approvals, req.RequiredLevels)
		req.UpdatedAt = now

		if req.Status == StatusRejected {
			if _, err := e.bind(s).checker.Reverse(ctx, req, actor.ID, "request rejected"); err != nil {
				return err
			}
			req.Refunded = req.Refunded || req.Deducted.IsPositive()
		}
		if err := s.SaveRequest(ctx, req); err != nil {
			return err
		}
		action := generic.AuditRequestApproved
		if dec == DecisionRejected {
			action = generic.AuditRequestRejected
		}
		return e.audit(ctx, s, actor, action, req.EmployeeID, req.ID, map[string]string{
			"level":  string(lvl),
			"status": string(req.Status),
			"reason": reason,
		})
	})
	if err != nil {
		return LeaveRequest{}, err
	}

	e.logger.Info("approval recorded",
		zap.String("request_id", requestID),
		zap.String("level", string(lvl)),
		zap.String("decision", string(dec)),
		zap.String("status", string(req.Status)))

	switch {
	case before != req.Status && req.Status == StatusApproved:
		e.notifyEmployee(ctx, requester, EventRequestApproved, requestID, "your leave request was approved")
	case before != req.Status && req.Status == StatusRejected:
		e.notifyEmployee(ctx, requester, EventRequestRejected, requestID, "your leave request was rejected at every level")
	default:
		e.notifyEmployee(ctx, requester, EventApprovalRecorded, requestID, fmt.Sprintf("%s level %s your request", lvl, dec))
	}
	return req, nil
}

func (e *Engine) Request(ctx context.Context, id string) (LeaveRequest, error) {
	return e.store.GetRequest(ctx, id)
}

func (e *Engine) Requests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error) {
	return e.store.ListRequests(ctx, filter)
}

// =============================================================================
// CREDITS
// =============================================================================

// GrantCredit tops up a credit category. Only HR admins may grant.
func (e *Engine) GrantCredit(ctx context.Context, actor Actor, emp generic.EntityID, category string, amount generic.Amount, effective generic.TimePoint, reason string) (generic.Transaction, error) {
	if !actor.IsAdmin() {
		return generic.Transaction{}, ErrForbidden
	}
	policy, err := e.registry.Lookup(category)
	if err != nil {
		return generic.Transaction{}, err
	}
	if effective.IsZero() {
		effective = e.clock.Today()
	}
	var tx generic.Transaction
	var employee Employee
	err = e.store.WithTx(ctx, func(s Store) error {
		var err error
		if employee, err = s.GetEmployee(ctx, emp); err != nil {
			return err
		}
		tx, err = e.bind(s).ledger.Post(ctx, Posting{
			EmployeeID:  emp,
			Category:    policy.Category,
			Amount:      amount,
			EffectiveAt: effective,
			Type:        generic.TxGrant,
			Reason:      reason,
			Actor:       actor.ID,
		})
		if err != nil {
			return err
		}
		return e.audit(ctx, s, actor, generic.AuditCreditGranted, emp, string(policy.Category), map[string]string{
			"amount":    amount.String(),
			"effective": effective.String(),
		})
	})
	if err != nil {
		return generic.Transaction{}, err
	}
	e.logger.Info("credit granted",
		zap.String("employee_id", string(emp)),
		zap.String("category", string(policy.Category)),
		zap.String("amount", amount.String()))
	e.notifyEmployee(ctx, employee, EventCreditsGranted, "",
		fmt.Sprintf("%s days of %s credited effective %s", amount, policy.DisplayName, effective))
	return tx, nil
}

type BalanceLine struct {
	Category    Category
	DisplayName string
	Balance     generic.Amount
	NextExpiry  generic.TimePoint
	Cumulative  bool
	Commutable  bool
	Expires     bool
}

// Balances lists every credit category the employee is eligible for.
func (e *Engine) Balances(ctx context.Context, id generic.EntityID) ([]BalanceLine, error) {
	emp, err := e.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	balances, err := e.bind(e.store).ledger.Balances(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.balanceLines(emp, balances, emp.NextExpiry), nil
}

// BalancesAsOf is Balances restricted to transactions effective on or
// before at. Next-expiry dates describe the present, so they are left out.
func (e *Engine) BalancesAsOf(ctx context.Context, id generic.EntityID, at generic.TimePoint) ([]BalanceLine, error) {
	emp, err := e.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger := e.bind(e.store).ledger
	balances := make(map[Category]generic.Amount)
	for _, c := range e.registry.CreditCategories() {
		if balances[c], err = ledger.BalanceAt(ctx, id, c, at.Date()); err != nil {
			return nil, err
		}
	}
	return e.balanceLines(emp, balances, nil), nil
}

func (e *Engine) balanceLines(emp Employee, balances map[Category]generic.Amount, next map[Category]generic.TimePoint) []BalanceLine {
	var out []BalanceLine
	for _, c := range e.registry.CreditCategories() {
		p, _ := e.registry.Policy(c)
		if emp.Eligible(p) != nil {
			continue
		}
		out = append(out, BalanceLine{
			Category:    c,
			DisplayName: p.DisplayName,
			Balance:     balances[c],
			NextExpiry:  next[c],
			Cumulative:  p.Cumulative,
			Commutable:  p.Commutable,
			Expires:     p.ExpiresAfterYear,
		})
	}
	return out
}

func (e *Engine) Balance(ctx context.Context, id generic.EntityID, c Category) (generic.Amount, error) {
	return e.bind(e.store).ledger.Balance(ctx, id, c)
}

// History returns the credit history, oldest first.
func (e *Engine) History(ctx context.Context, id generic.EntityID) ([]generic.Transaction, error) {
	if _, err := e.store.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	txs, err := e.bind(e.store).ledger.History(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].EffectiveAt.Before(txs[j].EffectiveAt) })
	return txs, nil
}

func (e *Engine) Grants(ctx context.Context, id generic.EntityID) ([]ExpiryGrant, error) {
	if _, err := e.store.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListGrantsByEmployee(ctx, id)
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// RunMonthlyAccrual accrues every active employee in its own transaction.
// One employee's failure is recorded in the result and the run continues.
func (e *Engine) RunMonthlyAccrual(ctx context.Context, actor Actor) (AccrualRun, error) {
	if !actor.IsAdmin() {
		return AccrualRun{}, ErrForbidden
	}
	today := e.clock.Today()
	run := AccrualRun{
		ID:          e.newID(),
		Period:      Period(today),
		StartedAt:   generic.Instant(e.clock.Now()),
		TriggeredBy: actor.ID,
	}
	employees, err := e.store.ListEmployees(ctx, true)
	if err != nil {
		return run, err
	}

	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		var detail AccrualDetail
		err := e.store.WithTx(ctx, func(s Store) error {
			d, err := e.bind(s).accruer.Accrue(ctx, emp.ID, run.ID)
			detail = d
			return err
		})
		switch {
		case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
			detail = AccrualDetail{EmployeeID: emp.ID, Outcome: OutcomeAlreadyAccrued, Message: "accrued by a concurrent run"}
		case err != nil:
			detail = AccrualDetail{EmployeeID: emp.ID, Outcome: OutcomeError, Message: err.Error()}
			e.logger.Error("accrual failed", zap.String("employee_id", string(emp.ID)), zap.Error(err))
		}
		run.add(detail)
	}
	run.FinishedAt = generic.Instant(e.clock.Now())

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveAccrualRun(ctx, run); err != nil {
			return err
		}
		return e.audit(ctx, s, actor, generic.AuditAccrualRun, "", run.ID, map[string]string{
			"period":    run.Period,
			"processed": fmt.Sprint(run.Processed),
			"skipped":   fmt.Sprint(run.Skipped),
			"errors":    fmt.Sprint(run.Errors),
		})
	})
	if err != nil {
		return run, fmt.Errorf("save accrual run: %w", err)
	}
	e.logger.Info("monthly accrual finished",
		zap.String("run_id", run.ID),
		zap.String("period", run.Period),
		zap.Int("processed", run.Processed),
		zap.Int("skipped", run.Skipped),
		zap.Int("errors", run.Errors))
	return run, nil
}

func (e *Engine) AccrualRuns(ctx context.Context, limit int) ([]AccrualRun, error) {
	return e.store.ListAccrualRuns(ctx, limit)
}

// SweepExpired expires every grant whose expiry date is today or earlier.
func (e *Engine) SweepExpired(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		result, err = e.bind(s).ledger.Expiry().Sweep(ctx, e.clock.Today())
		if err != nil || result.Expired == 0 {
			return err
		}
		return e.audit(ctx, s, SystemActor, generic.AuditExpirySweep, "", result.AsOf.String(), map[string]string{
			"expired":   fmt.Sprint(result.Expired),
			"forfeited": fmt.Sprint(len(result.Forfeited)),
		})
	})
	if err != nil {
		return SweepResult{}, err
	}
	if result.Expired > 0 {
		e.logger.Info("expired grants swept", zap.Int("expired", result.Expired), zap.Int("forfeited", len(result.Forfeited)))
	}
	for _, f := range result.Forfeited {
		emp, err := e.store.GetEmployee(ctx, f.EmployeeID)
		if err != nil {
			e.logger.Warn("forfeiture notice skipped", zap.String("employee_id", string(f.EmployeeID)), zap.Error(err))
			continue
		}
		e.notifyEmployee(ctx, emp, EventCreditsForfeited, "", fmt.Sprintf("%s days of %s expired", f.Amount, f.Category))
	}
	return result, nil
}

// ExpiryAlerts lists grants expiring within withinDays of today. A
// non-positive window means the warning tier.
func (e *Engine) ExpiryAlerts(ctx context.Context, withinDays int) ([]ExpiryAlert, error) {
	if withinDays <= 0 {
		withinDays = WarningWithinDays
	}
	return e.bind(e.store).alerts.Generate(ctx, e.clock.Today(), withinDays)
}

// DispatchExpiryAlerts sends one notification per alert and returns how many
// were handed to the notifier.
func (e *Engine) DispatchExpiryAlerts(ctx context.Context, withinDays int) (int, error) {
	alerts, err := e.ExpiryAlerts(ctx, withinDays)
	if err != nil {
		return 0, err
	}
	for _, a := range alerts {
		e.notify(ctx, a.Notification(e.clock.Now()))
	}
	return len(alerts), nil
}

func (e *Engine) Audit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	return e.store.QueryAudit(ctx, filter)
}
