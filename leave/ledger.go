/*
ledger.go - Category-aware credit, debit and refund

PURPOSE:
  Wraps the generic ledger with leave rules: only credit-bearing categories
  hold a balance, debits never take a balance below zero, and credits of
  expiring categories open a one-year grant.

OPERATIONS:
  Credit  +amount  TxGrant/TxAccrual  fails on unknown/non-credit category or amount <= 0
  Debit   -amount  TxDeduction        fails with InsufficientBalanceError, never clamps
  Refund  +amount  TxRefund           always succeeds, no upper bound
  Reset   target   TxReset            overwrites the balance (January SLP)

  Balances are never stored. Balance() sums the category history.

SEE ALSO:
  - generic/ledger.go: Append-only storage of the history
  - expiry.go: Grant bookkeeping for expiring categories
*/
package leave

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/govhr/leave-engine/generic"
)

type BalanceLedger struct {
	store    Store
	ledger   *generic.DefaultLedger
	registry *Registry
	expiry   *ExpiryTracker
	clock    generic.Clock
	newID    func() string
}

func NewBalanceLedger(store Store, registry *Registry, clock generic.Clock) *BalanceLedger {
	return &BalanceLedger{
		store:    store,
		ledger:   generic.NewLedger(store),
		registry: registry,
		expiry:   NewExpiryTracker(store, clock),
		clock:    clock,
		newID:    uuid.NewString,
	}
}

func (l *BalanceLedger) Expiry() *ExpiryTracker { return l.expiry }

// Posting describes one balance movement.
type Posting struct {
	EmployeeID     generic.EntityID
	Category       Category
	Amount         generic.Amount // always positive; the operation sets the sign
	EffectiveAt    generic.TimePoint
	Type           generic.TransactionType
	Reason         string
	ReferenceID    string
	IdempotencyKey string
	Actor          generic.EntityID
}

func (l *BalanceLedger) balancePolicy(cat Category) (CategoryPolicy, error) {
	p, ok := l.registry.Policy(cat)
	if !ok {
		return CategoryPolicy{}, fmt.Errorf("%w: %q", ErrInvalidCategory, cat)
	}
	if !p.RequiresCredit {
		return CategoryPolicy{}, fmt.Errorf("%w: %s does not keep a balance", ErrInvalidCategory, cat)
	}
	return p, nil
}

func (l *BalanceLedger) tx(p Posting, delta generic.Amount, typ generic.TransactionType) generic.Transaction {
	effective := p.EffectiveAt
	if effective.IsZero() {
		effective = l.clock.Today()
	}
	return generic.Transaction{
		ID:             generic.TransactionID(l.newID()),
		EntityID:       p.EmployeeID,
		Resource:       p.Category,
		EffectiveAt:    effective.Date(),
		Delta:          delta,
		Type:           typ,
		ReferenceID:    p.ReferenceID,
		Reason:         p.Reason,
		IdempotencyKey: p.IdempotencyKey,
		CreatedBy:      string(p.Actor),
		CreatedAt:      generic.Instant(l.clock.Now()),
	}
}

// Credit adds amount to a credit category as an administrative grant.
func (l *BalanceLedger) Credit(ctx context.Context, emp generic.EntityID, cat Category, amount generic.Amount, effective generic.TimePoint) error {
	_, err := l.Post(ctx, Posting{EmployeeID: emp, Category: cat, Amount: amount, EffectiveAt: effective, Type: generic.TxGrant})
	return err
}

// Post credits p.Amount with p.Type (grant, accrual or adjustment) and opens
// an expiry grant for expiring categories.
func (l *BalanceLedger) Post(ctx context.Context, p Posting) (generic.Transaction, error) {
	policy, err := l.balancePolicy(p.Category)
	if err != nil {
		return generic.Transaction{}, err
	}
	if !p.Amount.IsPositive() {
		return generic.Transaction{}, generic.ErrNegativeAmount
	}
	if p.Type == "" {
		p.Type = generic.TxGrant
	}
	if _, err := l.store.GetEmployee(ctx, p.EmployeeID); err != nil {
		return generic.Transaction{}, err
	}

	tx := l.tx(p, p.Amount, p.Type)
	if err := l.ledger.Append(ctx, tx); err != nil {
		return generic.Transaction{}, err
	}
	if policy.ExpiresAfterYear {
		if _, err := l.expiry.RecordGrant(ctx, p.EmployeeID, p.Category, p.Amount, tx.EffectiveAt, string(tx.ID)); err != nil {
			return generic.Transaction{}, err
		}
	}
	return tx, nil
}

// Debit removes amount from a credit category. It fails rather than let the
// balance go negative.
func (l *BalanceLedger) Debit(ctx context.Context, emp generic.EntityID, cat Category, amount generic.Amount) error {
	_, err := l.DebitWith(ctx, Posting{EmployeeID: emp, Category: cat, Amount: amount})
	return err
}

func (l *BalanceLedger) DebitWith(ctx context.Context, p Posting) (generic.Transaction, error) {
	if _, err := l.balancePolicy(p.Category); err != nil {
		return generic.Transaction{}, err
	}
	if !p.Amount.IsPositive() {
		return generic.Transaction{}, generic.ErrNegativeAmount
	}
	balance, err := l.Balance(ctx, p.EmployeeID, p.Category)
	if err != nil {
		return generic.Transaction{}, err
	}
	if balance.Sub(p.Amount).IsNegative() {
		return generic.Transaction{}, &generic.InsufficientBalanceError{
			EntityID: p.EmployeeID, Resource: p.Category, Available: balance, Requested: p.Amount,
		}
	}
	typ := p.Type
	if typ == "" {
		typ = generic.TxDeduction
	}
	tx := l.tx(p, p.Amount.Neg(), typ)
	return tx, l.ledger.Append(ctx, tx)
}

// Refund adds amount back. It is not bounded by earlier debits; callers that
// refund a request refund exactly what that request deducted, once.
func (l *BalanceLedger) Refund(ctx context.Context, emp generic.EntityID, cat Category, amount generic.Amount) error {
	_, err := l.RefundWith(ctx, Posting{EmployeeID: emp, Category: cat, Amount: amount})
	return err
}

func (l *BalanceLedger) RefundWith(ctx context.Context, p Posting) (generic.Transaction, error) {
	if _, err := l.balancePolicy(p.Category); err != nil {
		return generic.Transaction{}, err
	}
	if !p.Amount.IsPositive() {
		return generic.Transaction{}, generic.ErrNegativeAmount
	}
	tx := l.tx(p, p.Amount, generic.TxRefund)
	return tx, l.ledger.Append(ctx, tx)
}

// Forfeit removes up to amount without failing, used when refunded credits
// belong to a grant that has already expired.
func (l *BalanceLedger) Forfeit(ctx context.Context, p Posting) (generic.Amount, error) {
	balance, err := l.Balance(ctx, p.EmployeeID, p.Category)
	if err != nil {
		return generic.Amount{}, err
	}
	amount := p.Amount.Min(balance)
	if !amount.IsPositive() {
		return amount.Zero(), nil
	}
	return amount, l.ledger.Append(ctx, l.tx(p, amount.Neg(), generic.TxExpiry))
}

// Reset overwrites the balance with target. Open grants are voided and, for
// expiring categories, one fresh grant of target is recorded.
func (l *BalanceLedger) Reset(ctx context.Context, p Posting, target generic.Amount) (generic.Transaction, error) {
	policy, err := l.balancePolicy(p.Category)
	if err != nil {
		return generic.Transaction{}, err
	}
	if target.IsNegative() {
		return generic.Transaction{}, generic.ErrNegativeAmount
	}
	current, err := l.Balance(ctx, p.EmployeeID, p.Category)
	if err != nil {
		return generic.Transaction{}, err
	}
	tx := l.tx(p, target.Sub(current), generic.TxReset)
	if err := l.ledger.Append(ctx, tx); err != nil {
		return generic.Transaction{}, err
	}
	if policy.ExpiresAfterYear {
		if err := l.expiry.Void(ctx, p.EmployeeID, p.Category); err != nil {
			return generic.Transaction{}, err
		}
		if target.IsPositive() {
			if _, err := l.expiry.RecordGrant(ctx, p.EmployeeID, p.Category, target, tx.EffectiveAt, string(tx.ID)); err != nil {
				return generic.Transaction{}, err
			}
		}
	}
	return tx, nil
}

func (l *BalanceLedger) Balance(ctx context.Context, emp generic.EntityID, cat Category) (generic.Amount, error) {
	return l.ledger.Balance(ctx, emp, cat)
}

// BalanceAt sums the category history effective on or before at.
func (l *BalanceLedger) BalanceAt(ctx context.Context, emp generic.EntityID, cat Category, at generic.TimePoint) (generic.Amount, error) {
	return l.ledger.BalanceAt(ctx, emp, cat, at)
}

// Balances returns the balance of every credit category, including zeros.
func (l *BalanceLedger) Balances(ctx context.Context, emp generic.EntityID) (map[Category]generic.Amount, error) {
	txs, err := l.store.LoadByEntity(ctx, emp)
	if err != nil {
		return nil, err
	}
	out := make(map[Category]generic.Amount)
	for _, c := range l.registry.CreditCategories() {
		out[c] = generic.Days(0)
	}
	for _, tx := range txs {
		c := Category(tx.Resource.ResourceID())
		if cur, ok := out[c]; ok {
			out[c] = cur.Add(tx.Delta)
		}
	}
	return out, nil
}

func (l *BalanceLedger) History(ctx context.Context, emp generic.EntityID) ([]generic.Transaction, error) {
	return l.store.LoadByEntity(ctx, emp)
}
