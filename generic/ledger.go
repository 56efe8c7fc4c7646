/*
ledger.go - Append-only credit history

PURPOSE:
  The Ledger is the immutable source of truth for every credit balance.
  Accruals, grants, deductions, refunds, annual resets and expiries are all
  recorded here. A balance is computed by summing transactions; there is no
  stored balance column that could drift from its history.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A wrong deduction is never edited. A refund transaction with the opposite
  sign is appended, and both stay in the history.

EXAMPLE FLOW:
  1. Monthly accrual:           TxAccrual   +1.25
  2. Three-day vacation filed:  TxDeduction -3
  3. Request cancelled:         TxRefund    +3

  Vacation history: [+1.25, -3, +3] requires an opening balance >= 3 for step 2.

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/ledger.go: Category-aware credit/debit/refund rules
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for all balance changes.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for entity+resource, chronologically.
	Transactions(ctx context.Context, entityID EntityID, resource ResourceType) ([]Transaction, error)

	// Balance is the sum of every transaction for entity+resource.
	Balance(ctx context.Context, entityID EntityID, resource ResourceType) (Amount, error)

	// BalanceAt sums transactions effective on or before at.
	BalanceAt(ctx context.Context, entityID EntityID, resource ResourceType, at TimePoint) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
	Unit  Unit
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store, Unit: UnitDays}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if err := l.checkKey(ctx, tx.IdempotencyKey); err != nil {
		return err
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
		if err := l.checkKey(ctx, tx.IdempotencyKey); err != nil {
			return err
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) checkKey(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	exists, err := l.Store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateIdempotencyKey
	}
	return nil
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID, resource ResourceType) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID, resource)
}

func (l *DefaultLedger) Balance(ctx context.Context, entityID EntityID, resource ResourceType) (Amount, error) {
	txs, err := l.Store.Load(ctx, entityID, resource)
	if err != nil {
		return Amount{}, err
	}
	return Sum(txs, l.Unit), nil
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, entityID EntityID, resource ResourceType, at TimePoint) (Amount, error) {
	txs, err := l.Store.Load(ctx, entityID, resource)
	if err != nil {
		return Amount{}, err
	}

	balance := NewAmount(0, l.Unit)
	for _, tx := range txs {
		if tx.EffectiveAt.After(at) {
			continue
		}
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}

// Sum adds up the deltas of txs.
func Sum(txs []Transaction, unit Unit) Amount {
	total := NewAmount(0, unit)
	for _, tx := range txs {
		total = total.Add(tx.Delta)
	}
	return total
}
