/*
Package generic provides the domain-agnostic core of the credit engine.

PURPOSE:
  Types and algorithms for tracking per-employee credit balances that do not
  know anything about specific leave categories. The leave package supplies
  the categories and the CSC rules; this package supplies amounts, dates,
  the append-only credit history and the persistence contract.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity of days backed by decimal.Decimal
  - Transaction: An immutable credit-history entry (grant, accrual, deduction...)
  - ResourceType: What a transaction is counted against (a leave category)
  - EntityID: Type-safe employee identifier

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only offset
  2. Precision: 1.25 days per month must add up to exactly 15.00 per year
  3. Auditability: Every transaction has type, reason, reference and timestamp

USAGE:
  tx := generic.Transaction{
      EntityID: "emp-123",
      Resource: leave.Vacation,
      Delta:    generic.NewAmount(1.25, generic.UnitDays),
      Type:     generic.TxAccrual,
  }

SEE ALSO:
  - ledger.go: Balance derivation from transactions
  - store.go: Persistence interfaces
  - time.go: Dates, business days and the injectable clock
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for an amount measured in days.
func Days(value float64) Amount { return NewAmount(value, UnitDays) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) Float() float64               { f, _ := a.Value.Float64(); return f }
func (a Amount) String() string               { return a.Value.StringFixed(3) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type TransactionID string

// ResourceType identifies what a balance is kept for.
// Domain packages define the concrete types:
//
//	// In leave/category.go
//	type Category string
//	func (c Category) ResourceID() string     { return string(c) }
//	func (c Category) ResourceDomain() string { return "leave" }
type ResourceType interface {
	ResourceID() string
	ResourceDomain() string
}

// =============================================================================
// TRANSACTION - Atomic change to a balance
// =============================================================================

type TransactionType string

const (
	TxGrant      TransactionType = "grant"      // Administrative credit grant or migration
	TxAccrual    TransactionType = "accrual"    // Monthly scheduled increment
	TxDeduction  TransactionType = "deduction"  // Leave request submitted
	TxRefund     TransactionType = "refund"     // Cancelled or rejected request
	TxReset      TransactionType = "reset"      // Annual overwrite of a non-cumulative balance
	TxExpiry     TransactionType = "expiry"     // Forfeiture of an expired grant
	TxAdjustment TransactionType = "adjustment" // Manual admin correction
)

// Transaction is one entry of the credit history. It is never mutated or
// deleted once stored.
type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	Resource       ResourceType
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string
	CreatedAt TimePoint
}

// IsCredit reports whether the transaction increased the balance.
func (t Transaction) IsCredit() bool { return t.Delta.IsPositive() }
