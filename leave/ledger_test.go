package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

func newBalanceLedger(t *testing.T) (*fixture, *leave.BalanceLedger) {
	t.Helper()
	f := newFixture(t, 2024, time.March, 1)
	return f, leave.NewBalanceLedger(f.store, leave.DefaultRegistry(), f.clock)
}

func TestBalanceLedger_CreditRejectsBadInput(t *testing.T) {
	f, ledger := newBalanceLedger(t)
	today := f.clock.Today()

	tests := []struct {
		name     string
		category leave.Category
		amount   generic.Amount
		want     error
	}{
		{"unknown category", "sabbatical", days(1), leave.ErrInvalidCategory},
		{"category without a balance", leave.WithoutPay, days(1), leave.ErrInvalidCategory},
		{"zero amount", leave.Vacation, days(0), generic.ErrNegativeAmount},
		{"negative amount", leave.Vacation, days(-2), generic.ErrNegativeAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Credit(f.ctx, "emp-1", tt.category, tt.amount, today)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	history, err := ledger.History(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestBalanceLedger_DebitNeverClamps(t *testing.T) {
	// GIVEN: 3 vacation days
	f, ledger := newBalanceLedger(t)
	require.NoError(t, ledger.Credit(f.ctx, "emp-1", leave.Vacation, days(3), f.clock.Today()))

	// WHEN: debiting 5
	err := ledger.Debit(f.ctx, "emp-1", leave.Vacation, days(5))

	// THEN: refused with the shortfall, balance untouched
	var ibe *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	assertAmount(t, 3, ibe.Available)
	assertAmount(t, 5, ibe.Requested)

	bal, err := ledger.Balance(f.ctx, "emp-1", leave.Vacation)
	require.NoError(t, err)
	assertAmount(t, 3, bal)

	// Draining to exactly zero is allowed.
	require.NoError(t, ledger.Debit(f.ctx, "emp-1", leave.Vacation, days(3)))
	bal, err = ledger.Balance(f.ctx, "emp-1", leave.Vacation)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "got %s", bal)
}

func TestBalanceLedger_CreditThenDebitRestoresBalance(t *testing.T) {
	// GIVEN: an existing CTO balance of 2
	f, ledger := newBalanceLedger(t)
	today := f.clock.Today()
	require.NoError(t, ledger.Credit(f.ctx, "emp-1", leave.CTO, days(2), today))

	// WHEN: crediting then debiting 8
	require.NoError(t, ledger.Credit(f.ctx, "emp-1", leave.CTO, days(8), today))
	require.NoError(t, ledger.Debit(f.ctx, "emp-1", leave.CTO, days(8)))

	// THEN: back to 2, with all three movements in the history
	bal, err := ledger.Balance(f.ctx, "emp-1", leave.CTO)
	require.NoError(t, err)
	assertAmount(t, 2, bal)

	history, err := ledger.History(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestBalanceLedger_RefundIsUnbounded(t *testing.T) {
	// GIVEN: no sick leave at all
	f, ledger := newBalanceLedger(t)

	// WHEN: refunding twice with nothing ever debited
	require.NoError(t, ledger.Refund(f.ctx, "emp-1", leave.Sick, days(10)))
	require.NoError(t, ledger.Refund(f.ctx, "emp-1", leave.Sick, days(10)))

	// THEN: both land
	bal, err := ledger.Balance(f.ctx, "emp-1", leave.Sick)
	require.NoError(t, err)
	assertAmount(t, 20, bal)

	assert.ErrorIs(t, ledger.Refund(f.ctx, "emp-1", leave.Sick, days(0)), generic.ErrNegativeAmount)
}
