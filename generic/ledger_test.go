package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	credits = generic.StringResource{ID: "credits", Domain: "test"}
	other   = generic.StringResource{ID: "other", Domain: "test"}
)

func days(n float64) generic.Amount {
	return generic.Days(n)
}

func tx(id string, r generic.ResourceType, at generic.TimePoint, delta float64, typ generic.TransactionType) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		EntityID:       "emp-1",
		Resource:       r,
		EffectiveAt:    at,
		Delta:          days(delta),
		Type:           typ,
		IdempotencyKey: id,
	}
}

// =============================================================================
// APPEND-ONLY LEDGER
// =============================================================================

func TestLedger_BalanceIsSumOfHistory(t *testing.T) {
	// GIVEN: twelve monthly accruals of 1.25 days
	// WHEN: summing the history
	// THEN: the balance is exactly 15, no float drift
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	for m := 1; m <= 12; m++ {
		at := date(2025, time.Month(m), 1)
		require.NoError(t, ledger.Append(ctx, tx("acc-"+at.String(), credits, at, 1.25, generic.TxAccrual)))
	}

	bal, err := ledger.Balance(ctx, "emp-1", credits)
	require.NoError(t, err)
	assert.True(t, bal.Equal(days(15)), "got %s", bal)
	assert.Equal(t, "15.000", bal.String())
}

func TestLedger_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	// GIVEN: a transaction with key "grant-2025"
	// WHEN: appending the same key again
	// THEN: ErrDuplicateIdempotencyKey and the balance counts it once
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	grant := tx("grant-2025", credits, date(2025, time.January, 1), 5, generic.TxGrant)

	require.NoError(t, ledger.Append(ctx, grant))
	err := ledger.Append(ctx, grant)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	bal, err := ledger.Balance(ctx, "emp-1", credits)
	require.NoError(t, err)
	assert.True(t, bal.Equal(days(5)))
}

func TestLedger_AppendBatch_DuplicateWithinBatch_WritesNothing(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	at := date(2025, time.February, 3)

	err := ledger.AppendBatch(ctx, []generic.Transaction{
		tx("k1", credits, at, 1, generic.TxGrant),
		tx("k1", credits, at, 1, generic.TxGrant),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	txs, err := ledger.Transactions(ctx, "emp-1", credits)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_BalanceAt_StopsAtDate(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	require.NoError(t, ledger.Append(ctx, tx("a", credits, date(2025, time.January, 1), 10, generic.TxGrant)))
	require.NoError(t, ledger.Append(ctx, tx("b", credits, date(2025, time.March, 1), -4, generic.TxDeduction)))
	require.NoError(t, ledger.Append(ctx, tx("c", credits, date(2025, time.February, 1), 2, generic.TxAccrual)))

	bal, err := ledger.BalanceAt(ctx, "emp-1", credits, date(2025, time.February, 15))
	require.NoError(t, err)
	assert.True(t, bal.Equal(days(12)), "got %s", bal)
}

func TestLedger_ResourcesAreIndependent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ledger := generic.NewLedger(mem)

	require.NoError(t, ledger.Append(ctx, tx("a", credits, date(2025, time.January, 1), 3, generic.TxGrant)))
	require.NoError(t, ledger.Append(ctx, tx("b", other, date(2025, time.January, 2), 7, generic.TxGrant)))

	bal, err := ledger.Balance(ctx, "emp-1", other)
	require.NoError(t, err)
	assert.True(t, bal.Equal(days(7)))

	all, err := mem.LoadByEntity(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: a committed grant
	// WHEN: a WithTx block appends then fails
	// THEN: the failed block's writes are gone
	ctx := context.Background()
	mem := store.NewTxMemory()
	require.NoError(t, mem.Append(ctx, tx("a", credits, date(2025, time.January, 1), 3, generic.TxGrant)))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s generic.Store) error {
		if err := s.Append(ctx, tx("b", credits, date(2025, time.January, 2), -3, generic.TxDeduction)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bal, err := generic.NewLedger(mem).Balance(ctx, "emp-1", credits)
	require.NoError(t, err)
	assert.True(t, bal.Equal(days(3)))

	exists, err := mem.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_AuditQuery(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	emp := generic.EntityID("emp-1")

	require.NoError(t, mem.AppendAudit(ctx, generic.AuditEntry{ID: "1", EntityID: emp, Action: generic.AuditRequestSubmitted}))
	require.NoError(t, mem.AppendAudit(ctx, generic.AuditEntry{ID: "2", EntityID: "emp-2", Action: generic.AuditRequestSubmitted}))
	require.NoError(t, mem.AppendAudit(ctx, generic.AuditEntry{ID: "3", EntityID: emp, Action: generic.AuditRequestCancelled}))

	got, err := mem.QueryAudit(ctx, generic.AuditFilter{EntityID: &emp, Actions: []generic.AuditAction{generic.AuditRequestCancelled}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestInsufficientBalanceError_Unwraps(t *testing.T) {
	err := error(&generic.InsufficientBalanceError{Available: days(3), Requested: days(5)})

	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	assert.True(t, generic.IsClientError(err))
	assert.False(t, generic.IsRetryable(err))

	var ibe *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.True(t, ibe.Shortfall().Equal(days(2)))
}

func TestValidationError_OrNil(t *testing.T) {
	ve := &generic.ValidationError{}
	assert.NoError(t, ve.OrNil())

	ve.Add("end_date", "required")
	err := ve.OrNil()
	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
	assert.Contains(t, err.Error(), "end_date: required")
}
