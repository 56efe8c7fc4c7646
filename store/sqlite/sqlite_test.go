package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
	"github.com/govhr/leave-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func employee(id string) leave.Employee {
	return leave.Employee{
		ID:           generic.EntityID(id),
		Name:         "Ana Cruz",
		Department:   "Finance",
		Gender:       leave.GenderFemale,
		Role:         leave.RoleStaff,
		Status:       leave.EmployeeActive,
		ServiceStart: date(2020, time.January, 6),
		CreatedAt:    generic.Instant(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)),
	}
}

func TestStore_EmployeeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	e := employee("emp-1")
	e.SoloParent = true
	e.LastAccrualAt = date(2024, time.March, 1)
	e.NextExpiry = map[leave.Category]generic.TimePoint{leave.CTO: date(2025, time.March, 1)}
	require.NoError(t, s.SaveEmployee(ctx, e))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Cruz", got.Name)
	assert.True(t, got.SoloParent)
	assert.Equal(t, "2020-01-06", got.ServiceStart.String())
	assert.Equal(t, "2024-03-01", got.LastAccrualAt.String())
	assert.Equal(t, "2025-03-01", got.NextExpiry[leave.CTO].String())
	assert.True(t, got.CreatedAt.Time.Equal(e.CreatedAt.Time))

	_, err = s.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)

	inactive := employee("emp-2")
	inactive.Status = leave.EmployeeInactive
	require.NoError(t, s.SaveEmployee(ctx, inactive))

	active, err := s.ListEmployees(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := s.ListEmployees(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	tx := generic.Transaction{
		ID: "tx-1", EntityID: "emp-1", Resource: leave.Vacation, EffectiveAt: date(2024, time.March, 1),
		Delta: generic.Days(1.25), Type: generic.TxAccrual, IdempotencyKey: "accrual-emp-1-2024-03-vacation",
	}
	require.NoError(t, s.Append(ctx, tx))

	tx.ID = "tx-2"
	assert.ErrorIs(t, s.Append(ctx, tx), generic.ErrDuplicateIdempotencyKey)

	exists, err := s.Exists(ctx, tx.IdempotencyKey)
	require.NoError(t, err)
	assert.True(t, exists)

	txs, err := s.Load(ctx, "emp-1", leave.Vacation)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "1.250", txs[0].Delta.String())
	assert.Equal(t, leave.Vacation.ResourceID(), txs[0].Resource.ResourceID())
}

func TestStore_WithTxRollsBack(t *testing.T) {
	// GIVEN: a transaction that saves an employee and a credit, then fails
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx leave.Store) error {
		require.NoError(t, tx.SaveEmployee(ctx, employee("emp-1")))
		require.NoError(t, tx.Append(ctx, generic.Transaction{
			ID: "tx-1", EntityID: "emp-1", Resource: leave.Vacation, EffectiveAt: date(2024, time.March, 1),
			Delta: generic.Days(5), Type: generic.TxGrant,
		}))
		return boom
	})

	// THEN: nothing was persisted
	assert.ErrorIs(t, err, boom)
	_, err = s.GetEmployee(ctx, "emp-1")
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
	txs, err := s.LoadByEntity(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_AppendBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, generic.Transaction{
		ID: "tx-0", EntityID: "emp-1", Resource: leave.Sick, EffectiveAt: date(2024, time.March, 1),
		Delta: generic.Days(1), Type: generic.TxGrant, IdempotencyKey: "taken",
	}))

	err := s.AppendBatch(ctx, []generic.Transaction{
		{ID: "tx-1", EntityID: "emp-1", Resource: leave.Sick, EffectiveAt: date(2024, time.March, 2),
			Delta: generic.Days(1), Type: generic.TxGrant, IdempotencyKey: "fresh"},
		{ID: "tx-2", EntityID: "emp-1", Resource: leave.Sick, EffectiveAt: date(2024, time.March, 3),
			Delta: generic.Days(1), Type: generic.TxGrant, IdempotencyKey: "taken"},
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	txs, err := s.Load(ctx, "emp-1", leave.Sick)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestStore_RequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveEmployee(ctx, employee("emp-1")))

	decidedAt := generic.Instant(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
	r := leave.LeaveRequest{
		ID:             "req-1",
		EmployeeID:     "emp-1",
		Category:       leave.CTO,
		StartDate:      date(2024, time.March, 4),
		EndDate:        date(2024, time.March, 5),
		DaysRequested:  2,
		Status:         leave.StatusPending,
		Approvals:      leave.NewApprovalState().With(leave.LevelDepartment, leave.LevelDecision{Decision: leave.DecisionRejected, DecidedBy: "head-1", Reason: "busy", DecidedAt: decidedAt}),
		RequiredLevels: leave.RequiredLevels(leave.RoleStaff),
		Deducted:       generic.Days(2),
		Allocations:    []leave.Allocation{{GrantID: "g-1", Amount: generic.Days(1.5)}, {GrantID: "g-2", Amount: generic.Days(0.5)}},
		CreatedAt:      generic.Instant(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		UpdatedAt:      decidedAt,
	}
	require.NoError(t, s.SaveRequest(ctx, r))

	got, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.DecisionRejected, got.Approvals.Department.Decision)
	assert.Equal(t, "busy", got.Approvals.Department.Reason)
	assert.Equal(t, generic.EntityID("head-1"), got.Approvals.Department.DecidedBy)
	assert.True(t, got.Approvals.Department.DecidedAt.Time.Equal(decidedAt.Time))
	assert.Equal(t, leave.DecisionPending, got.Approvals.Admin.Decision)
	assert.Equal(t, r.RequiredLevels, got.RequiredLevels)
	require.Len(t, got.Allocations, 2)
	assert.Equal(t, "1.500", got.Allocations[0].Amount.String())
	assert.Equal(t, "2.000", got.Deducted.String())

	r.Status = leave.StatusCancelled
	r.Refunded = true
	require.NoError(t, s.SaveRequest(ctx, r))

	emp := generic.EntityID("emp-1")
	cancelled := leave.StatusCancelled
	list, err := s.ListRequests(ctx, leave.RequestFilter{EmployeeID: &emp, Status: &cancelled})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Refunded)

	_, err = s.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

func TestStore_OpenGrantsOrderedByExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveEmployee(ctx, employee("emp-1")))

	grant := func(id string, on generic.TimePoint) leave.ExpiryGrant {
		return leave.ExpiryGrant{
			ID: id, EmployeeID: "emp-1", Category: leave.Mandatory,
			Amount: generic.Days(2), UsedAmount: generic.Days(0),
			GrantDate: on, ExpiryDate: leave.ExpiryDateFor(on),
			CreatedAt: generic.Instant(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		}
	}
	require.NoError(t, s.SaveGrant(ctx, grant("late", date(2024, time.June, 1))))
	require.NoError(t, s.SaveGrant(ctx, grant("early", date(2024, time.February, 1))))
	used := grant("used", date(2024, time.January, 1))
	used.Used = true
	require.NoError(t, s.SaveGrant(ctx, used))

	open, err := s.ListOpenGrants(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "early", open[0].ID)
	assert.Equal(t, "late", open[1].ID)

	byCategory, err := s.ListGrants(ctx, "emp-1", leave.Mandatory)
	require.NoError(t, err)
	assert.Equal(t, "used", byCategory[0].ID)

	_, err = s.GetGrant(ctx, "nope")
	assert.ErrorIs(t, err, leave.ErrGrantNotFound)
}

func TestStore_AuditFilter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	ts := generic.Instant(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	for i, action := range []generic.AuditAction{generic.AuditRequestSubmitted, generic.AuditRequestApproved, generic.AuditCreditGranted} {
		require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{
			ID: string(rune('a' + i)), Timestamp: ts, ActorID: "hr-1", Action: action,
			EntityID: "emp-1", Subject: "req-1", Payload: map[string]string{"n": "1"},
		}))
	}

	entries, err := s.QueryAudit(ctx, generic.AuditFilter{
		Actions: []generic.AuditAction{generic.AuditRequestSubmitted, generic.AuditCreditGranted},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].Payload["n"])

	limited, err := s.QueryAudit(ctx, generic.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_AccrualRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	run := leave.AccrualRun{
		ID: "run-1", Period: "2024-03",
		StartedAt:   generic.Instant(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)),
		FinishedAt:  generic.Instant(time.Date(2024, 3, 1, 1, 0, 5, 0, time.UTC)),
		TriggeredBy: "system", Processed: 1, Skipped: 1,
		Details: []leave.AccrualDetail{
			{EmployeeID: "emp-1", Outcome: leave.OutcomeAccrued, Credited: map[leave.Category]generic.Amount{leave.Vacation: generic.Days(1.25)}},
			{EmployeeID: "emp-2", Outcome: leave.OutcomeNotEligible, Message: "less than one month of service"},
		},
	}
	require.NoError(t, s.SaveAccrualRun(ctx, run))

	runs, err := s.ListAccrualRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, "2024-03", got.Period)
	require.Len(t, got.Details, 2)
	assert.Equal(t, "1.250", got.Details[0].Credited[leave.Vacation].String())
	assert.Equal(t, leave.OutcomeNotEligible, got.Details[1].Outcome)
}
