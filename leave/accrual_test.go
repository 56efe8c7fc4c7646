package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

func outcomes(run leave.AccrualRun) map[generic.EntityID]leave.AccrualOutcome {
	out := map[generic.EntityID]leave.AccrualOutcome{}
	for _, d := range run.Details {
		out[d.EmployeeID] = d.Outcome
	}
	return out
}

func TestAccrual_OncePerMonth(t *testing.T) {
	// GIVEN: emp-1 has years of service, everyone else was created today
	f := newFixture(t, 2024, time.March, 1)

	// WHEN: running the accrual
	run, err := f.engine.RunMonthlyAccrual(f.ctx, admin)

	// THEN: only emp-1 accrues 1.25 vacation and 1.25 sick
	require.NoError(t, err)
	assert.Equal(t, "2024-03", run.Period)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 3, run.Skipped)
	assert.Equal(t, leave.OutcomeAccrued, outcomes(run)["emp-1"])
	assert.Equal(t, leave.OutcomeNotEligible, outcomes(run)["hr-1"])
	assertAmount(t, 1.25, f.balance(t, "emp-1", leave.Vacation))
	assertAmount(t, 1.25, f.balance(t, "emp-1", leave.Sick))

	// WHEN: running again in the same month
	run, err = f.engine.RunMonthlyAccrual(f.ctx, admin)

	// THEN: nothing changes
	require.NoError(t, err)
	assert.Equal(t, 0, run.Processed)
	assert.Equal(t, leave.OutcomeAlreadyAccrued, outcomes(run)["emp-1"])
	assertAmount(t, 1.25, f.balance(t, "emp-1", leave.Vacation))

	// WHEN: the next month arrives
	f.clock.Set(time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC))
	run, err = f.engine.RunMonthlyAccrual(f.ctx, admin)

	// THEN: everyone with a month of service accrues
	require.NoError(t, err)
	assert.Equal(t, 4, run.Processed)
	assertAmount(t, 2.5, f.balance(t, "emp-1", leave.Vacation))
	assertAmount(t, 1.25, f.balance(t, "hr-1", leave.Sick))

	runs, err := f.engine.AccrualRuns(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "2024-04", runs[0].Period)
	assert.Len(t, runs[0].Details, 4)
	assertAmount(t, 1.25, runs[0].Details[0].Credited[leave.Vacation])

	emp, err := f.engine.Employee(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", emp.LastAccrualAt.String())
}

func TestAccrual_TwelveMonthsMakeFifteenDays(t *testing.T) {
	f := newFixture(t, 2024, time.February, 1)
	for m := 0; m < 12; m++ {
		f.clock.Set(time.Date(2024, time.February+time.Month(m), 1, 12, 0, 0, 0, time.UTC))
		_, err := f.engine.RunMonthlyAccrual(f.ctx, admin)
		require.NoError(t, err)
	}
	assert.Equal(t, "15.000", f.balance(t, "emp-1", leave.Vacation).String())
	assert.Equal(t, "15.000", f.balance(t, "emp-1", leave.Sick).String())
}

func TestAccrual_DuplicateKeyIsolatesEmployee(t *testing.T) {
	// GIVEN: a concurrent run already wrote emp-1's March vacation accrual
	f := newFixture(t, 2024, time.March, 1)
	f.clock.Set(time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC))
	err := f.store.Append(f.ctx, generic.Transaction{
		ID:             "concurrent-1",
		EntityID:       "emp-1",
		Resource:       leave.Vacation,
		EffectiveAt:    date(2024, time.April, 1),
		Delta:          days(1.25),
		Type:           generic.TxAccrual,
		IdempotencyKey: "accrual-emp-1-2024-04-vacation",
	})
	require.NoError(t, err)

	// WHEN: this run reaches emp-1
	run, err := f.engine.RunMonthlyAccrual(f.ctx, admin)

	// THEN: emp-1's transaction rolls back whole, the others still accrue
	require.NoError(t, err)
	assert.Equal(t, leave.OutcomeAlreadyAccrued, outcomes(run)["emp-1"])
	assert.Equal(t, leave.OutcomeAccrued, outcomes(run)["hr-1"])
	assertAmount(t, 1.25, f.balance(t, "emp-1", leave.Vacation))
	assertAmount(t, 0, f.balance(t, "emp-1", leave.Sick))
	assertAmount(t, 1.25, f.balance(t, "hr-1", leave.Sick))
}

func TestAccrual_JanuaryResetsAnnualCategories(t *testing.T) {
	// GIVEN: emp-1 holds 1 SLP day from last year, emp-2 is a solo parent
	f := newFixture(t, 2024, time.June, 3)
	f.register(t, leave.Employee{ID: "emp-2", Name: "Ben Santos", Department: "Finance", Gender: leave.GenderMale,
		SoloParent: true, Role: leave.RoleStaff, ServiceStart: date(2019, time.July, 1)})
	f.grant(t, "emp-1", leave.SpecialPrivilege, 1, date(2024, time.June, 3))

	// WHEN: the January run happens
	f.clock.Set(time.Date(2025, time.January, 2, 12, 0, 0, 0, time.UTC))
	run, err := f.engine.RunMonthlyAccrual(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Errors)

	// THEN: SLP is exactly 3 and solo parent leave exactly 7 where eligible
	assertAmount(t, 3, f.balance(t, "emp-1", leave.SpecialPrivilege))
	assertAmount(t, 3, f.balance(t, "emp-2", leave.SpecialPrivilege))
	assertAmount(t, 7, f.balance(t, "emp-2", leave.SoloParent))
	assertAmount(t, 0, f.balance(t, "emp-1", leave.SoloParent))

	// AND: last year's SLP grant is voided and a fresh one expires next January
	grants, err := f.engine.Grants(f.ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.True(t, grants[0].Voided)
	assert.Equal(t, "2026-01-02", grants[1].ExpiryDate.String())
	assertAmount(t, 3, grants[1].Amount)

	emp, err := f.engine.Employee(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", emp.NextExpiry[leave.SpecialPrivilege].String())
	assert.Equal(t, "2025-01-02", emp.LastAccrualAt.String())
}

func TestAccrualEligibility(t *testing.T) {
	today := date(2024, time.March, 15)
	base := leave.Employee{ID: "e", Status: leave.EmployeeActive, ServiceStart: date(2024, time.January, 10)}

	state, _ := leave.AccrualEligibility(base, today)
	assert.Equal(t, leave.StateEligible, state)

	newHire := base
	newHire.ServiceStart = date(2024, time.March, 1)
	state, _ = leave.AccrualEligibility(newHire, today)
	assert.Equal(t, leave.StateNotEligible, state)

	inactive := base
	inactive.Status = leave.EmployeeInactive
	state, _ = leave.AccrualEligibility(inactive, today)
	assert.Equal(t, leave.StateNotEligible, state)

	accrued := base
	accrued.LastAccrualAt = date(2024, time.March, 1)
	state, _ = leave.AccrualEligibility(accrued, today)
	assert.Equal(t, leave.StateAlreadyAccrued, state)

	accrued.LastAccrualAt = date(2024, time.February, 1)
	state, _ = leave.AccrualEligibility(accrued, today)
	assert.Equal(t, leave.StateEligible, state)
}

func TestAccrualEligibility_MonthEndStarts(t *testing.T) {
	tests := []struct {
		name  string
		start generic.TimePoint
		today generic.TimePoint
		want  leave.AccrualState
	}{
		{"Jan 31 start on Mar 1 run", date(2025, time.January, 31), date(2025, time.March, 1), leave.StateEligible},
		{"Jan 31 start on Feb 28", date(2025, time.January, 31), date(2025, time.February, 28), leave.StateEligible},
		{"Jan 31 start on Feb 27", date(2025, time.January, 31), date(2025, time.February, 27), leave.StateNotEligible},
		{"leap Jan 29 start on Feb 29", date(2024, time.January, 29), date(2024, time.February, 29), leave.StateEligible},
		{"leap Jan 29 start on Feb 28", date(2024, time.January, 29), date(2024, time.February, 28), leave.StateNotEligible},
		{"Mar 31 start on May 1 run", date(2025, time.March, 31), date(2025, time.May, 1), leave.StateEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := leave.Employee{ID: "e", Status: leave.EmployeeActive, ServiceStart: tt.start}
			state, reason := leave.AccrualEligibility(e, tt.today)
			assert.Equal(t, tt.want, state, reason)
		})
	}
}
