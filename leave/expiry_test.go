package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestExpiryDateFor(t *testing.T) {
	assert.Equal(t, "2025-01-15", leave.ExpiryDateFor(date(2024, time.January, 15)).String())
	assert.Equal(t, "2025-03-01", leave.ExpiryDateFor(date(2024, time.February, 29)).String())
	assert.Equal(t, "2025-12-31", leave.ExpiryDateFor(date(2024, time.December, 31)).String())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, leave.SeverityCritical, leave.Classify(1))
	assert.Equal(t, leave.SeverityCritical, leave.Classify(15))
	assert.Equal(t, leave.SeverityWarning, leave.Classify(16))
	assert.Equal(t, leave.SeverityWarning, leave.Classify(45))
	assert.Equal(t, leave.SeverityNone, leave.Classify(46))
}

func TestExpiry_AlertsByTier(t *testing.T) {
	// GIVEN: mandatory grants expiring 2025-01-15 and 2025-02-10
	f := newFixture(t, 2024, time.January, 15)
	f.grant(t, "emp-1", leave.Mandatory, 5, date(2024, time.January, 15))
	f.grant(t, "emp-1", leave.Mandatory, 2, date(2024, time.February, 10))

	// WHEN: checking on 2025-01-05
	f.clock.Set(at(2025, time.January, 5))
	critical, err := f.engine.ExpiryAlerts(f.ctx, leave.CriticalWithinDays)
	require.NoError(t, err)

	// THEN: only the January grant is within 15 days, 10 days out
	require.Len(t, critical, 1)
	a := critical[0]
	assert.Equal(t, 10, a.DaysUntilExpiry)
	assert.Equal(t, leave.SeverityCritical, a.Severity)
	assert.Equal(t, "2025-01-15", a.ExpiryDate.String())
	assertAmount(t, 5, a.Remaining)
	assertAmount(t, 7, a.Balance)
	assert.Equal(t, "Ana Cruz", a.EmployeeName)
	assert.Equal(t, "Mandatory/Forced Leave", a.DisplayName)

	// AND: the default window adds the February grant as a warning
	all, err := f.engine.ExpiryAlerts(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, leave.SeverityCritical, all[0].Severity)
	assert.Equal(t, leave.SeverityWarning, all[1].Severity)
	assert.Equal(t, 36, all[1].DaysUntilExpiry)

	// WHEN: the January grant is past expiry
	f.clock.Set(at(2025, time.January, 20))
	later, err := f.engine.ExpiryAlerts(f.ctx, 15)
	require.NoError(t, err)

	// THEN: it is no longer reported
	assert.Empty(t, later)
}

func TestExpiry_DispatchSendsOneNotificationPerAlert(t *testing.T) {
	f := newFixture(t, 2024, time.January, 15)
	f.grant(t, "emp-1", leave.CTO, 4, date(2024, time.January, 15))
	f.clock.Set(at(2025, time.January, 5))
	f.sent = nil

	n, err := f.engine.DispatchExpiryAlerts(f.ctx, 45)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.sent, 1)
	assert.Equal(t, leave.EventCreditsExpiring, f.sent[0].Event)
	assert.Equal(t, generic.EntityID("emp-1"), f.sent[0].Recipient)
}

func TestExpiry_SweepForfeitsRemaining(t *testing.T) {
	// GIVEN: 5 mandatory days granted 2024-01-15 and 2 granted 2024-02-10
	f := newFixture(t, 2024, time.January, 15)
	f.grant(t, "emp-1", leave.Mandatory, 5, date(2024, time.January, 15))
	f.grant(t, "emp-1", leave.Mandatory, 2, date(2024, time.February, 10))

	// WHEN: sweeping on 2025-01-20
	f.clock.Set(at(2025, time.January, 20))
	result, err := f.engine.SweepExpired(f.ctx)

	// THEN: the first grant is expired and its 5 days forfeited
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	require.Len(t, result.Forfeited, 1)
	assertAmount(t, 5, result.Forfeited[0].Amount)
	assertAmount(t, 2, f.balance(t, "emp-1", leave.Mandatory))

	history, err := f.engine.History(f.ctx, "emp-1")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, generic.TxExpiry, last.Type)
	assert.Equal(t, "expiry-"+result.Forfeited[0].GrantID, last.IdempotencyKey)

	emp, err := f.engine.Employee(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-10", emp.NextExpiry[leave.Mandatory].String())

	// AND: sweeping again is a no-op
	again, err := f.engine.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Expired)
	assertAmount(t, 2, f.balance(t, "emp-1", leave.Mandatory))
}

func TestExpiry_ConsumesOldestGrantFirst(t *testing.T) {
	// GIVEN: grants of 5 (expiring 2025-01-15) and 2 (expiring 2025-02-10)
	f := newFixture(t, 2024, time.January, 15)
	f.grant(t, "emp-1", leave.Mandatory, 5, date(2024, time.January, 15))
	f.grant(t, "emp-1", leave.Mandatory, 2, date(2024, time.February, 10))
	f.clock.Set(at(2024, time.March, 1))

	// WHEN: taking 6 days
	id := f.submit(t, leave.Mandatory, date(2024, time.March, 4), date(2024, time.March, 11))

	// THEN: the older grant is used up first
	req, err := f.engine.Request(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, req.Allocations, 2)
	assertAmount(t, 5, req.Allocations[0].Amount)
	assertAmount(t, 1, req.Allocations[1].Amount)

	grants, err := f.engine.Grants(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, grants[0].Used)
	assertAmount(t, 1, grants[1].Remaining())

	emp, err := f.engine.Employee(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-10", emp.NextExpiry[leave.Mandatory].String())

	// WHEN: cancelling
	_, err = f.engine.CancelRequest(f.ctx, staff, id)
	require.NoError(t, err)

	// THEN: both grants are whole again
	grants, err = f.engine.Grants(f.ctx, "emp-1")
	require.NoError(t, err)
	assertAmount(t, 5, grants[0].Remaining())
	assertAmount(t, 2, grants[1].Remaining())
	assertAmount(t, 7, f.balance(t, "emp-1", leave.Mandatory))

	emp, err = f.engine.Employee(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", emp.NextExpiry[leave.Mandatory].String())
}

func TestExpiry_CTORoundTrip(t *testing.T) {
	f := newFixture(t, 2024, time.March, 1)
	f.grant(t, "emp-1", leave.CTO, 8, date(2024, time.March, 1))
	assertAmount(t, 8, f.balance(t, "emp-1", leave.CTO))

	id := f.submit(t, leave.CTO, date(2024, time.March, 4), date(2024, time.March, 4))
	assertAmount(t, 7, f.balance(t, "emp-1", leave.CTO))

	_, err := f.engine.CancelRequest(f.ctx, staff, id)
	require.NoError(t, err)
	assertAmount(t, 8, f.balance(t, "emp-1", leave.CTO))

	grants, err := f.engine.Grants(f.ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].UsedAmount.IsZero())
	assert.Equal(t, "2025-03-01", grants[0].ExpiryDate.String())
}

func TestExpiry_NextExpiryIsSoonestOpenGrant(t *testing.T) {
	// GIVEN: a grant dated June
	f := newFixture(t, 2024, time.June, 3)
	f.grant(t, "emp-1", leave.Mandatory, 1, date(2024, time.June, 3))

	// WHEN: a backdated February grant is recorded afterwards, then an August one
	f.grant(t, "emp-1", leave.Mandatory, 1, date(2024, time.February, 1))
	f.grant(t, "emp-1", leave.Mandatory, 1, date(2024, time.August, 1))

	// THEN: the employee shows the February grant's expiry, not the latest recorded
	emp, err := f.engine.Employee(f.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", emp.NextExpiry[leave.Mandatory].String())

	lines, err := f.engine.Balances(f.ctx, "emp-1")
	require.NoError(t, err)
	for _, l := range lines {
		if l.Category == leave.Mandatory {
			assert.Equal(t, "2025-02-01", l.NextExpiry.String())
			assertAmount(t, 3, l.Balance)
		}
	}
}

func TestExpiry_RefundOntoExpiredGrantIsForfeited(t *testing.T) {
	// GIVEN: 3 CTO days expiring 2025-01-15, one of them taken by a pending request
	f := newFixture(t, 2025, time.January, 10)
	f.grant(t, "emp-1", leave.CTO, 3, date(2024, time.January, 15))
	id := f.submit(t, leave.CTO, date(2025, time.January, 13), date(2025, time.January, 13))
	assertAmount(t, 2, f.balance(t, "emp-1", leave.CTO))

	// AND: the grant expires and the sweep forfeits the unused 2
	f.clock.Set(at(2025, time.January, 16))
	_, err := f.engine.SweepExpired(f.ctx)
	require.NoError(t, err)
	assertAmount(t, 0, f.balance(t, "emp-1", leave.CTO))

	// WHEN: the request is cancelled
	req, err := f.engine.CancelRequest(f.ctx, staff, id)

	// THEN: the refunded day lapses with its grant
	require.NoError(t, err)
	assert.True(t, req.Refunded)
	assertAmount(t, 0, f.balance(t, "emp-1", leave.CTO))

	history, err := f.engine.History(f.ctx, "emp-1")
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, tx := range history {
		keys[tx.IdempotencyKey] = true
	}
	assert.True(t, keys["refund-"+id])
	assert.True(t, keys["refund-lapse-"+id])
}

func TestExpiry_ConsumeSkipsGrantsPastExpiry(t *testing.T) {
	// GIVEN: an unswept CTO grant already past its expiry date
	f := newFixture(t, 2024, time.January, 15)
	f.grant(t, "emp-1", leave.CTO, 2, date(2024, time.January, 15))
	f.clock.Set(at(2025, time.January, 20))

	// WHEN: trying to use it
	_, err := f.engine.SubmitRequest(f.ctx, staff, leave.SubmitInput{EmployeeID: "emp-1", Category: "cto",
		StartDate: date(2025, time.January, 20), EndDate: date(2025, time.January, 20)})

	// THEN: the ledger balance is there but no grant can back it
	assert.ErrorIs(t, err, leave.ErrInsufficientGrantedCredits)
	assertAmount(t, 2, f.balance(t, "emp-1", leave.CTO))
}
