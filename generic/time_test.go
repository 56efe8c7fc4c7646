package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/leave-engine/generic"
)

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

// =============================================================================
// BUSINESS DAY COUNTING
// =============================================================================

func TestBusinessDays(t *testing.T) {
	tests := []struct {
		name     string
		from, to generic.TimePoint
		want     int
	}{
		{"monday to friday", date(2025, time.January, 6), date(2025, time.January, 10), 5},
		{"weekend only", date(2025, time.January, 11), date(2025, time.January, 12), 0},
		{"single weekday", date(2025, time.January, 8), date(2025, time.January, 8), 1},
		{"two full weeks", date(2025, time.January, 6), date(2025, time.January, 19), 10},
		{"whole january 2025", date(2025, time.January, 1), date(2025, time.January, 31), 23},
		{"friday to monday", date(2025, time.January, 10), date(2025, time.January, 13), 2},
		{"end before start", date(2025, time.January, 10), date(2025, time.January, 6), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.BusinessDays(tt.from, tt.to))
		})
	}
}

func TestBusinessDays_IgnoresTimeOfDay(t *testing.T) {
	from := generic.Instant(time.Date(2025, time.January, 6, 23, 30, 0, 0, time.UTC))
	to := generic.Instant(time.Date(2025, time.January, 7, 0, 15, 0, 0, time.UTC))

	assert.Equal(t, 2, generic.BusinessDays(from, to))
}

// =============================================================================
// CALENDAR ARITHMETIC
// =============================================================================

func TestAddYears_OneCalendarYear(t *testing.T) {
	assert.Equal(t, "2025-01-15", date(2024, time.January, 15).AddYears(1).String())
}

func TestAddYears_LeapDayRollsToMarchFirst(t *testing.T) {
	assert.Equal(t, "2025-03-01", date(2024, time.February, 29).AddYears(1).String())
}

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name  string
		start generic.TimePoint
		n     int
		want  string
	}{
		{"mid month", date(2025, time.January, 15), 1, "2025-02-15"},
		{"31st into February", date(2025, time.January, 31), 1, "2025-02-28"},
		{"29th into leap February", date(2024, time.January, 29), 1, "2024-02-29"},
		{"31st into leap February", date(2024, time.January, 31), 1, "2024-02-29"},
		{"31st into 30-day month", date(2025, time.March, 31), 1, "2025-04-30"},
		{"across year end", date(2024, time.December, 31), 2, "2025-02-28"},
		{"backwards", date(2025, time.March, 31), -1, "2025-02-28"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.start.AddMonths(tt.n).String())
		})
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 10, generic.DaysBetween(date(2025, time.January, 5), date(2025, time.January, 15)))
	assert.Equal(t, -5, generic.DaysBetween(date(2025, time.January, 20), date(2025, time.January, 15)))
	assert.Equal(t, 365, generic.DaysBetween(date(2025, time.January, 1), date(2026, time.January, 1)))
}

func TestParseDate(t *testing.T) {
	tp, err := generic.ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.True(t, tp.Equal(date(2025, time.March, 10)))

	_, err = generic.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestMonthStamp_OrdersAcrossYears(t *testing.T) {
	dec := date(2024, time.December, 31).MonthStamp()
	jan := date(2025, time.January, 1).MonthStamp()
	assert.Equal(t, dec+1, jan)
}

// =============================================================================
// CLOCK
// =============================================================================

func TestFixedClock_SetAndAdvance(t *testing.T) {
	clock := generic.NewFixedClockOn(2025, time.January, 31)
	assert.Equal(t, "2025-01-31", clock.Today().String())

	clock.Advance(24 * time.Hour)
	assert.Equal(t, "2025-02-01", clock.Today().String())

	clock.Set(time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, 2026, clock.Today().Year())
}

func TestSystemClock_TodayIsUTCDate(t *testing.T) {
	// GIVEN: a host zone far enough east that local and UTC dates often differ
	saved := time.Local
	time.Local = time.FixedZone("UTC+14", 14*60*60)
	t.Cleanup(func() { time.Local = saved })

	// WHEN: reading both halves of the system clock
	var clock generic.SystemClock
	before := clock.Now()
	today := clock.Today()
	after := clock.Now()

	// THEN: Today is the UTC date of Now
	assert.Contains(t, []string{generic.DateOf(before).String(), generic.DateOf(after).String()}, today.String())
	assert.Equal(t, time.UTC, before.Location())
}
