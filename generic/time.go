package generic

import (
	"sync"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date used as ledger and grant key
// =============================================================================

type TimePoint struct {
	Time        time.Time
	Granularity Granularity
}

type Granularity int

const (
	GranularityDay Granularity = iota
	GranularitySecond
)

const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Granularity: GranularityDay}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// Instant keeps the full timestamp, used for created-at audit fields.
func Instant(t time.Time) TimePoint {
	return TimePoint{Time: t.UTC(), Granularity: GranularitySecond}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	if tp.Granularity == GranularityDay {
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
	}
	return tp.Time.UTC()
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n), Granularity: tp.Granularity} }

// AddMonths clamps to the last day of the target month instead of rolling
// over: 2025-01-31 + 1 = 2025-02-28.
func (tp TimePoint) AddMonths(n int) TimePoint {
	t := tp.Time
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := min(t.Day(), first.AddDate(0, 1, -1).Day())
	return TimePoint{Time: first.AddDate(0, 0, day-1), Granularity: tp.Granularity}
}

// AddYears is literal calendar arithmetic: 2024-01-15 + 1 = 2025-01-15.
// Feb 29 normalises to Mar 1 of a non-leap year.
func (tp TimePoint) AddYears(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(n, 0, 0), Granularity: tp.Granularity}
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsWorkday() bool       { return !tp.IsWeekend() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

// Date drops any time-of-day component.
func (tp TimePoint) Date() TimePoint { return DateOf(tp.Time) }

// MonthStamp is year*12+month, used to compare accrual months.
func (tp TimePoint) MonthStamp() int { return tp.Year()*12 + int(tp.Month()) - 1 }

func (tp TimePoint) String() string {
	if tp.Granularity == GranularityDay {
		return tp.Time.Format(DateLayout)
	}
	return tp.Time.Format(time.RFC3339)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns whole calendar days from -> to (negative when to is earlier).
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// BusinessDays counts Monday-Friday dates in [from, to] inclusive.
// Holidays are not excluded. Returns 0 when to is before from.
func BusinessDays(from, to TimePoint) int {
	from, to = from.Date(), to.Date()
	if to.Before(from) {
		return 0
	}
	total := DaysBetween(from, to) + 1
	weeks := total / 7
	count := weeks * 5
	for d := from.AddDays(weeks * 7); d.BeforeOrEqual(to); d = d.AddDays(1) {
		if d.IsWorkday() {
			count++
		}
	}
	return count
}

// =============================================================================
// CLOCK - Injectable "today"
// =============================================================================

// Clock supplies the current date. Accrual eligibility and expiry windows
// depend on it, so tests swap in a FixedClock. Now and Today are both UTC,
// so a transaction's EffectiveAt and CreatedAt fall on the same date.
type Clock interface {
	Now() time.Time
	Today() TimePoint
}

type SystemClock struct{}

func (SystemClock) Now() time.Time   { return time.Now().UTC() }
func (SystemClock) Today() TimePoint { return DateOf(time.Now().UTC()) }

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{now: t.UTC()} }

// NewFixedClockOn pins the clock to noon UTC of the given date.
func NewFixedClockOn(year int, month time.Month, day int) *FixedClock {
	return NewFixedClock(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FixedClock) Today() TimePoint { return DateOf(c.Now()) }

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
