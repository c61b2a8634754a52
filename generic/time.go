package generic

import (
	"sort"
	"time"
)

// =============================================================================
// TIME POINT - Day-granular time abstraction (leave is counted in days)
// =============================================================================

// TimePoint is a calendar day in UTC. Any time of day is ignored by
// comparisons.
type TimePoint struct {
	Time time.Time
}

const dmyLayout = "02/01/2006"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts ISO (2006-01-02) and French (02/01/2006) layouts.
func ParseDate(s string) (TimePoint, error) {
	for _, layout := range []string{"2006-01-02", dmyLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	_, err := time.Parse("2006-01-02", s)
	return TimePoint{}, err
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint  { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddYears(n int) TimePoint { return tp.AddMonths(12 * n) }

// AddMonths moves by calendar months, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29).
func (tp TimePoint) AddMonths(n int) TimePoint {
	t := tp.normalize()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := EndOfMonth(first.Year(), first.Month()).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return TimePoint{Time: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) IsWeekend() bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (tp TimePoint) String() string { return tp.Time.Format("2006-01-02") }

// DMY formats the day the way user-facing messages print it (25/12/2016).
func (tp TimePoint) DMY() string { return tp.Time.Format(dmyLayout) }

// =============================================================================
// CLOCK - Injected "now"
// =============================================================================

// Clock is the only source of "now" for core logic.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always answers the same instant. Used to freeze time in tests.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the clock's current day.
func Today(c Clock) TimePoint { return DateOf(c.Now()) }

// =============================================================================
// DATE SET - Holiday lookups
// =============================================================================

// DateSet is a set of calendar days.
type DateSet map[string]TimePoint

func NewDateSet(days ...TimePoint) DateSet {
	s := make(DateSet, len(days))
	for _, d := range days {
		s.Add(d)
	}
	return s
}

func (s DateSet) Add(d TimePoint)      { s[d.String()] = DateOf(d.Time) }
func (s DateSet) Has(d TimePoint) bool { _, ok := s[d.String()]; return ok }

// Merge adds every day of other into s.
func (s DateSet) Merge(other DateSet) {
	for k, v := range other {
		s[k] = v
	}
}

// Sorted returns the days in ascending order.
func (s DateSet) Sorted() []TimePoint {
	out := make([]TimePoint, 0, len(s))
	for _, d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysInRange enumerates [from, to] inclusive. Empty when to < from.
func DaysInRange(from, to TimePoint) []TimePoint {
	var days []TimePoint
	for d := DateOf(from.Time); d.BeforeOrEqual(to); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// WorkingDays enumerates [from, to] skipping weekends and holidays.
func WorkingDays(from, to TimePoint, holidays DateSet) []TimePoint {
	var days []TimePoint
	for _, d := range DaysInRange(from, to) {
		if d.IsWeekend() || holidays.Has(d) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// MonthsBetween counts complete calendar months from -> to
// (Sep 13 -> Dec 25 is 3, Jan 31 -> Feb 28 is 0).
func MonthsBetween(from, to TimePoint) int {
	if to.Before(from) {
		return -MonthsBetween(to, from)
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	return months
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }

func EndOfMonth(year int, month time.Month) TimePoint {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return TimePoint{Time: t}
}
