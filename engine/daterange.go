package engine

import "time"

// =============================================================================
// DAY - Calendar day in UTC (all engine date math is day-granular)
// =============================================================================

type Day struct {
	Time time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates an instant to its UTC calendar day.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return NewDay(u.Year(), u.Month(), u.Day())
}

func Today() Day {
	return DayOf(time.Now())
}

// ParseDay parses "YYYY-MM-DD".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, err
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.Time.Before(other.Time) }
func (d Day) Equal(other Day) bool         { return d.Time.Equal(other.Time) }
func (d Day) After(other Day) bool         { return d.Time.After(other.Time) }
func (d Day) BeforeOrEqual(other Day) bool { return d.Before(other) || d.Equal(other) }
func (d Day) AfterOrEqual(other Day) bool  { return d.After(other) || d.Equal(other) }

// Arithmetic and properties
func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }
func (d Day) IsZero() bool      { return d.Time.IsZero() }
func (d Day) String() string    { return d.Time.Format("2006-01-02") }

// DaysBetween returns the signed number of days from one day to another.
func DaysBetween(from, to Day) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

// =============================================================================
// DATE RANGE - Inclusive [Start, End] day range
// =============================================================================

type DateRange struct {
	Start Day
	End   Day
}

func NewDateRange(start, end Day) DateRange {
	return DateRange{Start: start, End: end}
}

// Valid reports whether the range is well-formed (end not before start).
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.BeforeOrEqual(r.End)
}

// Contains returns true if the day falls within [Start, End].
func (r DateRange) Contains(d Day) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// ContainsRange returns true if other lies entirely within this range.
func (r DateRange) ContainsRange(other DateRange) bool {
	return other.Start.AfterOrEqual(r.Start) && other.End.BeforeOrEqual(r.End)
}

// Overlaps reports whether the two ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && r.End.AfterOrEqual(other.Start)
}

// DayCount returns the number of days in the range, inclusive.
func (r DateRange) DayCount() int {
	if !r.Valid() {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

// Days returns every day in the range in order.
func (r DateRange) Days() []Day {
	var days []Day
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// OverlapDays returns the number of days shared with other, clamped to >= 0.
func (r DateRange) OverlapDays(other DateRange) int {
	start := r.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := r.End
	if other.End.Before(end) {
		end = other.End
	}
	n := DaysBetween(start, end) + 1
	if n < 0 {
		return 0
	}
	return n
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
