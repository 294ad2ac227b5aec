package core

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date pinned to 00:00 UTC. It never carries a time-of-day.
type Date struct {
	time.Time
}

// Clock supplies "now". Every due-date computation reads time through a Clock
// so that tests can pin the calendar.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Today returns the clock's current day.
func Today(c Clock) Date {
	if c == nil {
		c = SystemClock{}
	}
	return DateOf(c.Now())
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day. The calendar fields of t are kept as-is,
// only the clock part is dropped.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp (truncated to the day).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, ErrInvalidDate
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }

// EndOfDay is the last representable millisecond of the day, 23:59:59.999.
func (d Date) EndOfDay() time.Time {
	return d.Time.Add(24*time.Hour - time.Millisecond)
}

// AddDays moves the date by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths moves the date by n calendar months. When the day of month does not
// exist in the target month it is clamped to that month's last day, so Jan 31 + 1
// month is Feb 28 (or 29), never Mar 2/3.
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(first.Year(), int(first.Month())); day > last {
		day = last
	}
	return Date{Time: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

// AddYears moves the date by n years with the same clamping as AddMonths
// (Feb 29 + 1 year is Feb 28).
func (d Date) AddYears(n int) Date {
	return d.AddMonths(12 * n)
}

// StartOfMonth returns the first day of d's month.
func (d Date) StartOfMonth() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the first and last day of a calendar month (month is 1-12).
func MonthRange(year, month int) DateRange {
	start := NewDate(year, month, 1)
	end := NewDate(year, month, DaysIn(year, month))
	return DateRange{Start: &start, End: &end}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange is an optional [Start, End] window over calendar dates. Start is
// inclusive from 00:00:00 and End is inclusive through 23:59:59.999; either side
// may be nil for an open bound.
type DateRange struct {
	Start *Date
	End   *Date
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Date) bool {
	if r.Start != nil && d.Time.Before(r.Start.Time) {
		return false
	}
	if r.End != nil && d.Time.After(r.End.EndOfDay()) {
		return false
	}
	return true
}

// IsOpen is true when neither bound is set.
func (r DateRange) IsOpen() bool {
	return r.Start == nil && r.End == nil
}

// Key is a stable cache key for the range.
func (r DateRange) Key() string {
	var from, to string
	if r.Start != nil {
		from = r.Start.String()
	}
	if r.End != nil {
		to = r.End.String()
	}
	return from + ".." + to
}

// ParseDateRange builds a range from optional query strings.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if strings.TrimSpace(start) != "" {
		d, err := ParseDate(start)
		if err != nil {
			return DateRange{}, Invalid("startDate", err)
		}
		r.Start = &d
	}
	if strings.TrimSpace(end) != "" {
		d, err := ParseDate(end)
		if err != nil {
			return DateRange{}, Invalid("endDate", err)
		}
		r.End = &d
	}
	return r, nil
}
