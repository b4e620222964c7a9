/*
calendar.go - Calendar dates and monthly periods

PURPOSE:
  The ledger is keyed by calendar day, never by instant. Date is a
  validated (year, month, day) triple with no time zone, and Period is a
  calendar month. Everything that walks the ledger (cascade, totals,
  recurring materialization) works in these units.

KEY CONCEPTS:
  - Date:   a valid calendar day; zero value means "no date"
  - Period: a calendar month, the unit of recurring materialization
  - Leap years follow the Gregorian rule (2000 leap, 1900 not)

SEE ALSO:
  - cascade.go: Walks days in chronological order
  - ../recurring/materializer.go: Materializes one Period at a time
*/
package ledger

import (
	"fmt"
	"time"
)

// DateLayout is the wire layout of a Date.
const DateLayout = "2006-01-02"

// =============================================================================
// LEAP YEARS
// =============================================================================

// IsLeapYear reports whether year has a February 29.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the length of month in year.
func DaysInMonth(year int, month time.Month) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// =============================================================================
// DATE
// =============================================================================

// Date is a calendar day. Construct it with NewDate or ParseDate; the zero
// value is reserved for "unset".
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate validates and builds a Date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	if month < time.January || month > time.December {
		return Date{}, &ValidationError{Field: "date", Value: fmt.Sprintf("%04d-%02d-%02d", year, month, day), Err: ErrInvalidDate}
	}
	if day < 1 || day > DaysInMonth(year, month) {
		return Date{}, &ValidationError{Field: "date", Value: fmt.Sprintf("%04d-%02d-%02d", year, month, day), Err: ErrInvalidDate}
	}
	return Date{year: year, month: month, day: day}, nil
}

// MustDate is NewDate for literals known to be valid. It panics otherwise.
func MustDate(year int, month time.Month, day int) Date {
	d, err := NewDate(year, month, day)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Value: s, Err: ErrInvalidDate}
	}
	return Date{year: t.Year(), month: t.Month(), day: t.Day()}, nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

func (d Date) Year() int          { return d.year }
func (d Date) Month() time.Month  { return d.month }
func (d Date) Day() int           { return d.day }
func (d Date) IsZero() bool       { return d == Date{} }
func (d Date) Period() Period     { return Period{Year: d.year, Month: d.month} }
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// AddDays moves the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// MinDate returns the earliest non-zero date, or the zero Date if none.
func MinDate(dates ...Date) Date {
	var out Date
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		if out.IsZero() || d.Before(out) {
			out = d
		}
	}
	return out
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// =============================================================================
// PERIOD - One calendar month
// =============================================================================

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, &ValidationError{Field: "period", Value: s, Err: ErrInvalidDate}
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) IsZero() bool { return p == Period{} }
func (p Period) Days() int    { return DaysInMonth(p.Year, p.Month) }
func (p Period) First() Date  { return Date{year: p.Year, month: p.Month, day: 1} }
func (p Period) Last() Date   { return Date{year: p.Year, month: p.Month, day: p.Days()} }

// Clamp returns the day of this month closest to day without overflowing
// the month, so 31 becomes the 28th, 29th or 30th in shorter months.
func (p Period) Clamp(day int) Date {
	if day < 1 {
		day = 1
	}
	if n := p.Days(); day > n {
		day = n
	}
	return Date{year: p.Year, month: p.Month, day: day}
}

// AddMonths moves the period by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	idx := p.Year*12 + int(p.Month-1) + n
	year, month := idx/12, idx%12
	if month < 0 {
		year--
		month += 12
	}
	return Period{Year: year, Month: time.Month(month + 1)}
}

func (p Period) Next() Period { return p.AddMonths(1) }

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) After(o Period) bool { return o.Before(p) }

func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
