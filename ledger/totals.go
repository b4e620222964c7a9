/*
totals.go - Period totals and balance projection

PURPOSE:
  Read-side helpers over a reconciled ledger: monthly and yearly sums for
  the summary views, and the balance on any calendar day, present or not.

PROJECTION:
  A day without an entry still has a balance: the one PreviousBalance
  carries into it. Asking for a future date therefore answers "what will
  I have on that day given everything recorded so far", including
  materialized recurring transactions.

SEE ALSO:
  - ledger.go: PreviousBalance
  - ../api/handlers.go: Month, year and balance endpoints
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals sums a range of ledger days.
type Totals struct {
	Credit     decimal.Decimal
	Debit      decimal.Decimal
	Incidental decimal.Decimal
	Opening    decimal.Decimal // balance carried into the first day
	Closing    decimal.Decimal // balance at the end of the last day
	Days       int             // present days in range
}

// Net is credit minus debit minus incidental.
func (t Totals) Net() decimal.Decimal {
	return t.Credit.Sub(t.Debit).Sub(t.Incidental)
}

// DayBalance pairs a date with its entry.
type DayBalance struct {
	Date  Date
	Entry Entry
}

// MonthEntries returns the present days of p in order.
func MonthEntries(l *Ledger, p Period) []DayBalance {
	days := l.Days(p.Year, p.Month)
	out := make([]DayBalance, 0, len(days))
	for _, day := range days {
		d := Date{year: p.Year, month: p.Month, day: day}
		e, _ := l.Get(d)
		out = append(out, DayBalance{Date: d, Entry: e})
	}
	return out
}

// MonthTotals sums the month p.
func MonthTotals(l *Ledger, p Period) Totals {
	return sumRange(l, p.First(), p.Last())
}

// YearTotals sums the calendar year.
func YearTotals(l *Ledger, year int) Totals {
	return sumRange(l,
		Date{year: year, month: time.January, day: 1},
		Date{year: year, month: time.December, day: 31})
}

func sumRange(l *Ledger, from, to Date) Totals {
	t := Totals{
		Opening: l.PreviousBalance(from),
		Closing: BalanceAt(l, to),
	}
	for y := from.year; y <= to.year; y++ {
		for _, m := range l.Months(y) {
			for _, day := range l.Days(y, m) {
				d := Date{year: y, month: m, day: day}
				if d.Before(from) || d.After(to) {
					continue
				}
				e, _ := l.Get(d)
				t.Credit = t.Credit.Add(e.Credit)
				t.Debit = t.Debit.Add(e.Debit)
				t.Incidental = t.Incidental.Add(e.Incidental)
				t.Days++
			}
		}
	}
	return t
}

// BalanceAt returns the balance at the end of d.
func BalanceAt(l *Ledger, d Date) decimal.Decimal {
	if e, ok := l.Get(d); ok {
		return e.Balance
	}
	return l.PreviousBalance(d)
}

// Series returns the end-of-day balance for every calendar day in
// [from, to], present or not.
func Series(l *Ledger, from, to Date) []DayBalance {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	var out []DayBalance
	for d := from; !d.After(to); d = d.AddDays(1) {
		e, ok := l.Get(d)
		if !ok {
			e = Entry{Balance: l.PreviousBalance(d)}
		}
		out = append(out, DayBalance{Date: d, Entry: e})
	}
	return out
}
