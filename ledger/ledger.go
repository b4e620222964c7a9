/*
ledger.go - Sparse per-day ledger table

PURPOSE:
  The derived view the UI reads: for each touched day, the credit, debit
  and incidental totals plus the running balance at the end of that day.
  Organized year -> month -> day like the persisted document.

KEY CONCEPTS:
  - Entry:  the four figures of one day
  - Sparse: only days with transactions (or a seeded January 1) exist.
    Absent days are skipped, never zero-filled.
  - Cache:  the table is a pure function of the transaction log and can
    be rebuilt at any time with Reconcile.

INVARIANT:
  For every present day d:
    Balance(d) = Balance(previousDay(d)) + Credit - Debit - Incidental
  where previousDay is resolved by PreviousBalance.

SEE ALSO:
  - cascade.go: Maintains the invariant
  - ../factory/ledger.go: Wire form with 0-based month keys
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY
// =============================================================================

// Entry holds one day's aggregates and closing balance.
type Entry struct {
	Credit     decimal.Decimal
	Debit      decimal.Decimal
	Incidental decimal.Decimal
	Balance    decimal.Decimal
}

// Net is the day's contribution to the running balance.
func (e Entry) Net() decimal.Decimal {
	return e.Credit.Sub(e.Debit).Sub(e.Incidental)
}

// Add folds amount into the aggregate for kind.
func (e Entry) Add(kind Kind, amount decimal.Decimal) Entry {
	switch kind {
	case KindCredit:
		e.Credit = e.Credit.Add(amount)
	case KindDebit:
		e.Debit = e.Debit.Add(amount)
	case KindIncidental:
		e.Incidental = e.Incidental.Add(amount)
	}
	return e
}

// Aggregate returns the total recorded for kind.
func (e Entry) Aggregate(kind Kind) decimal.Decimal {
	switch kind {
	case KindCredit:
		return e.Credit
	case KindDebit:
		return e.Debit
	case KindIncidental:
		return e.Incidental
	}
	return decimal.Zero
}

// IsEmpty reports whether the entry carries no aggregates.
func (e Entry) IsEmpty() bool {
	return e.Credit.IsZero() && e.Debit.IsZero() && e.Incidental.IsZero()
}

// Equal compares numerically, so 1.5 equals 1.50.
func (e Entry) Equal(o Entry) bool {
	return e.Credit.Equal(o.Credit) &&
		e.Debit.Equal(o.Debit) &&
		e.Incidental.Equal(o.Incidental) &&
		e.Balance.Equal(o.Balance)
}

// =============================================================================
// LEDGER
// =============================================================================

type monthBook map[int]Entry
type yearBook map[time.Month]monthBook

// Ledger is the sparse year -> month -> day table. The zero value is not
// usable; call New.
type Ledger struct {
	years map[int]yearBook
}

func New() *Ledger {
	return &Ledger{years: make(map[int]yearBook)}
}

// Get returns the entry for d.
func (l *Ledger) Get(d Date) (Entry, bool) {
	e, ok := l.years[d.year][d.month][d.day]
	return e, ok
}

// Set stores the entry for d, creating the year and month as needed.
func (l *Ledger) Set(d Date, e Entry) {
	yb, ok := l.years[d.year]
	if !ok {
		yb = make(yearBook)
		l.years[d.year] = yb
	}
	mb, ok := yb[d.month]
	if !ok {
		mb = make(monthBook)
		yb[d.month] = mb
	}
	mb[d.day] = e
}

// Delete removes the entry for d and prunes empty months and years.
func (l *Ledger) Delete(d Date) {
	yb, ok := l.years[d.year]
	if !ok {
		return
	}
	mb, ok := yb[d.month]
	if !ok {
		return
	}
	delete(mb, d.day)
	if len(mb) == 0 {
		delete(yb, d.month)
	}
	if len(yb) == 0 {
		delete(l.years, d.year)
	}
}

// HasYear reports whether any entry exists in year.
func (l *Ledger) HasYear(year int) bool {
	return len(l.years[year]) > 0
}

// Years returns populated years in ascending order.
func (l *Ledger) Years() []int {
	out := make([]int, 0, len(l.years))
	for y := range l.years {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// Months returns populated months of year in ascending order.
func (l *Ledger) Months(year int) []time.Month {
	yb := l.years[year]
	out := make([]time.Month, 0, len(yb))
	for m := range yb {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Days returns present days of the month in ascending order.
func (l *Ledger) Days(year int, month time.Month) []int {
	mb := l.years[year][month]
	out := make([]int, 0, len(mb))
	for d := range mb {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// LastDay returns the last present day of the month.
func (l *Ledger) LastDay(year int, month time.Month) (Date, Entry, bool) {
	mb := l.years[year][month]
	last := 0
	for d := range mb {
		if d > last {
			last = d
		}
	}
	if last == 0 {
		return Date{}, Entry{}, false
	}
	return Date{year: year, month: month, day: last}, mb[last], true
}

// Len returns the number of present days.
func (l *Ledger) Len() int {
	n := 0
	for _, yb := range l.years {
		for _, mb := range yb {
			n += len(mb)
		}
	}
	return n
}

func (l *Ledger) IsEmpty() bool { return len(l.years) == 0 }

// First returns the earliest present day.
func (l *Ledger) First() (Date, bool) {
	years := l.Years()
	if len(years) == 0 {
		return Date{}, false
	}
	y := years[0]
	m := l.Months(y)[0]
	return Date{year: y, month: m, day: l.Days(y, m)[0]}, true
}

// Last returns the latest present day.
func (l *Ledger) Last() (Date, bool) {
	years := l.Years()
	if len(years) == 0 {
		return Date{}, false
	}
	y := years[len(years)-1]
	months := l.Months(y)
	d, _, ok := l.LastDay(y, months[len(months)-1])
	return d, ok
}

// Range calls fn for each present day in chronological order until fn
// returns false.
func (l *Ledger) Range(fn func(Date, Entry) bool) {
	for _, y := range l.Years() {
		for _, m := range l.Months(y) {
			for _, d := range l.Days(y, m) {
				if !fn(Date{year: y, month: m, day: d}, l.years[y][m][d]) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy. Decimal values are immutable, so copying the
// Entry structs is enough.
func (l *Ledger) Clone() *Ledger {
	out := New()
	for y, yb := range l.years {
		nyb := make(yearBook, len(yb))
		for m, mb := range yb {
			nmb := make(monthBook, len(mb))
			for d, e := range mb {
				nmb[d] = e
			}
			nyb[m] = nmb
		}
		out.years[y] = nyb
	}
	return out
}

// Equal reports whether both ledgers hold the same days with numerically
// equal figures.
func (l *Ledger) Equal(o *Ledger) bool {
	if l.Len() != o.Len() {
		return false
	}
	equal := true
	l.Range(func(d Date, e Entry) bool {
		oe, ok := o.Get(d)
		if !ok || !e.Equal(oe) {
			equal = false
		}
		return equal
	})
	return equal
}

// =============================================================================
// PREVIOUS DAY RESOLUTION
// =============================================================================

// PreviousBalance returns the balance carried into d:
//   - the nearest present earlier day of the same month, else
//   - the last present day of the closest earlier populated month of the
//     same year, else
//   - the last present day of December of the prior year, else
//   - zero. A prior year without December entries carries nothing.
//
// d itself need not be present.
func (l *Ledger) PreviousBalance(d Date) decimal.Decimal {
	if prev, ok := l.previousDay(d); ok {
		e, _ := l.Get(prev)
		return e.Balance
	}
	return decimal.Zero
}

func (l *Ledger) previousDay(d Date) (Date, bool) {
	best := 0
	for day := range l.years[d.year][d.month] {
		if day < d.day && day > best {
			best = day
		}
	}
	if best > 0 {
		return Date{year: d.year, month: d.month, day: best}, true
	}

	for m := d.month - 1; m >= time.January; m-- {
		if prev, _, ok := l.LastDay(d.year, m); ok {
			return prev, true
		}
	}
	prev, _, ok := l.LastDay(d.year-1, time.December)
	return prev, ok
}
