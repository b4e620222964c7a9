/*
cascade.go - Cascading balance recalculation

PURPOSE:
  Restores the balance invariant from a given day onward. A change on one
  day shifts every later balance, so the recalculation walks forward from
  that day through the last present entry and then carries the closing
  December balance into the next year.

ALGORITHM:
  1. Deep-copy the input; the caller's ledger is never touched
  2. For each year from from.Year() ascending:
       months from from.Month() in the first year, January after
       days from from.Day() in the first month, day 1 after
       absent days are skipped
       Balance = PreviousBalance(day) + Net(day)
  3. At every December to January transition: when the next year is
     absent and the December carry is non-zero, seed its January 1. Past
     the last populated year this repeats while the carry stays non-zero
  4. Seeding stops at Horizon years past the last populated year. Hitting
     the cap with a non-zero carry is a RecalculationOverflow: logged,
     flagged on the result, and the partial ledger is returned

IDEMPOTENCY:
  Recalculate(Recalculate(l, d), d) deep-equals Recalculate(l, d). A
  seeded January 1 has no December after it, so the carry stops there.

SEE ALSO:
  - ledger.go: PreviousBalance defines the carry rules
  - reconcile.go: Chooses the starting day
*/
package ledger

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultHorizon is how many years past the last populated year the
// recalculator may create.
const DefaultHorizon = 10

// Recalculator walks the ledger forward restoring balances.
type Recalculator struct {
	// Horizon caps year-end propagation past the last populated year. Zero
	// forbids creating new years.
	Horizon int
	Logger  zerolog.Logger
}

// RecalcResult describes one recalculation pass.
type RecalcResult struct {
	From        Date
	Through     Date
	DaysUpdated int
	SeededYears []int
	Overflow    bool
}

// NewRecalculator returns a recalculator with DefaultHorizon.
func NewRecalculator(logger zerolog.Logger) *Recalculator {
	return &Recalculator{Horizon: DefaultHorizon, Logger: logger}
}

var defaultRecalculator = NewRecalculator(zerolog.Nop())

// Recalculate runs the default recalculator and drops the report.
func Recalculate(l *Ledger, from Date) *Ledger {
	out, _ := defaultRecalculator.Recalculate(l, from)
	return out
}

// Recalculate returns a copy of l with every balance from `from` onward
// restored. A zero `from` recalculates the whole ledger.
func (r *Recalculator) Recalculate(src *Ledger, from Date) (*Ledger, RecalcResult) {
	l := src.Clone()
	first, ok := l.First()
	if !ok {
		return l, RecalcResult{From: from}
	}
	if from.IsZero() || from.Before(first) {
		from = first
	}
	res := RecalcResult{From: from}

	years := l.Years()
	lastYear := years[len(years)-1]
	limit := lastYear + r.Horizon

	// Years before the walk keep their balances, but a gap after one of
	// them still needs its January 1.
	for year := first.year; year < from.year; year++ {
		r.seedInterior(l, year, &res)
	}

	for year := from.year; ; year++ {
		if l.HasYear(year) {
			r.recalculateYear(l, year, from, &res)
		}
		next := year + 1
		if year < lastYear {
			r.seedInterior(l, year, &res)
			continue
		}

		_, dec, ok := l.LastDay(year, time.December)
		if !ok || dec.Balance.IsZero() {
			break
		}
		if next > limit {
			res.Overflow = true
			r.Logger.Warn().
				Int("year", year).
				Int("horizon", r.Horizon).
				Str("carry", dec.Balance.String()).
				Msg("recalculation overflow: year-end propagation stopped at horizon")
			break
		}
		l.Set(Date{year: next, month: time.January, day: 1}, Entry{})
		res.SeededYears = append(res.SeededYears, next)
	}

	return l, res
}

// seedInterior creates January 1 of year+1 when that year is absent and
// December of year closes with a non-zero carry.
func (r *Recalculator) seedInterior(l *Ledger, year int, res *RecalcResult) {
	next := year + 1
	if l.HasYear(next) {
		return
	}
	_, dec, ok := l.LastDay(year, time.December)
	if !ok || dec.Balance.IsZero() {
		return
	}
	l.Set(Date{year: next, month: time.January, day: 1}, Entry{Balance: dec.Balance})
	res.SeededYears = append(res.SeededYears, next)
}

func (r *Recalculator) recalculateYear(l *Ledger, year int, from Date, res *RecalcResult) {
	for _, month := range l.Months(year) {
		if year == from.year && month < from.month {
			continue
		}
		for _, day := range l.Days(year, month) {
			if year == from.year && month == from.month && day < from.day {
				continue
			}
			d := Date{year: year, month: month, day: day}
			e, _ := l.Get(d)
			e.Balance = l.PreviousBalance(d).Add(e.Net())
			l.Set(d, e)
			res.DaysUpdated++
			res.Through = d
		}
	}
}
