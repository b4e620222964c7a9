/*
Package recurring turns recurring rules into dated transactions.

PURPOSE:
  A rule says "every month on day N, record this credit or debit". The
  materializer expands a rule into one transaction per calendar month,
  going through the deduplicating log so re-runs are harmless.

KEY CONCEPTS IN THIS FILE (rule.go):
  - Rule:   what to record, on which day of the month, from when
  - Policy: when the rule stops
      UntilCancelled   runs until the user cancels it
      FixedCount       runs RemainingCount more times
      MonthlyDuration  runs for RemainingMonths more months
  - LastPeriod: the last month already processed for the rule. It is the
    guard that keeps a month from being counted twice. Months are always
    processed in order, so every month up to LastPeriod is done.

DESIGN PRINCIPLES:
  1. Deactivation is permanent: a rule that reaches zero never restarts
  2. Deleting a rule never deletes what it already materialized
  3. Counters move once per month and only when the insert succeeded

SEE ALSO:
  - materializer.go: Expansion and counter updates
  - registry.go: Thread-safe rule storage
  - ../factory/recurring.go: Wire form
*/
package recurring

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-diary/ledger"
)

// Tag prefixes the description of every materialized transaction.
const Tag = "🔄 "

// IsRecurring reports whether a description came from a rule.
func IsRecurring(description string) bool {
	return strings.HasPrefix(description, Tag)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidRule is returned for rules that fail validation.
	ErrInvalidRule = errors.New("invalid recurring rule")

	// ErrRuleNotFound is returned for unknown rule IDs.
	ErrRuleNotFound = errors.New("recurring rule not found")

	// ErrPastPeriod is returned when asked to materialize a month that has
	// already ended. Past months are never filled in retroactively.
	ErrPastPeriod = errors.New("cannot materialize a past period")
)

// =============================================================================
// POLICY
// =============================================================================

// Policy decides when a rule terminates.
type Policy string

const (
	UntilCancelled  Policy = "until-cancelled"
	FixedCount      Policy = "fixed-count"
	MonthlyDuration Policy = "monthly-duration"
)

func (p Policy) Valid() bool {
	switch p {
	case UntilCancelled, FixedCount, MonthlyDuration:
		return true
	}
	return false
}

// =============================================================================
// RULE
// =============================================================================

type RuleID string

// Rule is a monthly recurring credit or debit.
type Rule struct {
	ID          RuleID
	Kind        ledger.Kind // credit or debit only
	Amount      decimal.Decimal
	Description string
	DayOfMonth  int // 1-31, clamped to the month's length
	StartDate   ledger.Date
	Active      bool
	Policy      Policy

	RemainingCount  int // FixedCount
	MonthsDuration  int // MonthlyDuration, as originally requested
	RemainingMonths int // MonthlyDuration

	CreatedAt  time.Time
	LastPeriod ledger.Period // zero until the first month is processed
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}

// Validate checks the rule's shape.
func (r Rule) Validate() error {
	if r.Kind != ledger.KindCredit && r.Kind != ledger.KindDebit {
		return invalid("kind must be credit or debit, got %q", r.Kind)
	}
	if !ledger.ValidAmount(r.Amount) {
		return invalid("amount %s must be non-negative with at most %d decimal places", r.Amount, ledger.AmountPlaces)
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return invalid("day of month %d out of range", r.DayOfMonth)
	}
	if r.StartDate.IsZero() {
		return invalid("missing start date")
	}
	if strings.TrimSpace(r.Description) == "" {
		return invalid("missing description")
	}
	switch r.Policy {
	case UntilCancelled:
	case FixedCount:
		if r.RemainingCount < 0 {
			return invalid("negative remaining count")
		}
	case MonthlyDuration:
		if r.RemainingMonths < 0 || r.MonthsDuration < 0 {
			return invalid("negative month duration")
		}
	default:
		return invalid("unknown policy %q", r.Policy)
	}
	return nil
}

// Eligible reports whether the rule should materialize in p: active,
// started on or before p's first day, and p not yet processed.
func (r Rule) Eligible(p ledger.Period) bool {
	if !r.Active {
		return false
	}
	if r.StartDate.After(p.First()) {
		return false
	}
	return r.LastPeriod.IsZero() || r.LastPeriod.Before(p)
}

// Pending returns the eligible months from floor through target, oldest
// first. Months skipped since LastPeriod are included so a later month
// processed first never hides an earlier one; months before floor never
// are.
func (r Rule) Pending(floor, target ledger.Period) []ledger.Period {
	p := floor
	if !r.LastPeriod.IsZero() && !r.LastPeriod.Before(floor) {
		p = r.LastPeriod.Next()
	}
	var out []ledger.Period
	for ; !p.After(target); p = p.Next() {
		if r.Eligible(p) {
			out = append(out, p)
		}
	}
	return out
}

// Exhausted reports whether a terminating policy has no runs left.
func (r Rule) Exhausted() bool {
	switch r.Policy {
	case FixedCount:
		return r.RemainingCount <= 0
	case MonthlyDuration:
		return r.RemainingMonths <= 0
	}
	return false
}

// Candidate returns the transaction the rule produces in p.
func (r Rule) Candidate(p ledger.Period) ledger.Transaction {
	return ledger.Transaction{
		Date:        p.Clamp(r.DayOfMonth),
		Kind:        r.Kind,
		Amount:      r.Amount,
		Description: Tag + r.Description,
	}
}

// consume records one successful month and deactivates the rule when its
// policy runs out.
func (r *Rule) consume() {
	switch r.Policy {
	case FixedCount:
		r.RemainingCount--
	case MonthlyDuration:
		r.RemainingMonths--
	}
	if r.Exhausted() {
		r.Active = false
	}
}
