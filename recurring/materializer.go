/*
materializer.go - Expands recurring rules into transactions

PURPOSE:
  For a target month, inserts one transaction per eligible rule and moves
  each rule's counter. Runs only for the current month or later: the past
  is never filled in.

PROCESS (per rule):
  Every unprocessed month from the current one through the target is
  handled oldest first, so asking for December before November still
  fills November. For each month:
  1. Skip unless Eligible (active, started, month not yet processed)
  2. A terminating rule with nothing left is deactivated and skipped
  3. Insert the candidate on min(DayOfMonth, days in month), tagged
  4. Success:   counter -1, deactivate at 0, month marked processed
     Duplicate: counter unchanged, month marked processed
     Failure:   logged, counter unchanged, the month and the ones after
                it are left for the next run

  Errors on one rule never stop the others.

SEE ALSO:
  - rule.go: Eligibility and counters
  - ../diary/scheduler.go: Runs MaterializeAhead periodically
*/
package recurring

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/finance-diary/ledger"
)

// Inserter is the deduplicating log.
type Inserter interface {
	Insert(tx ledger.Transaction) (ledger.Transaction, error)
}

// Materializer expands rules into the log.
type Materializer struct {
	Log    Inserter
	Now    func() time.Time
	Logger zerolog.Logger
}

// Result summarizes one month.
type Result struct {
	Period      ledger.Period
	Created     []ledger.Transaction
	Duplicates  int
	Failed      int
	Deactivated []RuleID
}

// NewMaterializer returns a materializer using the wall clock.
func NewMaterializer(log Inserter, logger zerolog.Logger) *Materializer {
	return &Materializer{Log: log, Now: time.Now, Logger: logger}
}

func (m *Materializer) currentPeriod() ledger.Period {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return ledger.PeriodOf(now())
}

// Materialize processes target, and any month a rule skipped on the way
// to it, for every rule and returns the updated rules. The input slice is
// not modified.
func (m *Materializer) Materialize(rules []Rule, target ledger.Period) ([]Rule, Result, error) {
	current := m.currentPeriod()
	if target.Before(current) {
		return rules, Result{Period: target}, fmt.Errorf("%w: %s", ErrPastPeriod, target)
	}

	out := make([]Rule, len(rules))
	copy(out, rules)
	res := Result{Period: target}

	for i := range out {
		rule := &out[i]
		for _, p := range rule.Pending(current, target) {
			if !m.materializeOne(rule, p, &res) {
				break
			}
		}
	}

	if len(res.Created) > 0 || res.Duplicates > 0 || res.Failed > 0 {
		m.Logger.Info().
			Str("period", target.String()).
			Int("created", len(res.Created)).
			Int("duplicates", res.Duplicates).
			Int("failed", res.Failed).
			Msg("recurring rules materialized")
	}
	return out, res, nil
}

// materializeOne processes p for rule and reports whether later months
// may follow.
func (m *Materializer) materializeOne(rule *Rule, p ledger.Period, res *Result) bool {
	if rule.Exhausted() {
		rule.Active = false
		res.Deactivated = append(res.Deactivated, rule.ID)
		return false
	}

	stored, err := m.Log.Insert(rule.Candidate(p))
	switch {
	case err == nil:
		rule.consume()
		rule.LastPeriod = p
		res.Created = append(res.Created, stored)
		if !rule.Active {
			res.Deactivated = append(res.Deactivated, rule.ID)
		}
		return rule.Active
	case ledger.IsDuplicate(err):
		rule.LastPeriod = p
		res.Duplicates++
		m.Logger.Debug().
			Str("rule_id", string(rule.ID)).
			Str("period", p.String()).
			Msg("recurring transaction already present")
		return true
	default:
		res.Failed++
		m.Logger.Error().Err(err).
			Str("rule_id", string(rule.ID)).
			Str("period", p.String()).
			Msg("failed to materialize recurring transaction")
		return false
	}
}

// MaterializeAhead processes `months` consecutive months starting at from.
// Months before the current one are skipped rather than rejected. On error
// the rules and results cover the months finished before it.
func (m *Materializer) MaterializeAhead(rules []Rule, from ledger.Period, months int) ([]Rule, []Result, error) {
	current := m.currentPeriod()
	if from.Before(current) {
		from = current
	}

	var results []Result
	for i := 0; i < months; i++ {
		next, res, err := m.Materialize(rules, from.AddMonths(i))
		if err != nil {
			return rules, results, err
		}
		rules = next
		results = append(results, res)
	}
	return rules, results, nil
}
