package diary

import (
	"context"

	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/recurring"
)

// =============================================================================
// RECURRING RULES
// =============================================================================

// Rules returns every rule in creation order.
func (s *Service) Rules() []recurring.Rule { return s.rules.List() }

// Rule returns one rule.
func (s *Service) Rule(id recurring.RuleID) (recurring.Rule, error) { return s.rules.Get(id) }

// CreateRule stores a new rule and materializes it for the current month
// right away, so a rule created today shows up in today's month.
func (s *Service) CreateRule(ctx context.Context, r recurring.Rule) (recurring.Rule, error) {
	created, err := s.rules.Create(r)
	if err != nil {
		return recurring.Rule{}, err
	}
	if err := s.persistRules(ctx); err != nil {
		return created, err
	}
	s.logger.Info().
		Str("rule_id", string(created.ID)).
		Str("policy", string(created.Policy)).
		Msg("recurring rule created")

	if _, err := s.Materialize(ctx, ledger.PeriodOf(s.now())); err != nil {
		return created, err
	}
	return s.rules.Get(created.ID)
}

// CancelRule stops a rule. Its transactions stay in the log.
func (s *Service) CancelRule(ctx context.Context, id recurring.RuleID) (recurring.Rule, error) {
	r, err := s.rules.Cancel(id)
	if err != nil {
		return recurring.Rule{}, err
	}
	return r, s.persistRules(ctx)
}

// DeleteRule removes a rule. Its transactions stay in the log.
func (s *Service) DeleteRule(ctx context.Context, id recurring.RuleID) (recurring.Rule, error) {
	r, err := s.rules.Delete(id)
	if err != nil {
		return recurring.Rule{}, err
	}
	return r, s.persistRules(ctx)
}

// Materialize expands the active rules into period p. Past periods are
// rejected with recurring.ErrPastPeriod.
func (s *Service) Materialize(ctx context.Context, p ledger.Period) (recurring.Result, error) {
	results, err := s.materialize(ctx, func(rules []recurring.Rule) ([]recurring.Rule, []recurring.Result, error) {
		updated, res, err := s.materializer.Materialize(rules, p)
		return updated, []recurring.Result{res}, err
	})
	if err != nil {
		return recurring.Result{Period: p}, err
	}
	return results[0], nil
}

// MaterializeAhead expands the active rules into `months` months starting
// at from (clamped to the current month).
func (s *Service) MaterializeAhead(ctx context.Context, from ledger.Period, months int) ([]recurring.Result, error) {
	return s.materialize(ctx, func(rules []recurring.Rule) ([]recurring.Rule, []recurring.Result, error) {
		return s.materializer.MaterializeAhead(rules, from, months)
	})
}

type materializeFunc func(rules []recurring.Rule) ([]recurring.Rule, []recurring.Result, error)

func (s *Service) materialize(ctx context.Context, run materializeFunc) ([]recurring.Result, error) {
	s.materializeMu.Lock()
	defer s.materializeMu.Unlock()

	// A run that fails part-way still returns the months it finished; their
	// rules and transactions are kept like any other.
	updated, results, runErr := run(s.rules.List())
	s.rules.Merge(updated)

	var dirty ledger.Date
	created := 0
	for _, res := range results {
		for _, tx := range res.Created {
			dirty = ledger.MinDate(dirty, tx.Date)
			created++
		}
	}
	if created > 0 {
		s.reconciler.Request(dirty)
		if err := s.persistTransactions(ctx); err != nil {
			return results, err
		}
	}
	if err := s.persistRules(ctx); err != nil {
		return results, err
	}
	return results, runErr
}
