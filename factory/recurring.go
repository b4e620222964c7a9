/*
recurring.go - Recurring rule document

  frequency may be missing in older documents. It is then inferred from
  which counter is present: remainingCount means fixed-count,
  monthsDuration means monthly-duration, otherwise until-cancelled.

SEE ALSO:
  - ../recurring/rule.go: Rule
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/recurring"
)

// RuleJSON is the wire form of a recurring rule.
type RuleJSON struct {
	ID                  string          `json:"id"`
	Type                string          `json:"type"`
	Amount              json.RawMessage `json:"amount"`
	Description         string          `json:"description"`
	DayOfMonth          int             `json:"dayOfMonth"`
	Frequency           string          `json:"frequency,omitempty"`
	RemainingCount      *int            `json:"remainingCount,omitempty"`
	MonthsDuration      *int            `json:"monthsDuration,omitempty"`
	RemainingMonths     *int            `json:"remainingMonths,omitempty"`
	StartDate           string          `json:"startDate"`
	IsActive            bool            `json:"isActive"`
	CreatedAt           string          `json:"createdAt,omitempty"`
	LastProcessedPeriod string          `json:"lastProcessedPeriod,omitempty"`
}

func intPtr(n int) *int { return &n }

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// RuleToJSON converts a rule to its wire form. Counters are written only
// for the policy that uses them.
func (f *Factory) RuleToJSON(r recurring.Rule) RuleJSON {
	rj := RuleJSON{
		ID:          string(r.ID),
		Type:        kindToType(r.Kind),
		Amount:      numberJSON(r.Amount),
		Description: r.Description,
		DayOfMonth:  r.DayOfMonth,
		Frequency:   string(r.Policy),
		StartDate:   r.StartDate.String(),
		IsActive:    r.Active,
		CreatedAt:   formatTimestamp(r.CreatedAt),
	}
	switch r.Policy {
	case recurring.FixedCount:
		rj.RemainingCount = intPtr(r.RemainingCount)
	case recurring.MonthlyDuration:
		rj.MonthsDuration = intPtr(r.MonthsDuration)
		rj.RemainingMonths = intPtr(r.RemainingMonths)
	}
	if !r.LastPeriod.IsZero() {
		rj.LastProcessedPeriod = r.LastPeriod.String()
	}
	return rj
}

// RuleFromJSON converts and validates a wire rule.
func (f *Factory) RuleFromJSON(rj RuleJSON) (recurring.Rule, error) {
	r, err := f.ruleFromJSON(rj, false)
	if err != nil {
		return recurring.Rule{}, err
	}
	if err := r.Validate(); err != nil {
		return recurring.Rule{}, err
	}
	return r, nil
}

// NewRuleFromJSON converts a rule submitted for creation. StartDate may be
// omitted; the registry defaults it and validates the result.
func (f *Factory) NewRuleFromJSON(rj RuleJSON) (recurring.Rule, error) {
	return f.ruleFromJSON(rj, true)
}

func (f *Factory) ruleFromJSON(rj RuleJSON, optionalStart bool) (recurring.Rule, error) {
	kind, err := parseType(rj.Type)
	if err != nil {
		return recurring.Rule{}, fmt.Errorf("%w: %v", recurring.ErrInvalidRule, err)
	}
	amount, err := f.parseAmount(rj.Amount)
	if err != nil {
		return recurring.Rule{}, fmt.Errorf("%w: %v", recurring.ErrInvalidRule, err)
	}
	var start ledger.Date
	if !optionalStart || strings.TrimSpace(rj.StartDate) != "" {
		if start, err = parseDay(rj.StartDate); err != nil {
			return recurring.Rule{}, fmt.Errorf("%w: startDate: %v", recurring.ErrInvalidRule, err)
		}
	}
	createdAt, err := parseTimestamp(rj.CreatedAt)
	if err != nil {
		return recurring.Rule{}, fmt.Errorf("%w: createdAt: %v", recurring.ErrInvalidRule, err)
	}

	r := recurring.Rule{
		ID:              recurring.RuleID(rj.ID),
		Kind:            kind,
		Amount:          amount,
		Description:     rj.Description,
		DayOfMonth:      rj.DayOfMonth,
		StartDate:       start,
		Active:          rj.IsActive,
		Policy:          parsePolicy(rj),
		RemainingCount:  derefInt(rj.RemainingCount),
		MonthsDuration:  derefInt(rj.MonthsDuration),
		RemainingMonths: derefInt(rj.RemainingMonths),
		CreatedAt:       createdAt,
	}
	if r.Policy == recurring.MonthlyDuration && rj.RemainingMonths == nil {
		r.RemainingMonths = r.MonthsDuration
	}
	if rj.LastProcessedPeriod != "" {
		if r.LastPeriod, err = ledger.ParsePeriod(rj.LastProcessedPeriod); err != nil {
			return recurring.Rule{}, fmt.Errorf("%w: lastProcessedPeriod: %v", recurring.ErrInvalidRule, err)
		}
	}
	return r, nil
}

func parsePolicy(rj RuleJSON) recurring.Policy {
	if rj.Frequency != "" {
		return recurring.Policy(rj.Frequency)
	}
	switch {
	case rj.RemainingCount != nil:
		return recurring.FixedCount
	case rj.MonthsDuration != nil || rj.RemainingMonths != nil:
		return recurring.MonthlyDuration
	default:
		return recurring.UntilCancelled
	}
}

// EncodeRules writes the recurringTransactions document.
func (f *Factory) EncodeRules(rules []recurring.Rule) ([]byte, error) {
	out := make([]RuleJSON, 0, len(rules))
	for _, r := range rules {
		out = append(out, f.RuleToJSON(r))
	}
	return json.Marshal(out)
}

// ParseRules reads the recurringTransactions document, skipping invalid
// rules.
func (f *Factory) ParseRules(raw []byte) ([]recurring.Rule, int, error) {
	list, err := decodeList(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("recurringTransactions: %w", err)
	}

	rules := make([]recurring.Rule, 0, len(list))
	skipped := 0
	for i, item := range list {
		var rj RuleJSON
		if err := json.Unmarshal(item, &rj); err != nil {
			skipped++
			f.logger.Warn().Err(err).Int("index", i).Msg("skipping unreadable recurring rule")
			continue
		}
		r, err := f.RuleFromJSON(rj)
		if err != nil {
			skipped++
			f.logger.Warn().Err(err).Int("index", i).Str("id", rj.ID).Msg("skipping invalid recurring rule")
			continue
		}
		rules = append(rules, r)
	}
	return rules, skipped, nil
}
