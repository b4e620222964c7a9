/*
registry.go - Thread-safe rule storage

PURPOSE:
  Holds the rule set in creation order. Callers get copies; the
  materializer works on a snapshot and writes the result back with
  Replace.

SEE ALSO:
  - rule.go: Rule
  - ../diary/service.go: Owner of the registry
*/
package recurring

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/finance-diary/ledger"
)

// Registry stores rules by ID, preserving insertion order.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
	now   func() time.Time
	newID func() RuleID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		now:   time.Now,
		newID: func() RuleID { return RuleID(uuid.NewString()) },
	}
}

// WithClock replaces the clock used for CreatedAt and default start dates.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// WithIDGenerator replaces the ID generator.
func (r *Registry) WithIDGenerator(gen func() RuleID) *Registry {
	r.newID = gen
	return r
}

// Create validates and stores a new rule. Missing fields are defaulted:
// ID, CreatedAt, StartDate (first day of the current month), Active, and
// the remaining counters from their requested durations.
func (r *Registry) Create(rule Rule) (Rule, error) {
	now := r.now()
	if rule.ID == "" {
		rule.ID = r.newID()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.StartDate.IsZero() {
		rule.StartDate = ledger.PeriodOf(now).First()
	}
	if rule.Policy == "" {
		rule.Policy = UntilCancelled
	}
	if rule.Policy == MonthlyDuration && rule.RemainingMonths == 0 {
		rule.RemainingMonths = rule.MonthsDuration
	}
	rule.Active = true
	rule.LastPeriod = ledger.Period{}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if rule.Exhausted() {
		return Rule{}, invalid("%s rule created with nothing to run", rule.Policy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.indexLocked(rule.ID); ok {
		return Rule{}, invalid("duplicate rule id %s", rule.ID)
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}

// Get returns a rule by ID.
func (r *Registry) Get(id RuleID) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.indexLocked(id)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return r.rules[i], nil
}

// List returns every rule in creation order.
func (r *Registry) List() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Active returns the rules still running.
func (r *Registry) Active() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, rule := range r.rules {
		if rule.Active {
			out = append(out, rule)
		}
	}
	return out
}

// Cancel deactivates a rule. Already materialized transactions stay.
func (r *Registry) Cancel(id RuleID) (Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.indexLocked(id)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.rules[i].Active = false
	return r.rules[i], nil
}

// Delete removes a rule. Already materialized transactions stay.
func (r *Registry) Delete(id RuleID) (Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.indexLocked(id)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	removed := r.rules[i]
	r.rules = append(r.rules[:i], r.rules[i+1:]...)
	return removed, nil
}

// Load replaces the rule set with persisted rules, as is.
func (r *Registry) Load(rules []Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = make([]Rule, len(rules))
	copy(r.rules, rules)
}

// Merge writes back materializer output. Rules are matched by ID; rules
// deleted in the meantime are not resurrected, and a cancellation made in
// the meantime wins over the materializer's view.
func (r *Registry) Merge(updated []Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updated {
		i, ok := r.indexLocked(u.ID)
		if !ok {
			continue
		}
		active := r.rules[i].Active && u.Active
		r.rules[i] = u
		r.rules[i].Active = active
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func (r *Registry) indexLocked(id RuleID) (int, bool) {
	for i := range r.rules {
		if r.rules[i].ID == id {
			return i, true
		}
	}
	return 0, false
}
