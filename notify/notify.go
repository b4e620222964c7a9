/*
Package notify publishes change events after each reconciliation pass.

PURPOSE:
  Other processes (a sync worker, a dashboard) may want to know that the
  ledger changed without polling it. After every pass the diary publishes
  one Event. Publishing is fire-and-forget: a failed publish is logged by
  the caller and never fails the pass.

IMPLEMENTATIONS:
  - Nop:       default, drops events
  - Recorder:  keeps events in memory
  - amqp/:     RabbitMQ publisher

SEE ALSO:
  - ../diary/service.go: Publishes from the reconciler's pass hook
*/
package notify

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	EventLedgerReconciled = "ledger.reconciled"
	EventLedgerReset      = "ledger.reset"
)

// Event describes one change to the ledger.
type Event struct {
	Type        string    `json:"type"`
	From        string    `json:"from,omitempty"`    // first recalculated date
	Through     string    `json:"through,omitempty"` // last recalculated date
	DaysUpdated int       `json:"daysUpdated"`
	SeededYears []int     `json:"seededYears,omitempty"`
	Overflow    bool      `json:"overflow,omitempty"`
	Pass        uint64    `json:"pass"`
	At          time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
