/*
reconcile.go - Log-to-ledger synchronization

PURPOSE:
  Keeps the ledger a pure function of the transaction log. Every pass
  regroups the log by (date, kind), rebuilds the aggregates of every
  touched day and reruns the cascade from the earliest day the latest
  mutations affected.

PURE FORM:
  Reconcile(prev, txs, dirty) builds a fresh aggregate table from txs,
  reuses prev's balances for days before `dirty` whose aggregates did not
  change, and recalculates from `dirty`. If prev disagrees with the log
  before `dirty` the pass silently widens to a full rebuild, so the result
  always deep-equals Reconcile(nil, txs, Date{}).

ACTOR FORM:
  Reconciler owns the current ledger and is its only writer.

    Request(d)   merge d into the pending dirty date, signal the mailbox
    Run(ctx)     drain the mailbox, one pass at a time
    Sync(ctx)    wait until every earlier Request is reflected
    Ledger()     copy of the current ledger

  The mailbox holds one signal. A Request made while a signal is pending
  is folded into it; a Request made during a pass queues exactly one more
  pass over the latest log. Nothing is dropped and passes never overlap.
  A running pass is never interrupted.

SEE ALSO:
  - cascade.go: The recalculation each pass runs
  - ../diary/service.go: Requests passes after log mutations
*/
package ledger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// =============================================================================
// PURE RECONCILIATION
// =============================================================================

// Aggregate builds a ledger holding the per-day, per-kind totals of txs
// with zero balances.
func Aggregate(txs []Transaction) *Ledger {
	l := New()
	for _, tx := range txs {
		e, _ := l.Get(tx.Date)
		l.Set(tx.Date, e.Add(tx.Kind, tx.Amount))
	}
	return l
}

// Reconcile runs the default recalculator. See Recalculator.Reconcile.
func Reconcile(prev *Ledger, txs []Transaction, dirty Date) *Ledger {
	out, _ := defaultRecalculator.Reconcile(prev, txs, dirty)
	return out
}

// Reconcile derives the ledger for txs. prev and dirty only shorten the
// walk; a nil prev or zero dirty date recalculates everything.
func (r *Recalculator) Reconcile(prev *Ledger, txs []Transaction, dirty Date) (*Ledger, RecalcResult) {
	next := Aggregate(txs)
	if prev == nil || dirty.IsZero() {
		return r.Recalculate(next, Date{})
	}

	reusable := true
	next.Range(func(d Date, e Entry) bool {
		if !d.Before(dirty) {
			return false
		}
		pe, ok := prev.Get(d)
		if !ok || !sameAggregates(pe, e) {
			reusable = false
			return false
		}
		e.Balance = pe.Balance
		next.Set(d, e)
		return true
	})
	if !reusable {
		r.Logger.Debug().Str("dirty", dirty.String()).Msg("previous ledger out of date, rebuilding from scratch")
		return r.Recalculate(next, Date{})
	}
	return r.Recalculate(next, dirty)
}

func sameAggregates(a, b Entry) bool {
	return a.Credit.Equal(b.Credit) && a.Debit.Equal(b.Debit) && a.Incidental.Equal(b.Incidental)
}

// EarliestAffected returns the earliest date a mutation affects: the new date for an
// insert, the old date for a delete and both for an update.
func EarliestAffected(before, after *Transaction) Date {
	var dates []Date
	if before != nil {
		dates = append(dates, before.Date)
	}
	if after != nil {
		dates = append(dates, after.Date)
	}
	return MinDate(dates...)
}

// =============================================================================
// RECONCILER ACTOR
// =============================================================================

// Source is anything that can hand out a snapshot of the log.
type Source interface {
	Transactions() []Transaction
}

// PassHook observes each completed pass. It receives a private copy of the
// ledger.
type PassHook func(l *Ledger, res RecalcResult)

// Reconciler is the single writer of the current ledger.
type Reconciler struct {
	source Source
	recalc *Recalculator
	logger zerolog.Logger
	hooks  []PassHook

	mailbox chan struct{}
	passMu  sync.Mutex

	mu        sync.Mutex
	current   *Ledger
	dirty     Date
	full      bool
	requested uint64
	completed uint64
	passes    uint64
	done      chan struct{}

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithRecalculator(rc *Recalculator) ReconcilerOption {
	return func(r *Reconciler) { r.recalc = rc }
}

func WithLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

// WithPassHook registers fn to run after every pass, on the actor goroutine.
func WithPassHook(fn PassHook) ReconcilerOption {
	return func(r *Reconciler) { r.hooks = append(r.hooks, fn) }
}

func NewReconciler(source Source, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		source:  source,
		logger:  zerolog.Nop(),
		mailbox: make(chan struct{}, 1),
		current: New(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.recalc == nil {
		r.recalc = NewRecalculator(r.logger)
	}
	return r
}

// Seed installs an initial ledger, typically the persisted cache, so
// readers have something to show before the first pass.
func (r *Reconciler) Seed(l *Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = l.Clone()
}

// Request schedules a pass covering every day from `from` onward. A zero
// date schedules a full rebuild. It never blocks.
func (r *Reconciler) Request(from Date) {
	r.mu.Lock()
	if from.IsZero() {
		r.full = true
	} else {
		r.dirty = MinDate(r.dirty, from)
	}
	r.requested++
	r.mu.Unlock()

	select {
	case r.mailbox <- struct{}{}:
	default:
		// a pass is already pending and will see this request
	}
}

// Run processes requests until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return nil
		case <-r.mailbox:
			r.Pass()
		}
	}
}

// Start runs the actor on its own goroutine.
func (r *Reconciler) Start() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(ctx)
	}()
}

// Stop ends the actor after the pass in progress, if any.
func (r *Reconciler) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.cancel = nil
}

// Pass claims the pending dirty range and runs one reconciliation. Run
// calls it for each signal; callers without a running actor may call it
// directly. Passes are serialized.
func (r *Reconciler) Pass() RecalcResult {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	r.mu.Lock()
	dirty, full, target := r.dirty, r.full, r.requested
	r.dirty, r.full = Date{}, false
	prev := r.current
	r.mu.Unlock()

	if full {
		dirty = Date{}
	}
	txs := r.source.Transactions()
	next, res := r.recalc.Reconcile(prev, txs, dirty)

	r.mu.Lock()
	r.current = next
	if target > r.completed {
		r.completed = target
	}
	r.passes++
	close(r.done)
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.logger.Debug().
		Str("from", res.From.String()).
		Str("through", res.Through.String()).
		Int("days", res.DaysUpdated).
		Int("transactions", len(txs)).
		Msg("reconciliation pass complete")

	for _, hook := range r.hooks {
		hook(next.Clone(), res)
	}
	return res
}

// Sync waits until every Request made before the call has been reflected
// in the current ledger. It needs a running actor or a concurrent Pass.
func (r *Reconciler) Sync(ctx context.Context) error {
	r.mu.Lock()
	target := r.requested
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if r.completed >= target {
			r.mu.Unlock()
			return nil
		}
		done := r.done
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ledger returns a copy of the current ledger.
func (r *Reconciler) Ledger() *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Passes returns how many passes have completed.
func (r *Reconciler) Passes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes
}
