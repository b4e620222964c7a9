/*
Package diary is the application layer of the finance diary.

PURPOSE:
  Service ties the engine together: the transaction log (source of
  truth), the recurring rules, the reconciler that keeps the ledger in
  step with the log, persistence of the three documents, and change
  events. The HTTP layer and the scheduler only talk to Service.

FLOW OF A WRITE:
  1. Mutate the log (insert / update / delete), rejecting duplicates
  2. Persist the transactions document
  3. Request a reconciliation pass from the earliest affected day
  4. The pass runs on the reconciler goroutine; its hook persists the
     ledger document and publishes an event

  Writes return as soon as the log has changed. Reads that need the
  ledger call Sync first, so a read always reflects every earlier write.

STARTUP (Open):
  - Missing documents are a first run: empty state
  - Malformed documents are logged and treated as empty
  - The persisted ledger seeds the reconciler, then a full rebuild is
    requested so the cache is corrected against the log

SEE ALSO:
  - scheduler.go: Periodic recurring materialization
  - ../ledger/reconcile.go: The reconciler actor
  - ../store: Persistence
*/
package diary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/finance-diary/currency"
	"github.com/warp/finance-diary/factory"
	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/notify"
	"github.com/warp/finance-diary/recurring"
	"github.com/warp/finance-diary/store"
)

// Options configures a Service. KV is required.
type Options struct {
	KV           store.KV
	Publisher    notify.Publisher
	Factory      *factory.Factory
	Recalculator *ledger.Recalculator
	Logger       zerolog.Logger
	Now          func() time.Time

	// LogOptions are passed to the transaction log (clock and IDs).
	LogOptions []ledger.LogOption
	// RuleIDs replaces the rule ID generator.
	RuleIDs func() recurring.RuleID
}

// Service is the diary.
type Service struct {
	log          *ledger.Log
	rules        *recurring.Registry
	reconciler   *ledger.Reconciler
	materializer *recurring.Materializer

	kv        store.KV
	factory   *factory.Factory
	publisher notify.Publisher
	logger    zerolog.Logger
	now       func() time.Time

	persistMu     sync.Mutex // orders document snapshots with their saves
	materializeMu sync.Mutex // one materializer run at a time
	passes        atomic.Uint64
}

// New builds a Service. Call Open to load persisted state and Start (or
// Run) to process reconciliation passes.
func New(opts Options) (*Service, error) {
	if opts.KV == nil {
		return nil, errors.New("diary: KV is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Nop{}
	}
	if opts.Factory == nil {
		opts.Factory = factory.New(currency.BRL{}, opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recalculator == nil {
		opts.Recalculator = ledger.NewRecalculator(opts.Logger)
	}

	s := &Service{
		kv:        opts.KV,
		factory:   opts.Factory,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
	}

	logOpts := append([]ledger.LogOption{ledger.WithClock(opts.Now)}, opts.LogOptions...)
	s.log = ledger.NewLog(logOpts...)

	s.rules = recurring.NewRegistry().WithClock(opts.Now)
	if opts.RuleIDs != nil {
		s.rules.WithIDGenerator(opts.RuleIDs)
	}

	s.reconciler = ledger.NewReconciler(s.log,
		ledger.WithRecalculator(opts.Recalculator),
		ledger.WithLogger(opts.Logger.With().Str("component", "reconciler").Logger()),
		ledger.WithPassHook(s.afterPass),
	)

	s.materializer = &recurring.Materializer{
		Log:    s.log,
		Now:    opts.Now,
		Logger: opts.Logger.With().Str("component", "recurring").Logger(),
	}
	return s, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Open loads the persisted documents. Only storage I/O errors fail it.
func (s *Service) Open(ctx context.Context) error {
	raw, ok, err := s.kv.Load(ctx, store.KeyTransactions)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	if ok {
		txs, skipped, err := s.factory.ParseTransactions(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("transactions document is malformed, starting empty")
		}
		if skipped > 0 {
			s.logger.Warn().Int("skipped", skipped).Msg("skipped unreadable transactions")
		}
		s.log.Load(txs)
	}

	raw, ok, err = s.kv.Load(ctx, store.KeyRecurring)
	if err != nil {
		return fmt.Errorf("load recurring rules: %w", err)
	}
	if ok {
		rules, skipped, err := s.factory.ParseRules(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("recurring document is malformed, starting empty")
		}
		if skipped > 0 {
			s.logger.Warn().Int("skipped", skipped).Msg("skipped unreadable recurring rules")
		}
		s.rules.Load(rules)
	}

	raw, ok, err = s.kv.Load(ctx, store.KeyLedger)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if ok {
		l, _, err := s.factory.ParseLedger(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("ledger document is malformed, rebuilding")
		}
		s.reconciler.Seed(l)
	}

	s.logger.Info().
		Int("transactions", s.log.Len()).
		Int("rules", s.rules.Len()).
		Msg("diary loaded")

	s.reconciler.Request(ledger.Date{})
	return nil
}

// Start runs the reconciler on its own goroutine.
func (s *Service) Start() { s.reconciler.Start() }

// Stop ends the reconciler after the pass in progress.
func (s *Service) Stop() { s.reconciler.Stop() }

// Run runs the reconciler until ctx is done.
func (s *Service) Run(ctx context.Context) error { return s.reconciler.Run(ctx) }

// Sync waits until the ledger reflects every earlier write.
func (s *Service) Sync(ctx context.Context) error { return s.reconciler.Sync(ctx) }

// afterPass runs on the reconciler goroutine after every pass.
func (s *Service) afterPass(l *ledger.Ledger, res ledger.RecalcResult) {
	n := s.passes.Add(1)
	ctx := context.Background()

	if raw, err := s.factory.EncodeLedger(l); err != nil {
		s.logger.Error().Err(err).Msg("encode ledger")
	} else if err := s.kv.Save(ctx, store.KeyLedger, raw); err != nil {
		s.logger.Error().Err(err).Msg("save ledger")
	}

	event := notify.Event{
		Type:        notify.EventLedgerReconciled,
		DaysUpdated: res.DaysUpdated,
		SeededYears: res.SeededYears,
		Overflow:    res.Overflow,
		Pass:        n,
		At:          s.now(),
	}
	if !res.From.IsZero() {
		event.From = res.From.String()
	}
	if !res.Through.IsZero() {
		event.Through = res.Through.String()
	}
	s.publish(ctx, event)
}

func (s *Service) publish(ctx context.Context, e notify.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("type", e.Type).Msg("publish event failed")
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (s *Service) persistTransactions(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	raw, err := s.factory.EncodeTransactions(s.log.Transactions())
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	if err := s.kv.Save(ctx, store.KeyTransactions, raw); err != nil {
		return fmt.Errorf("save transactions: %w", err)
	}
	return nil
}

func (s *Service) persistRules(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	raw, err := s.factory.EncodeRules(s.rules.List())
	if err != nil {
		return fmt.Errorf("encode recurring rules: %w", err)
	}
	if err := s.kv.Save(ctx, store.KeyRecurring, raw); err != nil {
		return fmt.Errorf("save recurring rules: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// AddTransaction records tx. A duplicate returns *ledger.DuplicateError and
// leaves everything unchanged.
func (s *Service) AddTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	stored, err := s.log.Insert(tx)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.reconciler.Request(stored.Date)
	if err := s.persistTransactions(ctx); err != nil {
		return stored, err
	}
	return stored, nil
}

// UpdateTransaction replaces transaction id by value.
func (s *Service) UpdateTransaction(ctx context.Context, id ledger.TransactionID, tx ledger.Transaction) (ledger.Transaction, error) {
	old, err := s.log.Update(id, tx)
	if err != nil {
		return ledger.Transaction{}, err
	}
	updated, _ := s.log.Get(id)
	s.reconciler.Request(ledger.EarliestAffected(&old, &updated))
	if err := s.persistTransactions(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteTransaction removes transaction id and returns it.
func (s *Service) DeleteTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	removed, err := s.log.Delete(id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.reconciler.Request(removed.Date)
	if err := s.persistTransactions(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// Transaction returns one transaction.
func (s *Service) Transaction(id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := s.log.Get(id)
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	return tx, nil
}

// Transactions returns the log in chronological order.
func (s *Service) Transactions() []ledger.Transaction {
	return s.log.Transactions()
}

// TransactionsOn returns the transactions of one day.
func (s *Service) TransactionsOn(d ledger.Date) []ledger.Transaction {
	return s.log.ByDate(d)
}

// CountByDate returns per-kind transaction counts for one day.
func (s *Service) CountByDate(d ledger.Date) map[ledger.Kind]int {
	return s.log.CountByDate(d)
}

// =============================================================================
// LEDGER READS
// =============================================================================

// Ledger returns a copy of the ledger reflecting every earlier write.
func (s *Service) Ledger(ctx context.Context) (*ledger.Ledger, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s.reconciler.Ledger(), nil
}

// MonthView is one month of the ledger.
type MonthView struct {
	Period ledger.Period
	Days   []ledger.DayBalance
	Totals ledger.Totals
}

// Month returns the present days and totals of p.
func (s *Service) Month(ctx context.Context, p ledger.Period) (MonthView, error) {
	l, err := s.Ledger(ctx)
	if err != nil {
		return MonthView{}, err
	}
	return MonthView{
		Period: p,
		Days:   ledger.MonthEntries(l, p),
		Totals: ledger.MonthTotals(l, p),
	}, nil
}

// YearTotals sums one calendar year.
func (s *Service) YearTotals(ctx context.Context, year int) (ledger.Totals, error) {
	l, err := s.Ledger(ctx)
	if err != nil {
		return ledger.Totals{}, err
	}
	return ledger.YearTotals(l, year), nil
}

// BalanceAt returns the projected end-of-day balance on d.
func (s *Service) BalanceAt(ctx context.Context, d ledger.Date) (ledger.DayBalance, error) {
	l, err := s.Ledger(ctx)
	if err != nil {
		return ledger.DayBalance{}, err
	}
	e, ok := l.Get(d)
	if !ok {
		e = ledger.Entry{Balance: ledger.BalanceAt(l, d)}
	}
	return ledger.DayBalance{Date: d, Entry: e}, nil
}

// Reconcile forces a full rebuild and waits for it.
func (s *Service) Reconcile(ctx context.Context) error {
	s.reconciler.Request(ledger.Date{})
	return s.Sync(ctx)
}

// Passes returns how many reconciliation passes completed.
func (s *Service) Passes() uint64 { return s.passes.Load() }

// =============================================================================
// INTEGRITY
// =============================================================================

// Integrity checks the persisted transactions document (or the in-memory
// log when nothing is persisted yet) and the ledger. It never repairs.
func (s *Service) Integrity(ctx context.Context) (ledger.Report, error) {
	var report ledger.Report
	raw, ok, err := s.kv.Load(ctx, store.KeyTransactions)
	if err != nil {
		return ledger.Report{}, fmt.Errorf("load transactions: %w", err)
	}
	if ok {
		report = s.factory.CheckDocument(raw)
	} else {
		report = ledger.CheckTransactions(s.log.Transactions())
	}

	l, err := s.Ledger(ctx)
	if err != nil {
		return ledger.Report{}, err
	}
	return report.Merge(ledger.CheckLedger(l)), nil
}

// RemoveDuplicates drops every fingerprint duplicate from the log, keeping
// the first of each group, and returns what was removed. It only runs when
// called.
func (s *Service) RemoveDuplicates(ctx context.Context) ([]ledger.Transaction, error) {
	kept, removed := ledger.CleanupDuplicates(s.log.Transactions())
	if len(removed) == 0 {
		return nil, nil
	}
	s.log.Load(kept)
	s.reconciler.Request(ledger.Date{})
	s.logger.Info().Int("removed", len(removed)).Msg("duplicate transactions removed")
	return removed, s.persistTransactions(ctx)
}

// Reset clears transactions, rules and the ledger.
func (s *Service) Reset(ctx context.Context) error {
	s.materializeMu.Lock()
	defer s.materializeMu.Unlock()

	s.log.Reset()
	s.rules.Load(nil)
	s.reconciler.Seed(ledger.New())
	s.reconciler.Request(ledger.Date{})

	if err := s.persistTransactions(ctx); err != nil {
		return err
	}
	if err := s.persistRules(ctx); err != nil {
		return err
	}
	s.publish(ctx, notify.Event{Type: notify.EventLedgerReset, At: s.now()})
	s.logger.Info().Msg("diary reset")
	return s.Sync(ctx)
}
