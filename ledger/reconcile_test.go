package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-diary/ledger"
)

func quietLogger() zerolog.Logger {
	return zerolog.Nop()
}

// =============================================================================
// PURE RECONCILE TESTS
// =============================================================================

func TestReconcile_GroupsByDateAndKind(t *testing.T) {
	txs := []ledger.Transaction{
		tx("a", date(2025, time.March, 1), ledger.KindCredit, "100", "freelance"),
		tx("b", date(2025, time.March, 1), ledger.KindCredit, "50", "tip"),
		tx("c", date(2025, time.March, 1), ledger.KindIncidental, "10", "bus"),
		tx("d", date(2025, time.March, 1), ledger.KindIncidental, "5.5", "coffee"),
		tx("e", date(2025, time.March, 1), ledger.KindDebit, "20", "phone"),
	}

	l := ledger.Reconcile(nil, txs, ledger.Date{})

	e, ok := l.Get(date(2025, time.March, 1))
	require.True(t, ok)
	assertMoney(t, "150", e.Credit)
	assertMoney(t, "20", e.Debit)
	assertMoney(t, "15.5", e.Incidental)
	assertMoney(t, "114.5", e.Balance)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	txs := sampleTransactions()

	once := ledger.Reconcile(nil, txs, ledger.Date{})
	twice := ledger.Reconcile(once, txs, ledger.Date{})
	incremental := ledger.Reconcile(once, txs, date(2024, time.November, 17))

	assert.True(t, once.Equal(twice))
	assert.True(t, once.Equal(incremental))
}

func TestReconcile_IncrementalMatchesFullRebuildAfterMove(t *testing.T) {
	// GIVEN: A reconciled ledger
	// WHEN: A transaction moves from December to October
	// THEN: Reconciling from the earlier of both dates equals a full rebuild

	before := sampleTransactions()
	prev := ledger.Reconcile(nil, before, ledger.Date{})

	after := make([]ledger.Transaction, len(before))
	copy(after, before)
	old := after[5]
	moved := old
	moved.Date = date(2024, time.October, 20)
	after[5] = moved

	dirty := ledger.EarliestAffected(&old, &moved)
	assert.Equal(t, date(2024, time.October, 20), dirty)

	incremental := ledger.Reconcile(prev, after, dirty)
	full := ledger.Reconcile(nil, after, ledger.Date{})

	assert.True(t, full.Equal(incremental))
	_, stillThere := incremental.Get(date(2024, time.December, 24))
	assert.False(t, stillThere, "vacated day is dropped")
}

func TestReconcile_StalePreviousLedgerFallsBackToFullRebuild(t *testing.T) {
	txs := sampleTransactions()
	stale := ledger.New()
	stale.Set(date(2024, time.October, 1), ledger.Entry{Balance: money("123")})

	got := ledger.Reconcile(stale, txs, date(2025, time.December, 5))
	want := ledger.Reconcile(nil, txs, ledger.Date{})

	assert.True(t, want.Equal(got))
}

func TestReconcile_StaleSeededYearIsDropped(t *testing.T) {
	// GIVEN: A December carry that seeded the next year
	// WHEN: The only transaction is deleted
	// THEN: The seeded year disappears with it

	txs := []ledger.Transaction{tx("a", date(2025, time.December, 1), ledger.KindCredit, "10", "x")}
	prev := ledger.Reconcile(nil, txs, ledger.Date{})
	require.True(t, prev.HasYear(2026))

	got := ledger.Reconcile(prev, nil, date(2025, time.December, 1))

	assert.True(t, got.IsEmpty())
}

// =============================================================================
// RECONCILER ACTOR TESTS
// =============================================================================

// gatedSource blocks the first snapshot until released.
type gatedSource struct {
	log     *ledger.Log
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		log:     ledger.NewLog(),
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

func (s *gatedSource) Transactions() []ledger.Transaction {
	if s.calls.Add(1) == 1 {
		s.entered <- struct{}{}
		<-s.gate
	}
	return s.log.Transactions()
}

func syncCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReconciler_CoalescesRequestsDuringPass(t *testing.T) {
	// GIVEN: A pass blocked while reading the log
	// WHEN: Five more mutations request passes meanwhile
	// THEN: Exactly one more pass runs and it sees every mutation

	src := newGatedSource()
	r := ledger.NewReconciler(src)
	r.Start()
	t.Cleanup(r.Stop)

	first := date(2025, time.May, 1)
	_, err := src.log.Insert(tx("seed", first, ledger.KindCredit, "100", "seed"))
	require.NoError(t, err)
	r.Request(first)
	<-src.entered

	for i := 0; i < 5; i++ {
		d := first.AddDays(i + 1)
		_, err := src.log.Insert(tx("", d, ledger.KindIncidental, "1", "snack"))
		require.NoError(t, err)
		r.Request(d)
	}
	close(src.gate)

	require.NoError(t, r.Sync(syncCtx(t)))

	assert.Equal(t, uint64(2), r.Passes())
	assertMoney(t, "95", balanceOn(t, r.Ledger(), date(2025, time.May, 6)))
}

func TestReconciler_SyncReflectsLatestState(t *testing.T) {
	log := ledger.NewLog()
	r := ledger.NewReconciler(log)
	r.Start()
	t.Cleanup(r.Stop)

	for i := 1; i <= 20; i++ {
		d := date(2025, time.June, i)
		_, err := log.Insert(tx("", d, ledger.KindCredit, "10", "daily"))
		require.NoError(t, err)
		r.Request(d)
	}
	require.NoError(t, r.Sync(syncCtx(t)))

	assertMoney(t, "200", balanceOn(t, r.Ledger(), date(2025, time.June, 20)))
	assert.True(t, ledger.Reconcile(nil, log.Transactions(), ledger.Date{}).Equal(r.Ledger()))
}

func TestReconciler_PassesNeverOverlap(t *testing.T) {
	log := ledger.NewLog()
	var inPass, maxInPass atomic.Int32
	hook := func(*ledger.Ledger, ledger.RecalcResult) {
		n := inPass.Add(1)
		if n > maxInPass.Load() {
			maxInPass.Store(n)
		}
		time.Sleep(time.Millisecond)
		inPass.Add(-1)
	}
	r := ledger.NewReconciler(log, ledger.WithPassHook(hook))
	r.Start()
	t.Cleanup(r.Stop)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 1; i <= 10; i++ {
				d := date(2025, time.Month(g+1), i)
				if _, err := log.Insert(tx("", d, ledger.KindDebit, "1", "x")); err == nil {
					r.Request(d)
				}
				r.Pass()
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, r.Sync(syncCtx(t)))

	assert.Equal(t, int32(1), maxInPass.Load())
	assert.Equal(t, 40, r.Ledger().Len())
}

func TestReconciler_HookReceivesCopy(t *testing.T) {
	log := ledger.NewLog()
	var got *ledger.Ledger
	r := ledger.NewReconciler(log, ledger.WithPassHook(func(l *ledger.Ledger, _ ledger.RecalcResult) {
		got = l
	}))

	_, err := log.Insert(tx("a", date(2025, time.July, 4), ledger.KindCredit, "5", "x"))
	require.NoError(t, err)
	r.Request(date(2025, time.July, 4))
	r.Pass()

	require.NotNil(t, got)
	got.Delete(date(2025, time.July, 4))
	assert.Equal(t, 1, r.Ledger().Len())
}

func TestReconciler_FullRequestRebuildsSeededLedger(t *testing.T) {
	log := ledger.NewLog()
	_, err := log.Insert(tx("a", date(2025, time.August, 1), ledger.KindCredit, "70", "x"))
	require.NoError(t, err)

	stale := ledger.New()
	stale.Set(date(2020, time.January, 1), ledger.Entry{Balance: money("1")})

	r := ledger.NewReconciler(log)
	r.Seed(stale)
	r.Request(ledger.Date{})
	r.Pass()

	l := r.Ledger()
	assert.Equal(t, 1, l.Len())
	assertMoney(t, "70", balanceOn(t, l, date(2025, time.August, 1)))
}
