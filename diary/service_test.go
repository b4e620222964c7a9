package diary_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-diary/diary"
	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/notify"
	"github.com/warp/finance-diary/recurring"
	"github.com/warp/finance-diary/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var may2025 = time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *diary.Service
	kv     *store.Memory
	events *notify.Recorder
}

func newFixture(t *testing.T, kv *store.Memory) fixture {
	t.Helper()
	if kv == nil {
		kv = store.NewMemory()
	}
	events := &notify.Recorder{}
	n := 0
	svc, err := diary.New(diary.Options{
		KV:        kv,
		Publisher: events,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return may2025 },
		LogOptions: []ledger.LogOption{
			ledger.WithIDGenerator(func() ledger.TransactionID {
				n++
				return ledger.TransactionID(fmt.Sprintf("tx-%d", n))
			}),
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Open(context.Background()))
	svc.Start()
	t.Cleanup(svc.Stop)
	return fixture{svc: svc, kv: kv, events: events}
}

func tx(d ledger.Date, kind ledger.Kind, amount, desc string) ledger.Transaction {
	return ledger.Transaction{
		Date:        d,
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
	}
}

func balanceAt(t *testing.T, svc *diary.Service, d ledger.Date) string {
	t.Helper()
	b, err := svc.BalanceAt(context.Background(), d)
	require.NoError(t, err)
	return b.Entry.Balance.StringFixed(2)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestService_FirstCreditSetsBalance(t *testing.T) {
	// GIVEN: An empty diary
	// WHEN: A credit of 1000 is recorded on 2025-01-05
	// THEN: The balance that day and on later days of the month is 1000

	f := newFixture(t, nil)
	ctx := context.Background()

	stored, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.January, 5), ledger.KindCredit, "1000", "Salário"))
	require.NoError(t, err)
	assert.Equal(t, ledger.TransactionID("tx-1"), stored.ID)

	assert.Equal(t, "1000.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.January, 5)))
	assert.Equal(t, "1000.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.January, 20)))
	assert.Equal(t, "0.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.January, 4)))
}

func TestService_BalanceCarriesIntoNextYear(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.December, 20), ledger.KindCredit, "500", "Bônus"))
	require.NoError(t, err)

	assert.Equal(t, "500.00", balanceAt(t, f.svc, ledger.MustDate(2026, time.January, 1)))
}

func TestService_DuplicateIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := ledger.MustDate(2025, time.March, 3)

	_, err := f.svc.AddTransaction(ctx, tx(d, ledger.KindIncidental, "12.50", "Padaria"))
	require.NoError(t, err)

	_, err = f.svc.AddTransaction(ctx, tx(d, ledger.KindIncidental, "12.5", "  padaria "))

	assert.True(t, ledger.IsDuplicate(err))
	assert.Len(t, f.svc.Transactions(), 1)
	assert.Equal(t, "-12.50", balanceAt(t, f.svc, d))
}

func TestService_InvalidTransactionIsClientError(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.AddTransaction(context.Background(), ledger.Transaction{Kind: ledger.KindCredit})

	assert.True(t, ledger.IsClientError(err))
	assert.Empty(t, f.svc.Transactions())
}

func TestService_UpdateMovesBalanceToEarlierDay(t *testing.T) {
	// GIVEN: A debit on 2025-03-10
	// WHEN: It is moved to 2025-02-01 with a new amount
	// THEN: February carries the new amount and March no longer has the old one

	f := newFixture(t, nil)
	ctx := context.Background()

	stored, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.March, 10), ledger.KindDebit, "300", "Seguro"))
	require.NoError(t, err)

	updated, err := f.svc.UpdateTransaction(ctx, stored.ID,
		tx(ledger.MustDate(2025, time.February, 1), ledger.KindDebit, "250", "Seguro"))
	require.NoError(t, err)

	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, "-250.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.February, 15)))
	assert.Equal(t, "-250.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.March, 10)))
}

func TestService_DeleteRestoresBalance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.April, 1), ledger.KindCredit, "100", "Pix"))
	require.NoError(t, err)
	second, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.April, 2), ledger.KindIncidental, "40", "Mercado"))
	require.NoError(t, err)
	assert.Equal(t, "60.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.April, 30)))

	removed, err := f.svc.DeleteTransaction(ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, second.ID, removed.ID)
	assert.Equal(t, "100.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.April, 30)))

	_, err = f.svc.DeleteTransaction(ctx, second.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestService_MonthView(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := ledger.Period{Year: 2025, Month: time.June}

	for _, in := range []ledger.Transaction{
		tx(ledger.MustDate(2025, time.June, 1), ledger.KindCredit, "2000", "Salário"),
		tx(ledger.MustDate(2025, time.June, 5), ledger.KindDebit, "800", "Aluguel"),
		tx(ledger.MustDate(2025, time.June, 5), ledger.KindIncidental, "50", "Farmácia"),
	} {
		_, err := f.svc.AddTransaction(ctx, in)
		require.NoError(t, err)
	}

	view, err := f.svc.Month(ctx, p)
	require.NoError(t, err)

	require.Len(t, view.Days, 2)
	assert.Equal(t, "2000", view.Totals.Credit.String())
	assert.Equal(t, "800", view.Totals.Debit.String())
	assert.Equal(t, "50", view.Totals.Incidental.String())
	assert.Equal(t, "1150.00", view.Totals.Closing.StringFixed(2))

	counts := f.svc.CountByDate(ledger.MustDate(2025, time.June, 5))
	assert.Equal(t, 1, counts[ledger.KindDebit])
	assert.Equal(t, 1, counts[ledger.KindIncidental])
	assert.Len(t, f.svc.TransactionsOn(ledger.MustDate(2025, time.June, 5)), 2)
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestService_ReopenRestoresState(t *testing.T) {
	// GIVEN: A diary with one transaction and one rule, stopped
	// WHEN: A new service opens the same store
	// THEN: Transactions, rules and balances are restored

	kv := store.NewMemory()
	ctx := context.Background()

	first := newFixture(t, kv)
	_, err := first.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.February, 10), ledger.KindCredit, "750", "Freela"))
	require.NoError(t, err)
	_, err = first.svc.CreateRule(ctx, recurring.Rule{
		Kind:        ledger.KindDebit,
		Amount:      decimal.RequireFromString("99.90"),
		Description: "Internet",
		DayOfMonth:  15,
	})
	require.NoError(t, err)
	require.NoError(t, first.svc.Sync(ctx))
	first.svc.Stop()

	second := newFixture(t, kv)

	assert.Len(t, second.svc.Transactions(), 2)
	require.Len(t, second.svc.Rules(), 1)
	assert.Equal(t, ledger.Period{Year: 2025, Month: time.May}, second.svc.Rules()[0].LastPeriod)
	assert.Equal(t, "650.10", balanceAt(t, second.svc, ledger.MustDate(2025, time.May, 31)))
}

func TestService_MalformedDocumentsLoadEmpty(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Save(ctx, store.KeyTransactions, []byte(`{not json`)))
	require.NoError(t, kv.Save(ctx, store.KeyRecurring, []byte(`"nope"`)))
	require.NoError(t, kv.Save(ctx, store.KeyLedger, []byte(`[1,2,3]`)))

	f := newFixture(t, kv)

	assert.Empty(t, f.svc.Transactions())
	assert.Empty(t, f.svc.Rules())
	l, err := f.svc.Ledger(ctx)
	require.NoError(t, err)
	assert.True(t, l.IsEmpty())
}

func TestService_PersistsLedgerAndPublishesEvents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.May, 2), ledger.KindCredit, "10", "Troco"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Sync(ctx))

	assert.Eventually(t, func() bool {
		raw, ok, _ := f.kv.Load(ctx, store.KeyLedger)
		return ok && len(raw) > 2
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		for _, e := range f.events.Events() {
			if e.Type == notify.EventLedgerReconciled && e.Pass > 0 {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

// =============================================================================
// RECURRING TESTS
// =============================================================================

func TestService_CreateRuleMaterializesCurrentMonth(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rule, err := f.svc.CreateRule(ctx, recurring.Rule{
		Kind:        ledger.KindDebit,
		Amount:      decimal.RequireFromString("1500"),
		Description: "Aluguel",
		DayOfMonth:  5,
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.MustDate(2025, time.May, 1), rule.StartDate)
	assert.Equal(t, ledger.Period{Year: 2025, Month: time.May}, rule.LastPeriod)

	txs := f.svc.TransactionsOn(ledger.MustDate(2025, time.May, 5))
	require.Len(t, txs, 1)
	assert.Equal(t, "🔄 Aluguel", txs[0].Description)
	assert.Equal(t, "-1500.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.May, 5)))
}

func TestService_MaterializeAheadIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	may := ledger.Period{Year: 2025, Month: time.May}

	_, err := f.svc.CreateRule(ctx, recurring.Rule{
		Kind:           ledger.KindCredit,
		Amount:         decimal.RequireFromString("3000"),
		Description:    "Salário",
		DayOfMonth:     31,
		Policy:         recurring.FixedCount,
		RemainingCount: 3,
	})
	require.NoError(t, err)

	results, err := f.svc.MaterializeAhead(ctx, may, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	_, err = f.svc.MaterializeAhead(ctx, may, 4)
	require.NoError(t, err)

	assert.Len(t, f.svc.Transactions(), 3)
	assert.Len(t, f.svc.TransactionsOn(ledger.MustDate(2025, time.June, 30)), 1)
	rule := f.svc.Rules()[0]
	assert.False(t, rule.Active)
	assert.Equal(t, 0, rule.RemainingCount)
	assert.Equal(t, "9000.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.August, 1)))
}

func TestService_MaterializeAheadKeepsProgressWhenMonthRollsOver(t *testing.T) {
	// GIVEN: A rule already materialized for May
	// WHEN: The clock moves to August while June is being inserted
	// THEN: July is rejected as past, but June stays counted,
	//       reconciled and persisted

	var clock atomic.Int64
	clock.Store(may2025.UnixNano())
	n := 0
	kv := store.NewMemory()
	svc, err := diary.New(diary.Options{
		KV:        kv,
		Publisher: notify.Nop{},
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return time.Unix(0, clock.Load()).UTC() },
		LogOptions: []ledger.LogOption{
			ledger.WithIDGenerator(func() ledger.TransactionID {
				n++
				if n == 2 {
					clock.Store(time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC).UnixNano())
				}
				return ledger.TransactionID(fmt.Sprintf("tx-%d", n))
			}),
		},
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx))
	svc.Start()
	t.Cleanup(svc.Stop)

	rule, err := svc.CreateRule(ctx, recurring.Rule{
		Kind:        ledger.KindDebit,
		Amount:      decimal.RequireFromString("100"),
		Description: "Academia",
		DayOfMonth:  5,
	})
	require.NoError(t, err)

	results, err := svc.MaterializeAhead(ctx, ledger.Period{Year: 2025, Month: time.June}, 3)

	assert.ErrorIs(t, err, recurring.ErrPastPeriod)
	require.Len(t, results, 1)
	require.Len(t, results[0].Created, 1)
	stored, err := svc.Rule(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Period{Year: 2025, Month: time.June}, stored.LastPeriod)
	assert.Equal(t, "-200.00", balanceAt(t, svc, ledger.MustDate(2025, time.June, 5)))

	raw, ok, err := kv.Load(ctx, store.KeyTransactions)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), "tx-2")
}

func TestService_MaterializePastPeriodRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Materialize(context.Background(), ledger.Period{Year: 2025, Month: time.April})

	assert.ErrorIs(t, err, recurring.ErrPastPeriod)
}

func TestService_CancelledRuleStopsButKeepsTransactions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rule, err := f.svc.CreateRule(ctx, recurring.Rule{
		Kind:        ledger.KindDebit,
		Amount:      decimal.RequireFromString("39.90"),
		Description: "Streaming",
		DayOfMonth:  10,
	})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, cancelled.Active)

	_, err = f.svc.MaterializeAhead(ctx, ledger.Period{Year: 2025, Month: time.May}, 3)
	require.NoError(t, err)
	assert.Len(t, f.svc.Transactions(), 1)

	_, err = f.svc.DeleteRule(ctx, rule.ID)
	require.NoError(t, err)
	_, err = f.svc.Rule(rule.ID)
	assert.ErrorIs(t, err, recurring.ErrRuleNotFound)
	assert.Len(t, f.svc.Transactions(), 1)
}

func TestRecurringScheduler_RunNow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateRule(ctx, recurring.Rule{
		Kind:        ledger.KindDebit,
		Amount:      decimal.RequireFromString("200"),
		Description: "Academia",
		DayOfMonth:  1,
	})
	require.NoError(t, err)

	sched := diary.NewRecurringScheduler(f.svc, zerolog.Nop())
	sched.Lookahead = 3
	sched.RunNow()

	assert.Len(t, f.svc.Transactions(), 3)
	assert.Len(t, f.svc.TransactionsOn(ledger.MustDate(2025, time.July, 1)), 1)
}

// =============================================================================
// INTEGRITY TESTS
// =============================================================================

func TestService_IntegrityAndRemoveDuplicates(t *testing.T) {
	// GIVEN: A persisted document holding the same purchase twice
	// WHEN: Integrity is checked and duplicates are removed
	// THEN: The first copy is kept and the balance counts it once

	kv := store.NewMemory()
	ctx := context.Background()
	doc := `[
		{"id":"a","date":"2025-03-01","type":"diario","amount":25,"description":"Café"},
		{"id":"b","date":"2025-03-01","type":"diario","amount":25,"description":"café "}
	]`
	require.NoError(t, kv.Save(ctx, store.KeyTransactions, []byte(doc)))
	f := newFixture(t, kv)

	report, err := f.svc.Integrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, ledger.TransactionID("b"), report.Duplicates[0].ID)
	assert.Equal(t, "-50.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.March, 1)))

	removed, err := f.svc.RemoveDuplicates(ctx)
	require.NoError(t, err)

	require.Len(t, removed, 1)
	assert.Equal(t, ledger.TransactionID("b"), removed[0].ID)
	assert.Len(t, f.svc.Transactions(), 1)
	assert.Equal(t, "-25.00", balanceAt(t, f.svc, ledger.MustDate(2025, time.March, 1)))

	again, err := f.svc.RemoveDuplicates(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestService_Reset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddTransaction(ctx, tx(ledger.MustDate(2025, time.May, 1), ledger.KindCredit, "10", "x"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Reset(ctx))

	assert.Empty(t, f.svc.Transactions())
	l, err := f.svc.Ledger(ctx)
	require.NoError(t, err)
	assert.True(t, l.IsEmpty())

	var reset bool
	for _, e := range f.events.Events() {
		reset = reset || e.Type == notify.EventLedgerReset
	}
	assert.True(t, reset)
}
