/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Transaction create / duplicate / update / delete status codes
- Ledger month, year and balance reads
- Recurring rule creation and materialization
- Integrity, reconcile and reset
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-diary/diary"
	"github.com/warp/finance-diary/factory"
	"github.com/warp/finance-diary/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var may2025 = time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, err := diary.New(diary.Options{
		KV:     store.NewMemory(),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return may2025 },
	})
	require.NoError(t, err)
	require.NoError(t, svc.Open(context.Background()))
	svc.Start()
	t.Cleanup(svc.Stop)

	return NewRouter(NewHandler(svc, nil, zerolog.Nop()), zerolog.Nop(), nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const salary = `{"date":"2025-01-05","type":"entrada","amount":1000,"description":"Salário"}`

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestCreateTransaction_Created(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/transactions", salary)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[factory.TransactionJSON](t, rec)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "2025-01-05", tx.Date)
	assert.Equal(t, "entrada", tx.Type)
	assert.JSONEq(t, `1000`, string(tx.Amount))
}

func TestCreateTransaction_DuplicateIsConflict(t *testing.T) {
	router := newTestRouter(t)
	first := decode[factory.TransactionJSON](t, do(t, router, http.MethodPost, "/api/transactions", salary))

	rec := do(t, router, http.MethodPost, "/api/transactions",
		`{"date":"2025-01-05","type":"entrada","amount":"1000.00","description":" salário"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, first.ID, decode[DuplicateResponse](t, rec).ExistingID)
}

func TestCreateTransaction_BadRequests(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown type", `{"date":"2025-01-05","type":"gift","amount":1}`},
		{"impossible date", `{"date":"2025-02-30","type":"diario","amount":1}`},
		{"negative amount", `{"date":"2025-01-05","type":"diario","amount":-3}`},
		{"fraction of a cent", `{"date":"2025-01-05","type":"diario","amount":10.001,"description":"fuel"}`},
		{"missing amount", `{"date":"2025-01-05","type":"diario"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	router := newTestRouter(t)
	created := decode[factory.TransactionJSON](t, do(t, router, http.MethodPost, "/api/transactions", salary))

	rec := do(t, router, http.MethodPut, "/api/transactions/"+created.ID,
		`{"date":"2025-01-06","type":"entrada","amount":1200,"description":"Salário"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-01-06", decode[factory.TransactionJSON](t, rec).Date)

	balance := decode[BalanceDTO](t, do(t, router, http.MethodGet, "/api/balance/2025-01-31", nil))
	assert.JSONEq(t, `1200`, string(balance.Balance))

	rec = do(t, router, http.MethodDelete, "/api/transactions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/transactions/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/api/transactions/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPut, "/api/transactions/missing", salary).Code)
}

func TestListTransactions_ByDate(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/transactions", salary)
	do(t, router, http.MethodPost, "/api/transactions", `{"date":"2025-01-06","type":"diario","amount":9.9,"description":"Café"}`)

	all := decode[[]factory.TransactionJSON](t, do(t, router, http.MethodGet, "/api/transactions", nil))
	oneDay := decode[[]factory.TransactionJSON](t, do(t, router, http.MethodGet, "/api/transactions?date=2025-01-06", nil))

	assert.Len(t, all, 2)
	require.Len(t, oneDay, 1)
	assert.Equal(t, "Café", oneDay[0].Description)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/transactions?date=06/01/2025", nil).Code)
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestLedgerReads(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/transactions", salary)

	month := decode[MonthResponse](t, do(t, router, http.MethodGet, "/api/ledger/2025/1", nil))
	require.Len(t, month.Days, 1)
	assert.Equal(t, "2025-01-05", month.Days[0].Date)
	assert.Equal(t, "R$ 1.000,00", month.Totals.Credit)
	assert.JSONEq(t, `1000`, string(month.Totals.Closing))

	year := decode[YearTotalsResponse](t, do(t, router, http.MethodGet, "/api/ledger/2025/totals", nil))
	assert.Equal(t, 2025, year.Year)
	assert.Equal(t, "R$ 1.000,00", year.Totals.Net)

	full := decode[factory.LedgerJSON](t, do(t, router, http.MethodGet, "/api/ledger", nil))
	assert.Contains(t, full["2025"]["0"], "5")

	projected := decode[BalanceDTO](t, do(t, router, http.MethodGet, "/api/balance/2025-03-01", nil))
	assert.False(t, projected.Present)
	assert.JSONEq(t, `1000`, string(projected.Balance))

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/ledger/2025/13", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/ledger/year/1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/balance/2025-02-29", nil).Code)
}

// =============================================================================
// RECURRING TESTS
// =============================================================================

func TestCreateRule_MaterializesCurrentMonth(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/recurring",
		`{"type":"saida","amount":1500,"description":"Aluguel","dayOfMonth":5}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[factory.RuleJSON](t, rec)
	assert.Equal(t, "until-cancelled", rule.Frequency)
	assert.Equal(t, "2025-05-01", rule.StartDate)
	assert.Equal(t, "2025-05", rule.LastProcessedPeriod)
	assert.True(t, rule.IsActive)

	txs := decode[[]factory.TransactionJSON](t, do(t, router, http.MethodGet, "/api/transactions?date=2025-05-05", nil))
	require.Len(t, txs, 1)
	assert.Equal(t, "🔄 Aluguel", txs[0].Description)
}

func TestCreateRule_Invalid(t *testing.T) {
	router := newTestRouter(t)

	for _, body := range []string{
		`{"type":"diario","amount":10,"description":"x","dayOfMonth":5}`,
		`{"type":"saida","amount":10,"description":"x","dayOfMonth":32}`,
		`{"type":"saida","amount":10,"description":"","dayOfMonth":5}`,
		`{"type":"saida","amount":10,"description":"x","dayOfMonth":5,"frequency":"fixed-count","remainingCount":0}`,
	} {
		rec := do(t, router, http.MethodPost, "/api/recurring", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestMaterialize(t *testing.T) {
	router := newTestRouter(t)
	rule := decode[factory.RuleJSON](t, do(t, router, http.MethodPost, "/api/recurring",
		`{"type":"entrada","amount":3000,"description":"Salário","dayOfMonth":31}`))

	rec := do(t, router, http.MethodPost, "/api/recurring/materialize", MaterializeRequest{Period: "2025-06", Months: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[[]MaterializeResultDTO](t, rec)
	require.Len(t, results, 2)
	require.Len(t, results[0].Created, 1)
	assert.Equal(t, "2025-06-30", results[0].Created[0].Date)
	assert.Equal(t, "2025-07-31", results[1].Created[0].Date)

	past := do(t, router, http.MethodPost, "/api/recurring/materialize", MaterializeRequest{Period: "2025-04"})
	assert.Equal(t, http.StatusBadRequest, past.Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, router, http.MethodPost, "/api/recurring/materialize", MaterializeRequest{Period: "2025-06", Months: 25}).Code)

	cancelled := decode[factory.RuleJSON](t, do(t, router, http.MethodPost, "/api/recurring/"+rule.ID+"/cancel", nil))
	assert.False(t, cancelled.IsActive)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodDelete, "/api/recurring/"+rule.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/recurring/"+rule.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/recurring/"+rule.ID+"/cancel", nil).Code)

	txs := decode[[]factory.TransactionJSON](t, do(t, router, http.MethodGet, "/api/transactions", nil))
	assert.Len(t, txs, 3)
}

// =============================================================================
// MAINTENANCE TESTS
// =============================================================================

func TestIntegrityReconcileAndReset(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/transactions", salary)

	report := decode[IntegrityReportDTO](t, do(t, router, http.MethodGet, "/api/integrity", nil))
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.Stats.Total)
	assert.Equal(t, "2025-01-05", report.Stats.First)

	cleanup := decode[CleanupResponse](t, do(t, router, http.MethodPost, "/api/integrity/cleanup", nil))
	assert.Equal(t, 0, cleanup.Count)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/reconcile", nil).Code)

	rec := do(t, router, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reset", decode[StatusResponse](t, rec).Status)

	txs := decode[[]factory.TransactionJSON](t, do(t, router, http.MethodGet, "/api/transactions", nil))
	assert.Empty(t, txs)
}
