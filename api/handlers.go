/*
handlers.go - HTTP API handlers for the finance diary

PURPOSE:
  Exposes the diary via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to diary.Service.

ENDPOINTS:
  Transactions:
    GET    /api/transactions              List (optional ?date=YYYY-MM-DD)
    POST   /api/transactions              Record a transaction
    GET    /api/transactions/{id}         Get one transaction
    PUT    /api/transactions/{id}         Replace a transaction
    DELETE /api/transactions/{id}         Delete a transaction

  Ledger:
    GET    /api/ledger                    Full ledger (persisted wire shape)
    GET    /api/ledger/{year}/{month}     Present days and totals (month 1-12)
    GET    /api/ledger/{year}/totals      Year totals
    GET    /api/balance/{date}            Projected end-of-day balance

  Recurring:
    GET    /api/recurring                 List rules
    POST   /api/recurring                 Create a rule
    GET    /api/recurring/{id}            Get one rule
    POST   /api/recurring/{id}/cancel     Cancel a rule
    DELETE /api/recurring/{id}            Delete a rule
    POST   /api/recurring/materialize     Expand rules into months

  Maintenance:
    GET    /api/integrity                 Integrity report
    POST   /api/integrity/cleanup         Remove fingerprint duplicates
    POST   /api/reconcile                 Force a full recalculation
    POST   /api/reset                     Clear all data

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert the body through the factory wire shapes
  3. Call the service
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid rules, past periods
  - 404: Transaction or rule not found
  - 409: Duplicate transaction
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization. The diary is single-user and meant
  to run locally.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/finance-diary/diary"
	"github.com/warp/finance-diary/factory"
	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/recurring"
)

// DefaultMaterializeMonths is used when a materialize request omits months.
const DefaultMaterializeMonths = 1

// MaxMaterializeMonths bounds a single materialize request.
const MaxMaterializeMonths = 24

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *diary.Service
	Factory *factory.Factory

	logger zerolog.Logger
}

// NewHandler creates a new handler for svc.
func NewHandler(svc *diary.Service, f *factory.Factory, logger zerolog.Logger) *Handler {
	if f == nil {
		f = factory.Default()
	}
	return &Handler{
		Service: svc,
		Factory: f,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns the log in chronological order.
// GET /api/transactions?date=YYYY-MM-DD
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var txs []ledger.Transaction
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		txs = h.Service.TransactionsOn(d)
	} else {
		txs = h.Service.Transactions()
	}

	dtos := make([]factory.TransactionJSON, len(txs))
	for i, tx := range txs {
		dtos[i] = h.Factory.TransactionToJSON(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransaction returns one transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Service.Transaction(ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.TransactionToJSON(tx))
}

// CreateTransaction records a transaction. A duplicate is a 409 carrying
// the ID of the transaction already recorded.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	stored, err := h.Service.AddTransaction(r.Context(), tx)
	if err != nil {
		h.writeServiceError(w, "Failed to record transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.TransactionToJSON(stored))
}

// UpdateTransaction replaces a transaction by value.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	updated, err := h.Service.UpdateTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), tx)
	if err != nil {
		h.writeServiceError(w, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.TransactionToJSON(updated))
}

// DeleteTransaction removes a transaction and returns it.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Service.DeleteTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to delete transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.TransactionToJSON(removed))
}

func (h *Handler) decodeTransaction(w http.ResponseWriter, r *http.Request) (ledger.Transaction, bool) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return ledger.Transaction{}, false
	}
	tx, err := h.Factory.TransactionFromJSON(req.wire())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return ledger.Transaction{}, false
	}
	return tx, true
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedger returns the whole ledger in its persisted shape.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.Service.Ledger(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to read ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.LedgerToJSON(l))
}

// GetMonth returns the present days of a month with its totals.
// GET /api/ledger/{year}/{month}, month 1-12
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, chi.URLParam(r, "year"))
	if !ok {
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month (use 1-12)", err)
		return
	}

	view, err := h.Service.Month(r.Context(), ledger.Period{Year: year, Month: time.Month(month)})
	if err != nil {
		h.writeServiceError(w, "Failed to read month", err)
		return
	}

	days := make([]DayDTO, len(view.Days))
	for i, d := range view.Days {
		days[i] = DayDTO{Date: d.Date.String(), EntryJSON: h.Factory.EntryToJSON(d.Entry)}
	}
	writeJSON(w, http.StatusOK, MonthResponse{
		Year:   year,
		Month:  month,
		Days:   days,
		Totals: h.Factory.TotalsToJSON(view.Totals),
	})
}

// GetYearTotals sums one calendar year.
func (h *Handler) GetYearTotals(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, chi.URLParam(r, "year"))
	if !ok {
		return
	}
	totals, err := h.Service.YearTotals(r.Context(), year)
	if err != nil {
		h.writeServiceError(w, "Failed to read year totals", err)
		return
	}
	writeJSON(w, http.StatusOK, YearTotalsResponse{Year: year, Totals: h.Factory.TotalsToJSON(totals)})
}

// GetBalance returns the projected balance at the end of a day.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	d, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	l, err := h.Service.Ledger(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to read ledger", err)
		return
	}

	dto := BalanceDTO{Date: d.String()}
	if e, ok := l.Get(d); ok {
		entry := h.Factory.EntryToJSON(e)
		dto.Present = true
		dto.Balance = entry.Balance
		dto.Day = &DayDTO{Date: d.String(), EntryJSON: entry}
	} else {
		dto.Balance = json.RawMessage(ledger.BalanceAt(l, d).String())
	}
	writeJSON(w, http.StatusOK, dto)
}

func parseYear(w http.ResponseWriter, raw string) (int, bool) {
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}

// =============================================================================
// RECURRING HANDLERS
// =============================================================================

// ListRules returns every recurring rule.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.Service.Rules()
	dtos := make([]factory.RuleJSON, len(rules))
	for i, rule := range rules {
		dtos[i] = h.Factory.RuleToJSON(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Service.Rule(recurring.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.RuleToJSON(rule))
}

// CreateRule creates a rule and materializes it for the current month.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rule, err := h.Factory.NewRuleFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	created, err := h.Service.CreateRule(r.Context(), rule)
	if err != nil {
		h.writeServiceError(w, "Failed to create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.RuleToJSON(created))
}

// CancelRule stops a rule. Its transactions stay.
func (h *Handler) CancelRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Service.CancelRule(r.Context(), recurring.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to cancel rule", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.RuleToJSON(rule))
}

// DeleteRule removes a rule. Its transactions stay.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Service.DeleteRule(r.Context(), recurring.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to delete rule", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.RuleToJSON(rule))
}

// Materialize expands the active rules into a run of months.
// POST /api/recurring/materialize {"period": "2025-06", "months": 3}
func (h *Handler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req MaterializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := ledger.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}
	months := req.Months
	if months == 0 {
		months = DefaultMaterializeMonths
	}
	if months < 1 || months > MaxMaterializeMonths {
		writeError(w, http.StatusBadRequest, "months must be between 1 and 24", nil)
		return
	}

	var results []recurring.Result
	if months == 1 {
		res, err := h.Service.Materialize(r.Context(), p)
		if err != nil {
			h.writeServiceError(w, "Failed to materialize rules", err)
			return
		}
		results = []recurring.Result{res}
	} else {
		if results, err = h.Service.MaterializeAhead(r.Context(), p, months); err != nil {
			h.writeServiceError(w, "Failed to materialize rules", err)
			return
		}
	}

	dtos := make([]MaterializeResultDTO, len(results))
	for i, res := range results {
		created := make([]factory.TransactionJSON, len(res.Created))
		for j, tx := range res.Created {
			created[j] = h.Factory.TransactionToJSON(tx)
		}
		dtos[i] = MaterializeResultDTO{
			Period:      res.Period.String(),
			Created:     created,
			Duplicates:  res.Duplicates,
			Failed:      res.Failed,
			Deactivated: ruleIDs(res.Deactivated),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MAINTENANCE HANDLERS
// =============================================================================

// GetIntegrity checks the persisted log and the ledger. It never repairs.
func (h *Handler) GetIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Integrity(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to check integrity", err)
		return
	}

	duplicates := make([]factory.TransactionJSON, len(report.Duplicates))
	for i, tx := range report.Duplicates {
		duplicates[i] = h.Factory.TransactionToJSON(tx)
	}
	writeJSON(w, http.StatusOK, IntegrityReportDTO{
		Valid:      report.Valid,
		Errors:     toIssueDTOs(report.Errors),
		Warnings:   toIssueDTOs(report.Warnings),
		Duplicates: duplicates,
		Stats: IntegrityStatsDTO{
			Total:  report.Stats.Total,
			Unique: report.Stats.Unique,
			First:  dateString(report.Stats.First),
			Last:   dateString(report.Stats.Last),
		},
	})
}

// CleanupDuplicates removes fingerprint duplicates, keeping the first.
func (h *Handler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Service.RemoveDuplicates(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to remove duplicates", err)
		return
	}
	dtos := make([]factory.TransactionJSON, len(removed))
	for i, tx := range removed {
		dtos[i] = h.Factory.TransactionToJSON(tx)
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Removed: dtos, Count: len(dtos)})
}

// Reconcile forces a full recalculation and waits for it.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reconcile(r.Context()); err != nil {
		h.writeServiceError(w, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "reconciled"})
}

// ResetDatabase clears transactions, rules and the ledger.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reset(r.Context()); err != nil {
		h.writeServiceError(w, "Failed to reset", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	var dup *ledger.DuplicateError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, DuplicateResponse{
			Error:      err.Error(),
			ExistingID: string(dup.ExistingID),
		})
	case ledger.IsNotFound(err), errors.Is(err, recurring.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err),
		errors.Is(err, recurring.ErrInvalidRule),
		errors.Is(err, recurring.ErrPastPeriod):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
