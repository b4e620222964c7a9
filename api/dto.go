/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Records that are
  also persisted (transactions, rules, ledger days) reuse the factory wire
  shapes, so the API and the stored documents speak the same vocabulary.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Transactions:
    TransactionRequest, factory.TransactionJSON

  Ledger:
    DayDTO, MonthResponse, YearTotalsResponse, BalanceDTO

  Recurring:
    factory.RuleJSON, MaterializeRequest, MaterializeResultDTO

  Integrity:
    IntegrityReportDTO, IssueDTO

VALIDATION:
  Validation is done in the engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ../factory: Persisted wire shapes
*/
package api

import (
	"encoding/json"

	"github.com/warp/finance-diary/factory"
	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/recurring"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest creates or replaces a transaction.
type TransactionRequest struct {
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Amount      json.RawMessage `json:"amount"`
	Description string          `json:"description"`
}

func (r TransactionRequest) wire() factory.TransactionJSON {
	return factory.TransactionJSON{
		Date:        r.Date,
		Type:        r.Type,
		Amount:      r.Amount,
		Description: r.Description,
	}
}

// DuplicateResponse is returned with 409 when an insert matches an
// existing transaction.
type DuplicateResponse struct {
	Error      string `json:"error"`
	ExistingID string `json:"existing_id"`
}

// =============================================================================
// LEDGER
// =============================================================================

// DayDTO is one present ledger day.
type DayDTO struct {
	Date string `json:"date"`
	factory.EntryJSON
}

// MonthResponse is one month of the ledger. Month is 1-12.
type MonthResponse struct {
	Year   int                `json:"year"`
	Month  int                `json:"month"`
	Days   []DayDTO           `json:"days"`
	Totals factory.TotalsJSON `json:"totals"`
}

type YearTotalsResponse struct {
	Year   int                `json:"year"`
	Totals factory.TotalsJSON `json:"totals"`
}

// BalanceDTO is the projected balance at a date.
type BalanceDTO struct {
	Date    string          `json:"date"`
	Balance json.RawMessage `json:"balance"`
	Present bool            `json:"present"`
	Day     *DayDTO         `json:"day,omitempty"`
}

// =============================================================================
// RECURRING
// =============================================================================

// MaterializeRequest expands rules into period and the following months.
type MaterializeRequest struct {
	Period string `json:"period"` // YYYY-MM
	Months int    `json:"months,omitempty"`
}

type MaterializeResultDTO struct {
	Period      string                    `json:"period"`
	Created     []factory.TransactionJSON `json:"created"`
	Duplicates  int                       `json:"duplicates"`
	Failed      int                       `json:"failed"`
	Deactivated []string                  `json:"deactivated,omitempty"`
}

// =============================================================================
// INTEGRITY
// =============================================================================

type IssueDTO struct {
	Code          string `json:"code"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message"`
}

type IntegrityStatsDTO struct {
	Total  int    `json:"total"`
	Unique int    `json:"unique"`
	First  string `json:"first,omitempty"`
	Last   string `json:"last,omitempty"`
}

// IntegrityReportDTO is the result of an integrity check.
type IntegrityReportDTO struct {
	Valid      bool                      `json:"valid"`
	Errors     []IssueDTO                `json:"errors"`
	Warnings   []IssueDTO                `json:"warnings"`
	Duplicates []factory.TransactionJSON `json:"duplicates"`
	Stats      IntegrityStatsDTO         `json:"stats"`
}

// CleanupResponse lists the transactions removed as duplicates.
type CleanupResponse struct {
	Removed []factory.TransactionJSON `json:"removed"`
	Count   int                       `json:"count"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusResponse acknowledges an operation with no payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toIssueDTOs(issues []ledger.Issue) []IssueDTO {
	out := make([]IssueDTO, len(issues))
	for i, is := range issues {
		out[i] = IssueDTO{Code: is.Code, TransactionID: string(is.TransactionID), Message: is.Message}
	}
	return out
}

func dateString(d ledger.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func ruleIDs(ids []recurring.RuleID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
