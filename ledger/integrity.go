/*
integrity.go - Integrity checks over the log and the ledger

PURPOSE:
  Produces a report of structural problems. The checker never repairs
  anything; CleanupDuplicates exists for callers that decide to act on a
  report.

CHECKS:
  Transactions (errors):
    - missing id, date or kind
    - negative amount
    - unknown kind
    - duplicate id
  Transactions (warnings):
    - duplicate fingerprint (every copy after the first is listed in
      Report.Duplicates)
    - implausible year
  Ledger (errors):
    - a balance that breaks Balance = previous + credit - debit - incidental

SEE ALSO:
  - ../factory/integrity.go: Checks raw persisted documents, where
    malformed dates and non-numeric amounts can still appear
*/
package ledger

import (
	"fmt"
)

// Years outside this range are reported as implausible.
const (
	MinPlausibleYear = 2000
	MaxPlausibleYear = 2100
)

// Issue codes.
const (
	IssueMissingField         = "missing_field"
	IssueInvalidDate          = "invalid_date"
	IssueInvalidAmount        = "invalid_amount"
	IssueInvalidKind          = "invalid_kind"
	IssueDuplicateID          = "duplicate_id"
	IssueDuplicateFingerprint = "duplicate_fingerprint"
	IssueImplausibleYear      = "implausible_year"
	IssueBalanceMismatch      = "balance_mismatch"
	IssueMalformedDocument    = "malformed_document"
)

// Issue is one finding.
type Issue struct {
	Code          string
	TransactionID TransactionID
	Message       string
}

func (i Issue) String() string {
	if i.TransactionID == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s (tx: %s)", i.Code, i.Message, i.TransactionID)
}

// Stats summarizes the checked transactions.
type Stats struct {
	Total  int
	Unique int // distinct IDs
	First  Date
	Last   Date
}

// Report is the outcome of a check. Valid is false when Errors is non-empty;
// warnings alone keep it valid.
type Report struct {
	Valid      bool
	Errors     []Issue
	Warnings   []Issue
	Duplicates []Transaction
	Stats      Stats
}

func newReport() Report {
	return Report{Valid: true}
}

// AddError records an error and invalidates the report.
func (r *Report) AddError(code string, id TransactionID, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, TransactionID: id, Message: fmt.Sprintf(format, args...)})
	r.Valid = false
}

// AddWarning records a warning.
func (r *Report) AddWarning(code string, id TransactionID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, TransactionID: id, Message: fmt.Sprintf(format, args...)})
}

// Merge folds o into r. Stats come from r unless r has none.
func (r Report) Merge(o Report) Report {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
	r.Duplicates = append(r.Duplicates, o.Duplicates...)
	r.Valid = r.Valid && o.Valid
	if r.Stats.Total == 0 {
		r.Stats = o.Stats
	}
	return r
}

// =============================================================================
// TRANSACTION CHECKS
// =============================================================================

// CheckTransactions validates a log snapshot.
func CheckTransactions(txs []Transaction) Report {
	r := newReport()
	r.Stats.Total = len(txs)

	ids := make(map[TransactionID]struct{}, len(txs))
	groups := make(map[Fingerprint][]Transaction)
	var order []Fingerprint

	for _, tx := range txs {
		if tx.ID == "" || tx.Date.IsZero() || tx.Kind == "" {
			r.AddError(IssueMissingField, tx.ID, "transaction missing required fields (id=%q date=%q kind=%q)",
				tx.ID, tx.Date, tx.Kind)
			continue
		}
		if !tx.Kind.Valid() {
			r.AddError(IssueInvalidKind, tx.ID, "unknown kind %q", tx.Kind)
		}
		if !ValidAmount(tx.Amount) {
			r.AddError(IssueInvalidAmount, tx.ID, "invalid amount %s", tx.Amount)
		}
		if y := tx.Date.Year(); y < MinPlausibleYear || y > MaxPlausibleYear {
			r.AddWarning(IssueImplausibleYear, tx.ID, "implausible year %d", y)
		}

		if _, seen := ids[tx.ID]; seen {
			r.AddError(IssueDuplicateID, tx.ID, "duplicate transaction id")
			r.Duplicates = append(r.Duplicates, tx)
		} else {
			ids[tx.ID] = struct{}{}
		}

		fp := tx.Fingerprint()
		if _, ok := groups[fp]; !ok {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], tx)

		if r.Stats.First.IsZero() || tx.Date.Before(r.Stats.First) {
			r.Stats.First = tx.Date
		}
		if tx.Date.After(r.Stats.Last) {
			r.Stats.Last = tx.Date
		}
	}

	for _, fp := range order {
		group := groups[fp]
		if len(group) < 2 {
			continue
		}
		r.AddWarning(IssueDuplicateFingerprint, group[0].ID, "%d transactions share fingerprint %s", len(group), fp)
		r.Duplicates = append(r.Duplicates, group[1:]...)
	}

	r.Stats.Unique = len(ids)
	return r
}

// =============================================================================
// LEDGER CHECKS
// =============================================================================

// CheckLedger verifies the balance formula on every present day.
func CheckLedger(l *Ledger) Report {
	r := newReport()
	l.Range(func(d Date, e Entry) bool {
		if e.Credit.IsNegative() || e.Debit.IsNegative() || e.Incidental.IsNegative() {
			r.AddError(IssueInvalidAmount, "", "negative aggregate on %s", d)
		}
		want := l.PreviousBalance(d).Add(e.Net())
		if !e.Balance.Equal(want) {
			r.AddError(IssueBalanceMismatch, "", "balance on %s is %s, expected %s", d, e.Balance, want)
		}
		return true
	})
	return r
}
