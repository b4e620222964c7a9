/*
integrity.go - Integrity checks on a raw transaction document

PURPOSE:
  The typed checks in ledger/integrity.go only see transactions that could
  be represented. A persisted document can hold worse: unparseable dates,
  amounts that are not numbers, unknown types. CheckDocument reports those
  per record, then runs the typed checks on the records that survived.

SEE ALSO:
  - ../ledger/integrity.go: Typed checks, Report
*/
package factory

import (
	"encoding/json"
	"errors"

	"github.com/warp/finance-diary/ledger"
)

// CheckDocument validates a raw transactions document. It never modifies
// or repairs anything.
func (f *Factory) CheckDocument(raw []byte) ledger.Report {
	report := ledger.Report{Valid: true}

	list, err := decodeList(raw)
	if err != nil {
		report.AddError(ledger.IssueMalformedDocument, "", "%v", err)
		return report
	}

	valid := make([]ledger.Transaction, 0, len(list))
	for i, item := range list {
		var tj TransactionJSON
		if err := json.Unmarshal(item, &tj); err != nil {
			report.AddError(ledger.IssueMalformedDocument, "", "record %d: %v", i, err)
			continue
		}
		id := ledger.TransactionID(tj.ID)
		if tj.ID == "" {
			report.AddError(ledger.IssueMissingField, "", "record %d: missing id", i)
		}

		tx, err := f.TransactionFromJSON(tj)
		if err != nil {
			report.AddError(issueCode(err), id, "record %d: %v", i, err)
			continue
		}
		if !ledger.ValidAmount(tx.Amount) {
			report.AddError(ledger.IssueInvalidAmount, id, "record %d: invalid amount %s", i, tx.Amount)
			continue
		}
		if tj.ID == "" {
			continue
		}
		valid = append(valid, tx)
	}

	report = report.Merge(ledger.CheckTransactions(valid))
	report.Stats.Total = len(list)
	return report
}

func issueCode(err error) string {
	switch {
	case errors.Is(err, ledger.ErrMissingField):
		return ledger.IssueMissingField
	case errors.Is(err, ledger.ErrInvalidDate):
		return ledger.IssueInvalidDate
	case errors.Is(err, ledger.ErrInvalidKind):
		return ledger.IssueInvalidKind
	case errors.Is(err, ledger.ErrInvalidAmount):
		return ledger.IssueInvalidAmount
	}
	return ledger.IssueMalformedDocument
}
