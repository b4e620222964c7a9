/*
Package ledger provides the finance diary engine.

PURPOSE:
  Users record daily credits, debits and incidental spend. The
  transaction log is the source of truth; the per-day ledger is a derived
  cache that carries a running balance from day to day, across month and
  year boundaries, and a little past the last recorded year so future
  days can be projected.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: credit (entrada), debit (saida) or incidental (diario)
  - Transaction: one dated amount; replaced by value on edit, never
    mutated in place
  - TransactionID: opaque, unique within the log

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Single source of truth: the ledger can always be rebuilt from the log
  3. Sparse storage: only days touched by a transaction (or seeded by
     year-end propagation) have an entry

SEE ALSO:
  - txlog.go: The transaction log and deduplicating insert
  - ledger.go: The sparse per-day table
  - cascade.go: Balance recalculation
  - reconcile.go: Log-to-ledger synchronization
*/
package ledger

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLength bounds Transaction.Description in runes.
const MaxDescriptionLength = 200

// AmountPlaces is the number of decimal places an amount may carry.
const AmountPlaces = 2

// ValidAmount reports whether a is non-negative and has at most
// AmountPlaces decimal places.
func ValidAmount(a decimal.Decimal) bool {
	return !a.IsNegative() && a.Equal(a.Round(AmountPlaces))
}

// =============================================================================
// KIND
// =============================================================================

// Kind classifies a transaction for aggregation.
type Kind string

const (
	KindCredit     Kind = "credit"     // money in
	KindDebit      Kind = "debit"      // planned money out
	KindIncidental Kind = "incidental" // day-to-day spend
)

// Kinds lists every valid Kind in aggregation order.
var Kinds = []Kind{KindCredit, KindDebit, KindIncidental}

func (k Kind) Valid() bool {
	switch k {
	case KindCredit, KindDebit, KindIncidental:
		return true
	}
	return false
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionID string

// Transaction is one dated amount in the diary.
type Transaction struct {
	ID          TransactionID
	Date        Date
	Kind        Kind
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// Validate checks the fields a caller controls. ID and CreatedAt are
// assigned by the log when empty.
func (tx Transaction) Validate() error {
	if tx.Date.IsZero() {
		return &ValidationError{Field: "date", Err: ErrMissingField}
	}
	if tx.Kind == "" {
		return &ValidationError{Field: "kind", Err: ErrMissingField}
	}
	if !tx.Kind.Valid() {
		return &ValidationError{Field: "kind", Value: string(tx.Kind), Err: ErrInvalidKind}
	}
	if !ValidAmount(tx.Amount) {
		return &ValidationError{Field: "amount", Value: tx.Amount.String(), Err: ErrInvalidAmount}
	}
	if utf8.RuneCountInString(tx.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	return nil
}

// Fingerprint returns the dedup key of the transaction.
func (tx Transaction) Fingerprint() Fingerprint {
	return Fingerprint{
		Date:        tx.Date,
		Kind:        tx.Kind,
		Description: normalizeDescription(tx.Description),
		Cents:       tx.Amount.StringFixed(AmountPlaces),
	}
}

func normalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
