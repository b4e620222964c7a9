/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on sentinels with errors.Is and read details with
  errors.As on the structured types.

ERROR CATEGORIES:
  1. Validation errors - Malformed dates, amounts, kinds, missing fields
  2. Duplicate outcome - A fingerprint collision on insert. This is an
     expected result, not a failure: callers report it and move on
  3. Lookup errors     - Unknown transaction IDs

RecalculationOverflow is not an error value. The cascade logs it and
flags RecalcResult.Overflow instead of failing the pass.

SEE ALSO:
  - txlog.go: Returns DuplicateError and ValidationError
  - ../api/handlers.go: Maps these errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDate is returned for dates outside the calendar or not in
	// YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidAmount is returned for negative amounts and amounts finer
	// than a cent.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidKind is returned for a transaction kind other than credit,
	// debit or incidental.
	ErrInvalidKind = errors.New("invalid transaction kind")

	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("missing required field")

	// ErrDescriptionTooLong is returned when a description exceeds
	// MaxDescriptionLength runes.
	ErrDescriptionTooLong = errors.New("description too long")

	// ErrDuplicate is returned when a transaction with the same fingerprint
	// already exists. Expected on double submits and recurring re-runs.
	ErrDuplicate = errors.New("duplicate transaction")

	// ErrDuplicateID is returned when inserting a transaction whose ID is
	// already in the log.
	ErrDuplicateID = errors.New("duplicate transaction id")

	// ErrTransactionNotFound is returned for unknown transaction IDs.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DuplicateError identifies the transaction already holding the fingerprint.
type DuplicateError struct {
	Fingerprint Fingerprint
	ExistingID  TransactionID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate transaction: %s (existing: %s)", e.Fingerprint, e.ExistingID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrDescriptionTooLong) ||
		errors.Is(err, ErrDuplicateID)
}

// IsDuplicate returns true for the duplicate-insert outcome.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}
