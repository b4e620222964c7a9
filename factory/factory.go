/*
Package factory converts between the persisted JSON documents and the
engine's Go types.

PURPOSE:
  Every document the diary persists goes through this package: the
  transaction log, the ledger cache and the recurring rule set. The wire
  shapes use the user-facing vocabulary ("entrada", "saida", "diario") and
  the ledger's day aggregates are display strings; the engine works with
  kinds and decimals. This package is the boundary between the two.

JSON SCHEMA:
  transactions:
    [{"id": "…", "date": "2025-01-05", "type": "entrada", "amount": 1000,
      "description": "Salário", "createdAt": "2025-01-05T10:00:00Z"}]

  financialData (months are 0-based, as the documents were first written):
    {"2025": {"0": {"5": {"entrada": "R$ 1.000,00", "saida": "R$ 0,00",
                          "diario": "R$ 0,00", "balance": 1000}}}}

  recurringTransactions:
    [{"id": "…", "type": "saida", "amount": 1500, "description": "Aluguel",
      "dayOfMonth": 5, "frequency": "fixed-count", "remainingCount": 3,
      "startDate": "2025-01-01", "isActive": true,
      "createdAt": "2025-01-01T08:00:00Z", "lastProcessedPeriod": "2025-04"}]

DECODING IS LENIENT:
  - An empty document is empty state
  - Malformed JSON returns an error wrapping ErrMalformedDocument; callers
    log it and start from empty state
  - Individual records that cannot be represented are skipped and
    counted; CheckDocument reports them in detail

  Amounts are accepted as JSON numbers, numeric strings, or display
  strings ("R$ 1.234,56"). They are always written as JSON numbers.

SEE ALSO:
  - integrity.go: CheckDocument for raw documents
  - ../currency: Display format of ledger aggregates
  - ../diary/service.go: Load and save paths
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-diary/currency"
	"github.com/warp/finance-diary/ledger"
)

// ErrMalformedDocument is returned when a persisted document is not the
// JSON shape expected for its key.
var ErrMalformedDocument = errors.New("malformed document")

// Wire names of the transaction kinds.
const (
	TypeCredit     = "entrada"
	TypeDebit      = "saida"
	TypeIncidental = "diario"
)

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts documents. The zero value is not usable; use New.
type Factory struct {
	money  currency.Codec
	logger zerolog.Logger
}

// New creates a factory that formats ledger aggregates with money.
func New(money currency.Codec, logger zerolog.Logger) *Factory {
	return &Factory{money: money, logger: logger}
}

// Default is a BRL factory that does not log.
func Default() *Factory {
	return New(currency.BRL{}, zerolog.Nop())
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func kindToType(k ledger.Kind) string {
	switch k {
	case ledger.KindCredit:
		return TypeCredit
	case ledger.KindDebit:
		return TypeDebit
	case ledger.KindIncidental:
		return TypeIncidental
	}
	return string(k)
}

// parseType accepts the wire names and, for documents written by hand,
// the engine's own kind names.
func parseType(s string) (ledger.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case TypeCredit, string(ledger.KindCredit):
		return ledger.KindCredit, nil
	case TypeDebit, string(ledger.KindDebit):
		return ledger.KindDebit, nil
	case TypeIncidental, string(ledger.KindIncidental):
		return ledger.KindIncidental, nil
	case "":
		return "", &ledger.ValidationError{Field: "type", Err: ledger.ErrMissingField}
	}
	return "", &ledger.ValidationError{Field: "type", Value: s, Err: ledger.ErrInvalidKind}
}

func numberJSON(d decimal.Decimal) json.RawMessage {
	return json.RawMessage(d.String())
}

// parseAmount reads a JSON number, a numeric string or a display string.
func (f *Factory) parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, &ledger.ValidationError{Field: "amount", Err: ledger.ErrMissingField}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: string(raw), Err: ledger.ErrInvalidAmount}
		}
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d, nil
		}
		d, err := f.money.Parse(s)
		if err != nil {
			return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: s, Err: ledger.ErrInvalidAmount}
		}
		return d, nil
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: string(raw), Err: ledger.ErrInvalidAmount}
	}
	return d, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	ledger.DateLayout,
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseDay accepts "YYYY-MM-DD" or a full ISO timestamp, keeping the
// calendar date as written.
func parseDay(s string) (ledger.Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(ledger.DateLayout) && s[len(ledger.DateLayout)] == 'T' {
		s = s[:len(ledger.DateLayout)]
	}
	return ledger.ParseDate(s)
}

// decodeList decodes a JSON array of records, one raw message each.
func decodeList(raw []byte) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return list, nil
}

func atoiKey(s string, min, max int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}
