/*
transaction.go - Transaction log document

SEE ALSO:
  - factory.go: Schema and leniency rules
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/finance-diary/ledger"
)

// TransactionJSON is the wire form of a transaction.
type TransactionJSON struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Amount      json.RawMessage `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

// TransactionToJSON converts a transaction to its wire form.
func (f *Factory) TransactionToJSON(tx ledger.Transaction) TransactionJSON {
	return TransactionJSON{
		ID:          string(tx.ID),
		Date:        tx.Date.String(),
		Type:        kindToType(tx.Kind),
		Amount:      numberJSON(tx.Amount),
		Description: tx.Description,
		CreatedAt:   formatTimestamp(tx.CreatedAt),
	}
}

// TransactionFromJSON converts a wire record. It checks representability
// only (date, type, amount); ledger rules are applied by the log.
func (f *Factory) TransactionFromJSON(tj TransactionJSON) (ledger.Transaction, error) {
	if tj.Date == "" {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "date", Err: ledger.ErrMissingField}
	}
	date, err := parseDay(tj.Date)
	if err != nil {
		return ledger.Transaction{}, err
	}
	kind, err := parseType(tj.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := f.parseAmount(tj.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	createdAt, err := parseTimestamp(tj.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "createdAt", Value: tj.CreatedAt, Err: ledger.ErrInvalidDate}
	}
	return ledger.Transaction{
		ID:          ledger.TransactionID(tj.ID),
		Date:        date,
		Kind:        kind,
		Amount:      amount,
		Description: tj.Description,
		CreatedAt:   createdAt,
	}, nil
}

// EncodeTransactions writes the transaction log document.
func (f *Factory) EncodeTransactions(txs []ledger.Transaction) ([]byte, error) {
	out := make([]TransactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, f.TransactionToJSON(tx))
	}
	return json.Marshal(out)
}

// ParseTransactions reads the transaction log document. Records that cannot
// be converted, or that the log would reject on insert, are skipped and
// returned as the skipped count. Loading bypasses the log's checks, so
// this is where a stored record earns its place in the ledger.
func (f *Factory) ParseTransactions(raw []byte) ([]ledger.Transaction, int, error) {
	list, err := decodeList(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("transactions: %w", err)
	}

	txs := make([]ledger.Transaction, 0, len(list))
	skipped := 0
	for i, item := range list {
		var tj TransactionJSON
		if err := json.Unmarshal(item, &tj); err != nil {
			skipped++
			f.logger.Warn().Err(err).Int("index", i).Msg("skipping unreadable transaction record")
			continue
		}
		tx, err := f.storedTransaction(tj)
		if err != nil {
			skipped++
			f.logger.Warn().Err(err).Int("index", i).Str("id", tj.ID).Msg("skipping invalid transaction record")
			continue
		}
		txs = append(txs, tx)
	}
	return txs, skipped, nil
}

// storedTransaction converts a persisted record and applies the checks
// Insert would have made. Stored records must carry their id.
func (f *Factory) storedTransaction(tj TransactionJSON) (ledger.Transaction, error) {
	tx, err := f.TransactionFromJSON(tj)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if strings.TrimSpace(tj.ID) == "" {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "id", Err: ledger.ErrMissingField}
	}
	if err := tx.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}
