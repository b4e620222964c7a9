/*
ledger.go - Ledger cache document

  The ledger is a cache: ParseLedger is used to seed the reconciler at
  startup so the first pass can reuse persisted balances. A document that
  does not match the log is corrected by that pass.

SEE ALSO:
  - factory.go: Schema (0-based months)
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-diary/ledger"
)

// EntryJSON is the wire form of one day.
type EntryJSON struct {
	Credit     string          `json:"entrada"`
	Debit      string          `json:"saida"`
	Incidental string          `json:"diario"`
	Balance    json.RawMessage `json:"balance"`
}

// LedgerJSON is year -> 0-based month -> day -> entry.
type LedgerJSON map[string]map[string]map[string]EntryJSON

// LedgerToJSON converts a ledger to its wire form.
func (f *Factory) LedgerToJSON(l *ledger.Ledger) LedgerJSON {
	out := LedgerJSON{}
	l.Range(func(d ledger.Date, e ledger.Entry) bool {
		year := strconv.Itoa(d.Year())
		month := strconv.Itoa(int(d.Month()) - 1)
		if out[year] == nil {
			out[year] = map[string]map[string]EntryJSON{}
		}
		if out[year][month] == nil {
			out[year][month] = map[string]EntryJSON{}
		}
		out[year][month][strconv.Itoa(d.Day())] = f.EntryToJSON(e)
		return true
	})
	return out
}

// EntryToJSON formats one day.
func (f *Factory) EntryToJSON(e ledger.Entry) EntryJSON {
	return EntryJSON{
		Credit:     f.money.Format(e.Credit),
		Debit:      f.money.Format(e.Debit),
		Incidental: f.money.Format(e.Incidental),
		Balance:    numberJSON(e.Balance),
	}
}

// EntryFromJSON parses one day.
func (f *Factory) EntryFromJSON(ej EntryJSON) (ledger.Entry, error) {
	var (
		e   ledger.Entry
		err error
	)
	if e.Credit, err = f.money.Parse(ej.Credit); err != nil {
		return ledger.Entry{}, fmt.Errorf("entrada: %w", err)
	}
	if e.Debit, err = f.money.Parse(ej.Debit); err != nil {
		return ledger.Entry{}, fmt.Errorf("saida: %w", err)
	}
	if e.Incidental, err = f.money.Parse(ej.Incidental); err != nil {
		return ledger.Entry{}, fmt.Errorf("diario: %w", err)
	}
	if len(ej.Balance) == 0 {
		e.Balance = decimal.Zero
		return e, nil
	}
	if e.Balance, err = f.parseAmount(ej.Balance); err != nil {
		return ledger.Entry{}, fmt.Errorf("balance: %w", err)
	}
	return e, nil
}

// TotalsJSON is the wire form of a month or year summary.
type TotalsJSON struct {
	Credit     string          `json:"entrada"`
	Debit      string          `json:"saida"`
	Incidental string          `json:"diario"`
	Net        string          `json:"net"`
	Opening    json.RawMessage `json:"openingBalance"`
	Closing    json.RawMessage `json:"closingBalance"`
	Days       int             `json:"days"`
}

func (f *Factory) TotalsToJSON(t ledger.Totals) TotalsJSON {
	return TotalsJSON{
		Credit:     f.money.Format(t.Credit),
		Debit:      f.money.Format(t.Debit),
		Incidental: f.money.Format(t.Incidental),
		Net:        f.money.Format(t.Net()),
		Opening:    numberJSON(t.Opening),
		Closing:    numberJSON(t.Closing),
		Days:       t.Days,
	}
}

// EncodeLedger writes the financialData document.
func (f *Factory) EncodeLedger(l *ledger.Ledger) ([]byte, error) {
	return json.Marshal(f.LedgerToJSON(l))
}

// ParseLedger reads the financialData document. Entries with keys that are
// not a calendar date, or with unreadable amounts, are skipped.
func (f *Factory) ParseLedger(raw []byte) (*ledger.Ledger, int, error) {
	l := ledger.New()
	if len(raw) == 0 {
		return l, 0, nil
	}
	var doc LedgerJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return l, 0, fmt.Errorf("financialData: %w: %v", ErrMalformedDocument, err)
	}

	skipped := 0
	for yearKey, months := range doc {
		year, ok := atoiKey(yearKey, 1, 9999)
		if !ok {
			skipped += countDays(months)
			continue
		}
		for monthKey, days := range months {
			month, ok := atoiKey(monthKey, 0, 11)
			if !ok {
				skipped += len(days)
				continue
			}
			for dayKey, ej := range days {
				day, ok := atoiKey(dayKey, 1, 31)
				if !ok {
					skipped++
					continue
				}
				d, err := ledger.NewDate(year, time.Month(month+1), day)
				if err != nil {
					skipped++
					continue
				}
				e, err := f.EntryFromJSON(ej)
				if err != nil {
					skipped++
					f.logger.Warn().Err(err).Str("date", d.String()).Msg("skipping unreadable ledger entry")
					continue
				}
				l.Set(d, e)
			}
		}
	}
	return l, skipped, nil
}

func countDays(months map[string]map[string]EntryJSON) int {
	n := 0
	for _, days := range months {
		n += len(days)
	}
	return n
}
