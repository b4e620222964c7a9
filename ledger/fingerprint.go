package ledger

import "fmt"

// Fingerprint is the dedup key of a transaction: same day, same kind, same
// description (case-folded, trimmed) and same amount to the cent.
//
// It is a comparable struct so it can key a map directly; a description
// containing a separator can never collide with a different tuple.
type Fingerprint struct {
	Date        Date
	Kind        Kind
	Description string
	Cents       string
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s/%s/%q/%s", f.Date, f.Kind, f.Description, f.Cents)
}

// CleanupDuplicates returns txs with every fingerprint kept once, in input
// order. It is never applied implicitly; callers opt in after reviewing an
// integrity report.
func CleanupDuplicates(txs []Transaction) (kept, removed []Transaction) {
	seen := make(map[Fingerprint]struct{}, len(txs))
	for _, tx := range txs {
		fp := tx.Fingerprint()
		if _, dup := seen[fp]; dup {
			removed = append(removed, tx)
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, tx)
	}
	return kept, removed
}
