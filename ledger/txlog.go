/*
txlog.go - The transaction log (source of truth)

PURPOSE:
  Holds every transaction in date order and enforces the two uniqueness
  rules of the diary: one ID per transaction, and one transaction per
  fingerprint. The ledger is derived from this log and may be discarded
  and rebuilt at any time.

DEDUPLICATION:
  Insert computes the candidate's Fingerprint and rejects it with a
  *DuplicateError when the fingerprint is already indexed. The rejection
  is an expected outcome (double submits, recurring re-runs), so callers
  check IsDuplicate and continue.

  Load restores persisted state as-is, duplicates included, so the
  integrity checker can report them. The index then points at the first
  transaction of each fingerprint.

CONCURRENCY:
  Uses sync.RWMutex. Readers get copies; no caller ever holds a slice
  that the log mutates later.

SEE ALSO:
  - fingerprint.go: Dedup key
  - reconcile.go: Consumes Transactions() snapshots
*/
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log is the ordered, deduplicated transaction log.
type Log struct {
	mu           sync.RWMutex
	txs          []Transaction // sorted by Date, insertion order within a day
	ids          map[TransactionID]Date
	fingerprints map[Fingerprint]TransactionID

	now   func() time.Time
	newID func() TransactionID
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithClock sets the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() TransactionID) LogOption {
	return func(l *Log) { l.newID = gen }
}

func NewLog(opts ...LogOption) *Log {
	l := &Log{
		ids:          make(map[TransactionID]Date),
		fingerprints: make(map[Fingerprint]TransactionID),
		now:          time.Now,
		newID:        func() TransactionID { return TransactionID(uuid.New().String()) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// WRITES
// =============================================================================

// Insert validates and appends tx. It fills ID and CreatedAt when empty and
// returns the stored transaction. A fingerprint collision yields a
// *DuplicateError and leaves the log unchanged.
func (l *Log) Insert(tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.ID == "" {
		tx.ID = l.newID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now().UTC()
	}
	if _, exists := l.ids[tx.ID]; exists {
		return Transaction{}, &ValidationError{Field: "id", Value: string(tx.ID), Err: ErrDuplicateID}
	}

	fp := tx.Fingerprint()
	if existing, dup := l.fingerprints[fp]; dup {
		return Transaction{}, &DuplicateError{Fingerprint: fp, ExistingID: existing}
	}

	l.insertLocked(tx)
	return tx, nil
}

// Update replaces the transaction with the given ID by value, keeping the
// ID and, when tx.CreatedAt is zero, the original creation time. It
// returns the previous value so callers can reconcile both dates.
func (l *Log) Update(id TransactionID, tx Transaction) (old Transaction, err error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.indexLocked(id)
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	old = l.txs[i]

	tx.ID = id
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = old.CreatedAt
	}

	fp := tx.Fingerprint()
	if existing, dup := l.fingerprints[fp]; dup && existing != id {
		return Transaction{}, &DuplicateError{Fingerprint: fp, ExistingID: existing}
	}

	l.removeLocked(i)
	l.insertLocked(tx)
	return old, nil
}

// Delete removes the transaction and returns it.
func (l *Log) Delete(id TransactionID) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.indexLocked(id)
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	tx := l.txs[i]
	l.removeLocked(i)
	return tx, nil
}

// Load replaces the whole log with txs without validation or dedup.
func (l *Log) Load(txs []Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetLocked()
	for _, tx := range txs {
		l.insertLocked(tx)
	}
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *Log) resetLocked() {
	l.txs = nil
	l.ids = make(map[TransactionID]Date)
	l.fingerprints = make(map[Fingerprint]TransactionID)
}

func (l *Log) insertLocked(tx Transaction) {
	// Binary search for insertion point after every tx on the same day
	i := sort.Search(len(l.txs), func(i int) bool {
		return l.txs[i].Date.After(tx.Date)
	})
	l.txs = append(l.txs, Transaction{})
	copy(l.txs[i+1:], l.txs[i:])
	l.txs[i] = tx

	if _, exists := l.ids[tx.ID]; !exists {
		l.ids[tx.ID] = tx.Date
	}
	fp := tx.Fingerprint()
	if _, exists := l.fingerprints[fp]; !exists {
		l.fingerprints[fp] = tx.ID
	}
}

func (l *Log) removeLocked(i int) {
	tx := l.txs[i]
	l.txs = append(l.txs[:i], l.txs[i+1:]...)

	delete(l.ids, tx.ID)
	fp := tx.Fingerprint()
	if l.fingerprints[fp] == tx.ID {
		delete(l.fingerprints, fp)
	}

	// Loaded state may hold several transactions per ID or fingerprint.
	for _, other := range l.txs {
		if other.ID == tx.ID {
			if _, exists := l.ids[other.ID]; !exists {
				l.ids[other.ID] = other.Date
			}
		}
		if ofp := other.Fingerprint(); ofp == fp {
			if _, exists := l.fingerprints[fp]; !exists {
				l.fingerprints[fp] = other.ID
			}
		}
	}
}

func (l *Log) indexLocked(id TransactionID) (int, bool) {
	date, ok := l.ids[id]
	if !ok {
		return 0, false
	}
	start := sort.Search(len(l.txs), func(i int) bool {
		return !l.txs[i].Date.Before(date)
	})
	for i := start; i < len(l.txs) && l.txs[i].Date == date; i++ {
		if l.txs[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (l *Log) dayLocked(d Date) []Transaction {
	start := sort.Search(len(l.txs), func(i int) bool {
		return !l.txs[i].Date.Before(d)
	})
	end := start
	for end < len(l.txs) && l.txs[end].Date == d {
		end++
	}
	return l.txs[start:end]
}

// =============================================================================
// READS
// =============================================================================

// Get returns the transaction with the given ID.
func (l *Log) Get(id TransactionID) (Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.indexLocked(id)
	if !ok {
		return Transaction{}, false
	}
	return l.txs[i], true
}

// Transactions returns a chronological copy of the log.
func (l *Log) Transactions() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

// ByDate returns the transactions recorded on d.
func (l *Log) ByDate(d Date) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	day := l.dayLocked(d)
	out := make([]Transaction, len(day))
	copy(out, day)
	return out
}

// CountByDate returns how many transactions of each kind exist on d.
func (l *Log) CountByDate(d Date) map[Kind]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[Kind]int, len(Kinds))
	for _, tx := range l.dayLocked(d) {
		counts[tx.Kind]++
	}
	return counts
}

// Contains reports whether a transaction with fingerprint fp exists.
func (l *Log) Contains(fp Fingerprint) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.fingerprints[fp]
	return ok
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.txs)
}
