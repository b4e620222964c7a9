/*
Package store provides the key-value persistence collaborator.

PURPOSE:
  The diary persists three JSON documents, each under its own key. The
  engine never looks inside the storage: it loads a document at startup
  and saves the latest version after changes.

KEYS:
  financialData          the ledger cache (factory.LedgerJSON)
  transactions           the transaction log (source of truth)
  recurringTransactions  the recurring rules

CONTRACT:
  - Load of a key never written returns ok=false and no error
  - Save replaces the whole document
  - Implementations are safe for concurrent use

IMPLEMENTATIONS:
  - memory.go: In-memory map, for tests and the memory backend
  - sqlite/: SQLite kv table with versioned migrations
  - async.go: Coalescing write-behind wrapper around any KV

SEE ALSO:
  - ../factory: Document shapes
  - ../diary/service.go: Load and save paths
*/
package store

import (
	"context"
	"errors"
)

// Document keys.
const (
	KeyLedger       = "financialData"
	KeyTransactions = "transactions"
	KeyRecurring    = "recurringTransactions"
)

// Keys lists every document key.
var Keys = []string{KeyLedger, KeyTransactions, KeyRecurring}

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store closed")

// KV loads and saves whole documents by key.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}
