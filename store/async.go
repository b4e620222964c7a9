/*
async.go - Coalescing write-behind persistence

PURPOSE:
  Saving must not block the caller. AsyncWriter accepts a document,
  remembers only the latest payload per key, and writes it to the
  underlying KV in the background. Ten saves of the ledger while a write
  is in flight become one write of the tenth version.

GUARANTEES:
  - Save never blocks on I/O
  - Writes for one key reach the KV in the order they were saved, and the
    last saved payload is always the last one written
  - Load sees pending and in-flight payloads (read-your-writes)
  - Flush and Close write everything pending before returning
  - A failed write stays pending unless a newer payload replaced it, and
    the background loop retries it after RetryDelay

SEE ALSO:
  - store.go: KV contract
*/
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetryDelay is how long the background loop waits before retrying
// a failed write.
const DefaultRetryDelay = time.Second

// AsyncWriter is a KV whose writes complete in the background.
type AsyncWriter struct {
	// RetryDelay spaces background retries of failed writes. Set it before
	// the first Save.
	RetryDelay time.Duration

	kv     KV
	logger zerolog.Logger

	mu       sync.Mutex
	pending  map[string][]byte
	inflight map[string][]byte // taken by Flush, not yet acknowledged by kv
	closed   bool

	flushMu sync.Mutex // serializes writes to kv
	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

var _ KV = (*AsyncWriter)(nil)

// NewAsyncWriter starts the background writer.
func NewAsyncWriter(kv KV, logger zerolog.Logger) *AsyncWriter {
	w := &AsyncWriter{
		RetryDelay: DefaultRetryDelay,
		kv:         kv,
		logger:     logger,
		pending:    make(map[string][]byte),
		inflight:   make(map[string][]byte),
		signal:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *AsyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.signal:
			if err := w.Flush(context.Background()); err != nil {
				w.logger.Error().Err(err).Dur("retry_in", w.RetryDelay).Msg("background persistence failed")
				time.AfterFunc(w.RetryDelay, w.kick)
			}
		case <-w.stop:
			return
		}
	}
}

// Save queues value for key, replacing any pending payload for the key.
func (w *AsyncWriter) Save(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.pending[key] = v
	w.mu.Unlock()

	w.kick()
	return nil
}

func (w *AsyncWriter) kick() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Load returns the newest unwritten payload for key if there is one,
// otherwise the stored document.
func (w *AsyncWriter) Load(ctx context.Context, key string) ([]byte, bool, error) {
	w.mu.Lock()
	v, ok := w.pending[key]
	if !ok {
		v, ok = w.inflight[key]
	}
	if ok {
		out := make([]byte, len(v))
		copy(out, v)
		w.mu.Unlock()
		return out, true, nil
	}
	w.mu.Unlock()
	return w.kv.Load(ctx, key)
}

// Pending reports how many keys are waiting to be written.
func (w *AsyncWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes every pending payload now.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string][]byte)
	for key, value := range batch {
		w.inflight[key] = value
	}
	w.mu.Unlock()

	var errs []error
	for _, key := range orderedKeys(batch) {
		value := batch[key]
		err := w.kv.Save(ctx, key, value)

		w.mu.Lock()
		delete(w.inflight, key)
		if err != nil {
			if _, newer := w.pending[key]; !newer {
				w.pending[key] = value
			}
		}
		w.mu.Unlock()

		if err != nil {
			errs = append(errs, err)
			w.logger.Warn().Err(err).Str("key", key).Msg("save failed, will retry")
			continue
		}
		w.logger.Debug().Str("key", key).Int("bytes", len(value)).Msg("document saved")
	}
	return errors.Join(errs...)
}

// Close stops the background writer and flushes what is pending. Saves
// after Close return ErrClosed.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done
	return w.Flush(ctx)
}

// orderedKeys puts known keys first in a fixed order so the log is
// written before the ledger derived from it.
func orderedKeys(batch map[string][]byte) []string {
	keys := make([]string, 0, len(batch))
	for _, k := range []string{KeyTransactions, KeyRecurring, KeyLedger} {
		if _, ok := batch[k]; ok {
			keys = append(keys, k)
		}
	}
	for k := range batch {
		switch k {
		case KeyTransactions, KeyRecurring, KeyLedger:
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
