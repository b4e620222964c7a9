package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-diary/store"
	"github.com/warp/finance-diary/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LoadMissingKey(t *testing.T) {
	_, ok, err := newTestStore(t).Load(context.Background(), store.KeyLedger)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveReplacesDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Save(ctx, store.KeyTransactions, []byte(`[{"id":"a"}]`)))
	require.NoError(t, s.Save(ctx, store.KeyTransactions, []byte(`[]`)))

	got, ok, err := s.Load(ctx, store.KeyTransactions)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(got))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{store.KeyTransactions}, keys)

	_, ok, err = s.UpdatedAt(ctx, store.KeyTransactions)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, key := range store.Keys {
		require.NoError(t, s.Save(ctx, key, []byte(`{}`)))
	}

	require.NoError(t, s.Reset(ctx))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_ReopenFileKeepsDataAndSchema(t *testing.T) {
	// GIVEN: A file database with a saved document
	// WHEN: It is closed and opened again (migrations run a second time)
	// THEN: The document is still there

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "diary.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, store.KeyRecurring, []byte(`[]`)))
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Load(ctx, store.KeyRecurring)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(got))
}
