package tombstone

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tombstones.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_InsertAndFind(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	res, err := store.Insert(ctx, Hash{ProjectID: 1, Digest: "abc123", TombstoneID: 7})
	require.NoError(t, err)
	assert.Equal(t, InsertCreated, res)

	id, ok, err := store.FindFirst(ctx, 1, []string{"zzz", "abc123"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok, err = store.FindFirst(ctx, 1, []string{"def456"})
	require.NoError(t, err)
	assert.False(t, ok)

	// Digests are scoped to their project
	_, ok, err = store.FindFirst(ctx, 2, []string{"abc123"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_FindFirstEmptyInput(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, ok, err := store.FindFirst(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_FindFirstReturnsOldestRow(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, Hash{ProjectID: 1, Digest: "b", TombstoneID: 10})
	require.NoError(t, err)
	_, err = store.Insert(ctx, Hash{ProjectID: 1, Digest: "a", TombstoneID: 20})
	require.NoError(t, err)

	id, ok, err := store.FindFirst(ctx, 1, []string{"a", "b"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), id)
}

func TestSQLiteStore_DuplicateInsertIsAbsorbed(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	res, err := store.Insert(ctx, Hash{ProjectID: 1, Digest: "abc123", TombstoneID: 7})
	require.NoError(t, err)
	assert.Equal(t, InsertCreated, res)

	res, err = store.Insert(ctx, Hash{ProjectID: 1, Digest: "abc123", TombstoneID: 8})
	require.NoError(t, err)
	assert.Equal(t, InsertExisting, res)

	rows, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].TombstoneID, "first writer wins")
}

func TestSQLiteStore_ConcurrentDuplicateInserts(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	const writers = 16
	results := make([]InsertResult, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Insert(ctx, Hash{ProjectID: 3, Digest: "shared", TombstoneID: int64(i + 1)})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		if results[i] == InsertCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)

	rows, err := store.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLiteStore_ListPreservesFields(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Unix(1738713600, 0)

	_, err := store.Insert(ctx, Hash{ProjectID: 5, Digest: "d1", TombstoneID: 1, CreatedAt: at})
	require.NoError(t, err)
	_, err = store.Insert(ctx, Hash{ProjectID: 5, Digest: "d2", TombstoneID: 1, CreatedAt: at})
	require.NoError(t, err)

	rows, err := store.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "d1", rows[0].Digest)
	assert.Equal(t, "d2", rows[1].Digest)
	assert.True(t, rows[0].CreatedAt.Equal(at))
	assert.Less(t, rows[0].ID, rows[1].ID)
}

func TestSQLiteStore_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tombstones.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.Insert(ctx, Hash{ProjectID: 1, Digest: "abc123", TombstoneID: 7})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	id, ok, err := store.FindFirst(ctx, 1, []string{"abc123"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}
