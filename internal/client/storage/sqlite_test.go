package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v1")))
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	// Overwrite
	require.NoError(t, store.Set(ctx, "k", []byte("v2")))
	value, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)
}

func TestSQLiteStore_MissingKeyIsNil(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	value, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSQLiteStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, value)

	// Deleting an absent key is fine.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}
