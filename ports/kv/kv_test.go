package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemStore(t *testing.T) {
	ctx := t.Context()
	store := NewMemStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(ctx, store, "a", record{Name: "x", Count: 3}))
	got, err := Get[record](ctx, store, "a")
	require.NoError(t, err)
	require.Equal(t, record{Name: "x", Count: 3}, got)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, Put(ctx, store, "orders/1234", record{Name: "order", Count: 2}))
	require.FileExists(t, filepath.Join(dir, "orders", "1234.json"))

	got, err := Get[record](ctx, store, "orders/1234")
	require.NoError(t, err)
	require.Equal(t, 2, got.Count)

	_, err = store.Get(ctx, "orders/9999")
	require.ErrorIs(t, err, ErrNotFound)

	// deleting an absent key is not an error
	require.NoError(t, store.Delete(ctx, "orders/9999"))
	require.NoError(t, store.Delete(ctx, "orders/1234"))
	_, err = store.Get(ctx, "orders/1234")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(t.Context(), "../outside")
	require.Error(t, err)
	require.Error(t, store.Put(t.Context(), "/abs", []byte("{}")))
}
