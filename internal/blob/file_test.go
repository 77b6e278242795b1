package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
)

var _ core.BlobStore = (*FileStore)(nil)

func TestFileStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	handle, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(store.Dir(), handle+".zst"))

	got, err := store.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, store.Delete(ctx, handle))
	_, err = store.Get(ctx, handle)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Delete(ctx, handle), "second delete is a no-op")
}

func TestFileStore_RejectsForeignHandles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.zst"), []byte("x"), 0o600))

	_, err = store.Get(ctx, "../secret")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "../secret"))
	assert.FileExists(t, filepath.Join(dir, "secret.zst"))
}

func TestFileStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	old, err := store.Put(ctx, []byte("old"))
	require.NoError(t, err)
	fresh, err := store.Put(ctx, []byte("fresh"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.path(old), past, past))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("keep"), 0o600))

	pinned, err := store.Put(ctx, []byte("pinned"))
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(store.path(pinned), past, past))

	n, err := store.Sweep(ctx, time.Now().Add(-24*time.Hour), map[string]bool{pinned: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, old)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.Get(ctx, fresh)
	assert.NoError(t, err)
	_, err = store.Get(ctx, pinned)
	assert.NoError(t, err)
	assert.FileExists(t, filepath.Join(store.Dir(), "notes.txt"))
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
