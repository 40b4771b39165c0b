package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/backend/fs"
	"github.com/depotfs/depot/internal/model"
)

func newTestBackend(t *testing.T) *fs.Backend {
	t.Helper()
	b, err := fs.New("local", map[string]string{"root": t.TempDir()}, backend.DefaultSettings())
	require.NoError(t, err)
	return b
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := fs.New("local", nil, backend.DefaultSettings())
	assert.Error(t, err)
}

func TestStoreAndGetInfo(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	info, err := b.Store(ctx, model.Source{Data: []byte("hello world")}, model.Options{
		Key:    "docs/hello.txt",
		Hashes: []string{"sha256"},
	})
	require.NoError(t, err)
	assert.Equal(t, "docs/hello.txt", info.Key)
	assert.Equal(t, "local", info.Backend)
	assert.Equal(t, int64(11), info.Size)
	require.Len(t, info.Hashes, 1)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", info.Hashes[0].Value)
	assert.True(t, strings.HasPrefix(info.URL, "file://"))
	assert.False(t, info.Modified.IsZero())

	got, err := b.GetInfo(ctx, "docs/hello.txt", model.Options{Hashes: []string{"sha256"}})
	require.NoError(t, err)
	assert.Equal(t, info.Size, got.Size)
	assert.Equal(t, info.Hashes, got.Hashes)
}

func TestStoreFromPathSource(t *testing.T) {
	b := newTestBackend(t)
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "upload.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("payload"), 0o600))

	info, err := b.Store(context.Background(), model.Source{Path: srcPath}, model.Options{Key: model.KeyAuto})
	require.NoError(t, err)
	assert.Equal(t, "upload.bin", info.Key)
	assert.Equal(t, int64(7), info.Size)
}

func TestStoreScopeBecomesKeyPrefix(t *testing.T) {
	b := newTestBackend(t)

	info, err := b.Store(context.Background(), model.Source{Data: []byte("x")}, model.Options{
		Key:   "a.txt",
		Scope: "tenant-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tenant-1/a.txt", info.Key)
}

func TestStoreOverwritePolicies(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	opts := model.Options{Key: "dup.txt"}

	_, err := b.Store(ctx, model.Source{Data: []byte("one")}, opts)
	require.NoError(t, err)

	// Default policy refuses to overwrite.
	_, err = b.Store(ctx, model.Source{Data: []byte("two")}, opts)
	assert.ErrorIs(t, err, backend.ErrKeyExists)

	// Rename walks to the next free name.
	opts.Overwrite = model.OverwriteRename
	info, err := b.Store(ctx, model.Source{Data: []byte("two")}, opts)
	require.NoError(t, err)
	assert.Equal(t, "dup (1).txt", info.Key)

	// Always replaces in place.
	opts.Overwrite = model.OverwriteAlways
	info, err = b.Store(ctx, model.Source{Data: []byte("three")}, opts)
	require.NoError(t, err)
	assert.Equal(t, "dup.txt", info.Key)
	assert.Equal(t, int64(5), info.Size)
}

func TestStoreRejectsEscapingKeys(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Store(context.Background(), model.Source{Data: []byte("x")}, model.Options{Key: "../escape.txt"})
	assert.Error(t, err)
}

func TestListFiles(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, key := range []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"} {
		_, err := b.Store(ctx, model.Source{Data: []byte("x")}, model.Options{Key: key})
		require.NoError(t, err)
	}

	keys, err := b.ListFiles(ctx, model.Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"}, keys)

	keys, err = b.ListFiles(ctx, model.Options{Scope: "sub"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub/b.txt", "sub/deep/c.txt"}, keys)

	keys, err = b.ListFiles(ctx, model.Options{Scope: "missing"})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteVariants(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, key := range []string{"keep.txt", "tmp/a.txt", "tmp/b.txt"} {
		_, err := b.Store(ctx, model.Source{Data: []byte("x")}, model.Options{Key: key})
		require.NoError(t, err)
	}

	// Deleting a missing key succeeds silently.
	require.NoError(t, b.Delete(ctx, "ghost.txt", model.Options{}))

	require.NoError(t, b.DeleteScope(ctx, model.Options{Scope: "tmp"}))
	keys, err := b.ListFiles(ctx, model.Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.txt"}, keys)

	assert.Error(t, b.DeleteScope(ctx, model.Options{}), "empty scope must be rejected")

	require.NoError(t, b.DeleteAll(ctx, model.Options{}))
	keys, err = b.ListFiles(ctx, model.Options{})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGetURL(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Store(ctx, model.Source{Data: []byte("x")}, model.Options{Key: "u.txt"})
	require.NoError(t, err)

	u, err := b.GetURL(ctx, "u.txt", model.Options{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/u.txt"))

	_, err = b.GetURL(ctx, "missing.txt", model.Options{})
	assert.Error(t, err)
}

func TestTestConnection(t *testing.T) {
	b := newTestBackend(t)
	assert.NoError(t, b.TestConnection(context.Background()))
}
