package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/model"
)

func TestDeriveKey(t *testing.T) {
	assert.Equal(t, "photo.jpg", backend.DeriveKey(model.Source{Name: "photo.jpg"}))
	assert.Equal(t, "b.txt", backend.DeriveKey(model.Source{Name: "a/b.txt"}))
	assert.Equal(t, "file.bin", backend.DeriveKey(model.Source{Path: "/tmp/up/file.bin"}))
	assert.Equal(t, "file.bin", backend.DeriveKey(model.Source{Path: `C:\up\file.bin`}))

	// No name at all falls back to a generated identifier.
	k := backend.DeriveKey(model.Source{Data: []byte("x")})
	assert.NotEmpty(t, k)
}

func TestRenamedKey(t *testing.T) {
	assert.Equal(t, "report (1).pdf", backend.RenamedKey("report.pdf", 1))
	assert.Equal(t, "report (12).pdf", backend.RenamedKey("report.pdf", 12))
	assert.Equal(t, "noext (3)", backend.RenamedKey("noext", 3))
	assert.Equal(t, "dir/report (2).pdf", backend.RenamedKey("dir/report.pdf", 2))
}

func existsSet(keys ...string) func(context.Context, string) (bool, error) {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return func(_ context.Context, k string) (bool, error) {
		return set[k], nil
	}
}

func TestResolveKeyFreeKey(t *testing.T) {
	got, err := backend.ResolveKey(context.Background(), "a.txt", model.Options{}, 10, existsSet())
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got)
}

func TestResolveKeyOverwriteNever(t *testing.T) {
	_, err := backend.ResolveKey(context.Background(), "a.txt",
		model.Options{Overwrite: model.OverwriteNever}, 10, existsSet("a.txt"))
	assert.ErrorIs(t, err, backend.ErrKeyExists)
}

func TestResolveKeyOverwriteAlways(t *testing.T) {
	got, err := backend.ResolveKey(context.Background(), "a.txt",
		model.Options{Overwrite: model.OverwriteAlways}, 10, existsSet("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got)
}

func TestResolveKeyRenameWalksSequence(t *testing.T) {
	got, err := backend.ResolveKey(context.Background(), "a.txt",
		model.Options{Overwrite: model.OverwriteRename}, 10,
		existsSet("a.txt", "a (1).txt", "a (2).txt"))
	require.NoError(t, err)
	assert.Equal(t, "a (3).txt", got)
}

func TestResolveKeyRenameExhausted(t *testing.T) {
	_, err := backend.ResolveKey(context.Background(), "a.txt",
		model.Options{Overwrite: model.OverwriteRename}, 2,
		existsSet("a.txt", "a (1).txt", "a (2).txt"))
	assert.ErrorIs(t, err, backend.ErrRenameExhausted)
}

func TestScopedKey(t *testing.T) {
	got, err := backend.ScopedKey("invoices", "2024/jan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "invoices/2024/jan.pdf", got)

	got, err = backend.ScopedKey("", "plain.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain.txt", got)

	_, err = backend.ScopedKey("scope", "../../etc/passwd")
	assert.Error(t, err)
}
