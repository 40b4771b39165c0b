package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depot/internal/config"
	"github.com/depotfs/depot/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 4, cfg.PoolCeiling)
	assert.Equal(t, 256*1024, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.MaxRenameAttempts)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DEPOT_LISTEN_ADDR", ":9999")
	t.Setenv("DEPOT_LOG_LEVEL", "debug")
	t.Setenv("DEPOT_DEFAULT_TIMEOUT_MS", "1500")
	t.Setenv("DEPOT_POOL_CEILING", "8")
	t.Setenv("DEPOT_CHUNK_SIZE", "1024")
	t.Setenv("DEPOT_MAX_RENAME_ATTEMPTS", "5")

	cfg := config.Load()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, cfg.DefaultTimeout)
	assert.Equal(t, 8, cfg.PoolCeiling)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, 5, cfg.MaxRenameAttempts)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DEPOT_POOL_CEILING", "not-a-number")
	t.Setenv("DEPOT_LOG_LEVEL", "shout")

	cfg := config.Load()
	assert.Equal(t, 4, cfg.PoolCeiling)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func writeBackendsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backends.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadBackends(t *testing.T) {
	path := writeBackendsFile(t, `
backends:
  - tag: local
    kind: fs
    params:
      root: /var/lib/depot
  - tag: cloud
    kind: s3
    params:
      endpoint: s3.example.com
      bucket: stuff
`)

	got, err := config.LoadBackends(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.BackendConfig{
		Tag:    "local",
		Kind:   model.KindFS,
		Params: map[string]string{"root": "/var/lib/depot"},
	}, got[0])
	assert.Equal(t, "cloud", got[1].Tag)
	assert.Equal(t, model.KindS3, got[1].Kind)
}

func TestLoadBackendsRejectsDuplicateTags(t *testing.T) {
	path := writeBackendsFile(t, `
backends:
  - tag: same
    kind: fs
  - tag: same
    kind: s3
`)
	_, err := config.LoadBackends(path)
	assert.ErrorContains(t, err, "duplicate tag")
}

func TestLoadBackendsRejectsUnknownKind(t *testing.T) {
	path := writeBackendsFile(t, `
backends:
  - tag: tape
    kind: tape-robot
`)
	_, err := config.LoadBackends(path)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestLoadBackendsRejectsEmptyFile(t *testing.T) {
	path := writeBackendsFile(t, "backends: []\n")
	_, err := config.LoadBackends(path)
	assert.ErrorContains(t, err, "no backends")

	_, err = config.LoadBackends(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
