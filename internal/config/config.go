package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultBackendsFile   = "backends.yaml"
	defaultTimeout        = 30 * time.Second
	defaultPoolCeiling    = 4
	defaultChunkSize      = 256 * 1024
	defaultRenameAttempts = 100

	envListenAddr     = "DEPOT_LISTEN_ADDR"
	envLogLevel       = "DEPOT_LOG_LEVEL"
	envBackendsFile   = "DEPOT_BACKENDS_FILE"
	envTimeoutMS      = "DEPOT_DEFAULT_TIMEOUT_MS"
	envPoolCeiling    = "DEPOT_POOL_CEILING"
	envChunkSize      = "DEPOT_CHUNK_SIZE"
	envRenameAttempts = "DEPOT_MAX_RENAME_ATTEMPTS"
)

// Config holds process-wide configuration loaded once at startup from
// environment variables. It is never hot-reloaded.
type Config struct {
	ListenAddr        string
	LogLevel          slog.Level
	BackendsFile      string
	DefaultTimeout    time.Duration
	PoolCeiling       int
	ChunkSize         int
	MaxRenameAttempts int
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:        defaultListenAddr,
		LogLevel:          slog.LevelInfo,
		BackendsFile:      defaultBackendsFile,
		DefaultTimeout:    defaultTimeout,
		PoolCeiling:       defaultPoolCeiling,
		ChunkSize:         defaultChunkSize,
		MaxRenameAttempts: defaultRenameAttempts,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envBackendsFile); v != "" {
		cfg.BackendsFile = v
	}
	if v := parsePositiveInt(os.Getenv(envTimeoutMS)); v > 0 {
		cfg.DefaultTimeout = time.Duration(v) * time.Millisecond
	}
	if v := parsePositiveInt(os.Getenv(envPoolCeiling)); v > 0 {
		cfg.PoolCeiling = v
	}
	if v := parsePositiveInt(os.Getenv(envChunkSize)); v > 0 {
		cfg.ChunkSize = v
	}
	if v := parsePositiveInt(os.Getenv(envRenameAttempts)); v > 0 {
		cfg.MaxRenameAttempts = v
	}

	return cfg
}

func parsePositiveInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured
// level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
