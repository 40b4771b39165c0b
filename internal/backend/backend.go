// Package backend defines the capability contract storage backends
// implement, the tag registry that routes to them, and helpers shared by
// the implementations (content digests, key derivation, conflict renaming).
package backend

import (
	"context"

	"github.com/depotfs/depot/internal/model"
)

// Capability is the operation set every storage backend implements. One
// instance is constructed per configured backend at startup, holding its
// parsed connection parameters; the core resolves instances by tag and
// never interprets parameters itself.
//
// Store covers both file sources and inline data: the Source carries either
// a local path to stream or the bytes themselves. Results and errors are
// returned uniformly; the dispatch core passes them through uninterpreted.
type Capability interface {
	// Store writes the source under the key resolved from opts and
	// returns the stored file's info, including any requested digests.
	Store(ctx context.Context, src model.Source, opts model.Options) (*model.FileInfo, error)

	// GetInfo returns info for one stored file.
	GetInfo(ctx context.Context, key string, opts model.Options) (*model.FileInfo, error)

	// GetURL returns an access URL for one stored file, or "" when the
	// backend cannot produce one.
	GetURL(ctx context.Context, key string, opts model.Options) (string, error)

	// ListFiles returns the keys stored under opts.Scope.
	ListFiles(ctx context.Context, opts model.Options) ([]string, error)

	// Delete removes one stored file. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string, opts model.Options) error

	// DeleteScope removes everything under opts.Scope.
	DeleteScope(ctx context.Context, opts model.Options) error

	// DeleteAll removes everything the backend holds.
	DeleteAll(ctx context.Context, opts model.Options) error

	// TestConnection verifies the backend is reachable and writable.
	TestConnection(ctx context.Context) error
}

// Settings are process-wide tunables consumed by backend implementations.
type Settings struct {
	// ChunkSize is the buffer size for streaming transfer and hashing.
	ChunkSize int

	// MaxRenameAttempts bounds the rename loop when a store with the
	// rename conflict policy keeps colliding.
	MaxRenameAttempts int
}

// DefaultSettings mirror the process configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		ChunkSize:         256 * 1024,
		MaxRenameAttempts: 100,
	}
}
