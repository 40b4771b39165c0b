// Package fs implements the storage capability on a local filesystem
// directory. Writes stream through a temp file and an atomic rename so a
// crashed worker never leaves a half-written object under a final key.
package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/model"
)

// Backend stores files under a root directory.
type Backend struct {
	tag      string
	root     string
	settings backend.Settings
}

var _ backend.Capability = (*Backend)(nil)

// New creates a filesystem backend rooted at params["root"], creating the
// directory if needed.
func New(tag string, params map[string]string, settings backend.Settings) (*Backend, error) {
	root := params["root"]
	if root == "" {
		return nil, fmt.Errorf("fs backend %q: missing root param", tag)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Backend{tag: tag, root: absRoot, settings: settings}, nil
}

// abs resolves a logical slash-separated key to a concrete path and
// verifies it still lives under the root.
func (b *Backend) abs(key string) (string, error) {
	joined := filepath.Join(b.root, filepath.Clean(filepath.FromSlash(key)))
	rel, err := filepath.Rel(b.root, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return joined, nil
}

func (b *Backend) exists(_ context.Context, key string) (bool, error) {
	abs, err := b.abs(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Store writes the source under the resolved key. The returned key is the
// full identifier including the scope prefix.
func (b *Backend) Store(ctx context.Context, src model.Source, opts model.Options) (*model.FileInfo, error) {
	key := opts.Key
	if key == "" || key == model.KeyAuto {
		key = backend.DeriveKey(src)
	}
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return nil, err
	}
	target, err := backend.ResolveKey(ctx, scoped, opts, b.settings.MaxRenameAttempts, b.exists)
	if err != nil {
		return nil, err
	}

	r, _, err := backend.OpenSource(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dest, err := b.abs(target)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(dest), err)
	}

	tmp := dest + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open tmp %q: %w", tmp, err)
	}

	d := backend.NewDigester(opts.Hashes)
	buf := make([]byte, b.settings.ChunkSize)
	n, werr := io.CopyBuffer(io.MultiWriter(f, d.Writer()), backend.ContextReader(ctx, r), buf)
	cerr := f.Close()
	if werr != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("stream write: %w", werr)
	}
	if cerr != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("flush: %w", cerr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename to %q: %w", dest, err)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", dest, err)
	}
	return &model.FileInfo{
		Key:      target,
		Backend:  b.tag,
		Size:     n,
		Hashes:   d.Sums(),
		Modified: st.ModTime(),
		URL:      b.fileURL(dest),
	}, nil
}

// GetInfo stats the key and computes any requested digests by re-reading
// the file.
func (b *Backend) GetInfo(ctx context.Context, key string, opts model.Options) (*model.FileInfo, error) {
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return nil, err
	}
	abs, err := b.abs(scoped)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", scoped, err)
	}

	var hashes []model.Hash
	if len(opts.Hashes) > 0 {
		f, err := os.Open(abs)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", scoped, err)
		}
		defer f.Close()
		hashes, _, err = backend.DigestReader(backend.ContextReader(ctx, f), opts.Hashes, b.settings.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("hash %q: %w", scoped, err)
		}
	}

	return &model.FileInfo{
		Key:      scoped,
		Backend:  b.tag,
		Size:     st.Size(),
		Hashes:   hashes,
		Modified: st.ModTime(),
		URL:      b.fileURL(abs),
	}, nil
}

// GetURL returns a file:// URL for the key.
func (b *Backend) GetURL(_ context.Context, key string, opts model.Options) (string, error) {
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return "", err
	}
	abs, err := b.abs(scoped)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("stat %q: %w", scoped, err)
	}
	return b.fileURL(abs), nil
}

// ListFiles walks the scope directory and returns full identifiers
// relative to the root.
func (b *Backend) ListFiles(ctx context.Context, opts model.Options) ([]string, error) {
	scopeDir, err := b.abs(opts.Scope)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(scopeDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == scopeDir {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", opts.Scope, err)
	}
	return keys, nil
}

// Delete removes the key. Missing keys are not an error.
func (b *Backend) Delete(_ context.Context, key string, opts model.Options) error {
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return err
	}
	abs, err := b.abs(scoped)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %q: %w", scoped, err)
	}
	return nil
}

// DeleteScope removes the scope directory recursively.
func (b *Backend) DeleteScope(_ context.Context, opts model.Options) error {
	if opts.Scope == "" {
		return fmt.Errorf("delete scope: empty scope")
	}
	abs, err := b.abs(opts.Scope)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove scope %q: %w", opts.Scope, err)
	}
	return nil
}

// DeleteAll removes every entry under the root, keeping the root itself.
func (b *Backend) DeleteAll(_ context.Context, _ model.Options) error {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return fmt.Errorf("read root: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(b.root, e.Name())); err != nil {
			return fmt.Errorf("remove %q: %w", e.Name(), err)
		}
	}
	return nil
}

// TestConnection verifies the root is writable.
func (b *Backend) TestConnection(_ context.Context) error {
	f, err := os.CreateTemp(b.root, ".depot-probe-*")
	if err != nil {
		return fmt.Errorf("root not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (b *Backend) fileURL(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

