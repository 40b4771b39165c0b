package backend

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/depotfs/depot/internal/model"
)

// ErrKeyExists is returned by a store with the never-overwrite policy when
// the target key is already taken.
var ErrKeyExists = errors.New("key already exists")

// ErrRenameExhausted is returned when the rename policy ran out of attempts
// without finding a free key.
var ErrRenameExhausted = errors.New("rename attempts exhausted")

// DeriveKey produces a target key for a store whose options asked for
// "auto": the source's file name when it has one, otherwise a fresh ULID.
func DeriveKey(src model.Source) string {
	if src.Name != "" {
		return path.Base(src.Name)
	}
	if src.Path != "" {
		return path.Base(strings.ReplaceAll(src.Path, "\\", "/"))
	}
	return model.NewID()
}

// RenamedKey derives the attempt-th alternative for key, inserting the
// counter before the extension: "report.pdf" becomes "report (1).pdf".
func RenamedKey(key string, attempt int) string {
	ext := path.Ext(key)
	stem := strings.TrimSuffix(key, ext)
	return fmt.Sprintf("%s (%d)%s", stem, attempt, ext)
}

// ResolveKey applies the overwrite policy for a store against the given
// existence check. It returns the key to write to, walking the rename
// sequence when the policy allows, bounded by maxAttempts.
func ResolveKey(ctx context.Context, key string, opts model.Options, maxAttempts int, exists func(context.Context, string) (bool, error)) (string, error) {
	if key == "" || key == model.KeyAuto {
		return "", fmt.Errorf("resolve key: empty key")
	}
	ok, err := exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check key %q: %w", key, err)
	}
	if !ok {
		return key, nil
	}

	switch opts.Overwrite {
	case model.OverwriteAlways:
		return key, nil
	case model.OverwriteRename:
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			candidate := RenamedKey(key, attempt)
			ok, err := exists(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("check key %q: %w", candidate, err)
			}
			if !ok {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("key %q: %w", key, ErrRenameExhausted)
	default:
		return "", fmt.Errorf("key %q: %w", key, ErrKeyExists)
	}
}

// ScopedKey joins a scope namespace and key into one slash path, rejecting
// anything that would escape the scope.
func ScopedKey(scope, key string) (string, error) {
	joined := path.Join(scope, key)
	cleaned := path.Clean("/" + joined)
	if strings.Contains(key, "..") || strings.HasPrefix(cleaned, "/..") {
		return "", fmt.Errorf("key %q escapes scope", key)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
