package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a Backend that stores each key as a file under a root directory.
//
// Writes are atomic: the payload is written to a temp file in the same
// directory, then renamed over the target, so a crash mid-write never leaves
// a truncated value behind.
type Dir struct {
	root string
}

// NewDir creates a file backend rooted at dir, creating it if needed.
func NewDir(dir string) (*Dir, error) {
	if dir == "" {
		return nil, fmt.Errorf("persist: empty backend directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create %s: %w", dir, err)
	}
	return &Dir{root: dir}, nil
}

// DefaultDir resolves a per-app storage directory.
// Priority: STATE_DIR env > <user config dir>/<app>/state.
func DefaultDir(app string) (string, error) {
	if envDir := os.Getenv("STATE_DIR"); envDir != "" {
		return envDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, app, "state"), nil
}

// Root returns the backend's root directory.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the file path that stores key.
func (d *Dir) Path(key string) string {
	return filepath.Join(d.root, keySlug(key)+".bin")
}

// keySlug maps an arbitrary key to a safe file name.
// Path separators and other non-portable characters become underscores.
func keySlug(key string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	if slug == "" {
		slug = "_"
	}
	return slug
}

// Save writes data for key atomically.
func (d *Dir) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := d.Path(key)
	tmp, err := os.CreateTemp(d.root, keySlug(key)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: temp file for %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: close %q: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: chmod %q: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: rename %q: %w", key, err)
	}
	return nil
}

// Load reads the data for key, or ErrNotFound when the file does not exist.
func (d *Dir) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persist: read %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the file for key. Missing keys are not an error.
func (d *Dir) Delete(key string) error {
	err := os.Remove(d.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("persist: delete %q: %w", key, err)
	}
	return nil
}
