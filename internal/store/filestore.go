package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ==============================================
// FILE-BACKED STORE
// ==============================================

// FileStore persists each key as one small file under a state directory. It
// is the durable local-storage analog: last write wins, no locking across
// processes, unreadable files degrade to absent.
type FileStore struct {
	dir string
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Get(key string) (string, bool) {
	raw, err := os.ReadFile(f.path(key))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// Set writes atomically via temp file + rename so a crash mid-write never
// leaves a half-written value behind.
func (f *FileStore) Set(key, value string) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to stage value for %q: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write value for %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush value for %q: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit value for %q: %w", key, err)
	}
	return nil
}

func (f *FileStore) Remove(key string) {
	_ = os.Remove(f.path(key))
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, sanitizeKey(key))
}

// sanitizeKey keeps keys filesystem-safe. Payment ids are UUIDs in practice
// but nothing guarantees that at this layer.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-' || r == '.':
			return r
		}
		return '_'
	}, key)
}
