package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Storage keeps the raw bytes of every upload so documents can be
// re-processed after a chunking or schema change. The directory is
// guarded by a file lock: two service instances sharing it would
// silently overwrite each other's files.
type Storage struct {
	dir  string
	lock *flock.Flock
}

// NewStorage creates dir if needed and takes the directory lock. It
// fails when another process already holds the lock.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking storage directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("storage directory %s is in use by another process", dir)
	}
	return &Storage{dir: dir, lock: lock}, nil
}

// Save writes a raw upload under a name derived from the document id
// and a sanitized filename, and returns the path.
func (s *Storage) Save(docID, filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, docID+"_"+sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing raw upload: %w", err)
	}
	return path, nil
}

// Dir returns the storage directory path.
func (s *Storage) Dir() string { return s.dir }

// Close releases the directory lock.
func (s *Storage) Close() error {
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("unlocking storage directory: %w", err)
	}
	return nil
}

// sanitizeFilename strips path components and replaces anything outside
// [A-Za-z0-9._-] so uploads cannot escape the storage directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
