package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDir  = ".recall"
	stateFile = "current_session"
)

// stateFilePath returns the path of the current-session state file,
// creating the config directory if needed.
func stateFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, stateDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, stateFile), nil
}

// LoadCurrentSessionID returns the session id recorded by the last
// interactive run, or nil if none is recorded. A missing or empty state
// file is not an error; an unparseable one is.
func LoadCurrentSessionID() (*uuid.UUID, error) {
	path, err := stateFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing session state %q: %w", raw, err)
	}
	return &id, nil
}

// SaveCurrentSessionID records the active session for the next run.
// The write is atomic (temp file + rename) and serialized against other
// processes with a file lock, so concurrent clients cannot interleave
// partial writes.
func SaveCurrentSessionID(id uuid.UUID) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking session state: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing session state: %w", err)
	}
	return nil
}

// ClearCurrentSessionID forgets the recorded session. Clearing when
// nothing is recorded is not an error.
func ClearCurrentSessionID() error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking session state: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing session state: %w", err)
	}
	return nil
}
