package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInvalidName is returned when a session id or file name would
// escape the storage root.
var ErrInvalidName = errors.New("storage: invalid name")

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface on the local disk.
// All sessions live under a single configurable root directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a new LocalStorage instance rooted at dir.
// If dir is empty, a "phile" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "phile")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &LocalStorage{root: dir}, nil
}

// Root returns the storage root directory path.
func (s *LocalStorage) Root() string {
	return s.root
}

// CreateSession creates the directory for a new session.
func (s *LocalStorage) CreateSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	return nil
}

// OpenAppend opens a session file for appending, creating it if needed.
func (s *LocalStorage) OpenAppend(ctx context.Context, sessionID, name string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	path, err := s.filePath(sessionID, name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640) // #nosec G304 - path components are validated
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	return f, nil
}

// OpenFile opens a stored file for reading and reports its size.
func (s *LocalStorage) OpenFile(ctx context.Context, sessionID, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("context cancelled: %w", err)
	}

	path, err := s.filePath(sessionID, name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path) // #nosec G304 - path components are validated
	if err != nil {
		return nil, 0, fmt.Errorf("open session file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat session file: %w", err)
	}
	return f, info.Size(), nil
}

// ListFiles returns the names of the files stored for a session.
func (s *LocalStorage) ListFiles(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// RemoveSession deletes a session directory and everything in it.
func (s *LocalStorage) RemoveSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove session directory: %w", err)
	}
	return nil
}

// ListSessions enumerates the session directories under the root.
func (s *LocalStorage) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// sessionPath resolves a session directory, rejecting ids that would
// escape the root.
func (s *LocalStorage) sessionPath(sessionID string) (string, error) {
	if !safeComponent(sessionID) {
		return "", fmt.Errorf("%w: session %q", ErrInvalidName, sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}

// filePath resolves a file inside a session directory, rejecting names
// that would escape it.
func (s *LocalStorage) filePath(sessionID, name string) (string, error) {
	dir, err := s.sessionPath(sessionID)
	if err != nil {
		return "", err
	}
	if !safeComponent(name) {
		return "", fmt.Errorf("%w: file %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, name), nil
}

// safeComponent reports whether name is usable as a single path
// component: non-empty, no separators, not a dot-name.
func safeComponent(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name
}
