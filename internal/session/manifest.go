package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ManifestEntry is the durable record of one completed session.
type ManifestEntry struct {
	// OwnerToken is the session's management secret.
	OwnerToken string `json:"owner_token"`
	// CompleteTimeMs is when the session completed, in epoch milliseconds.
	CompleteTimeMs int64 `json:"complete_time_ms"`
}

// Manifest is the durable log of completed sessions: a single JSON file
// mapping session id to ManifestEntry. All writes funnel through one
// mutex and replace the file atomically, so a reader can never observe
// partial content.
type Manifest struct {
	mu   sync.Mutex
	path string
}

// NewManifest creates a Manifest stored at path.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path}
}

// Path returns the location of the log file.
func (m *Manifest) Path() string { return m.path }

// Read loads the log. A missing file is an empty log, not an error;
// unreadable or corrupt content is an error the caller may choose to
// tolerate.
func (m *Manifest) Read() (map[string]ManifestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string]ManifestEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}

	entries := map[string]ManifestEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse session log: %w", err)
	}
	return entries, nil
}

// Write atomically replaces the log with the given entries, via a
// temporary file renamed into place.
func (m *Manifest) Write(entries map[string]ManifestEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode session log: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("create session log temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write session log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close session log: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace session log: %w", err)
	}
	return nil
}
