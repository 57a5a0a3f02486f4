package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManifest_MissingFile(t *testing.T) {
	m := NewManifest(filepath.Join(t.TempDir(), "sessions.json"))

	entries, err := m.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	m := NewManifest(filepath.Join(t.TempDir(), "sessions.json"))

	want := map[string]ManifestEntry{
		"AbCdEfGh": {OwnerToken: "tok-1", CompleteTimeMs: 1700000000000},
		"ZzYyXxWw": {OwnerToken: "tok-2", CompleteTimeMs: 1700000100000},
	}
	if err := m.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := m.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for id, entry := range want {
		if got[id] != entry {
			t.Errorf("entry %s = %+v, want %+v", id, got[id], entry)
		}
	}
}

func TestManifest_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManifest(path)
	if _, err := m.Read(); err == nil {
		t.Fatal("Read of corrupt manifest should fail")
	}
}

func TestManifest_WriteReplaces(t *testing.T) {
	dir := t.TempDir()
	m := NewManifest(filepath.Join(dir, "sessions.json"))

	if err := m.Write(map[string]ManifestEntry{"old": {OwnerToken: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(map[string]ManifestEntry{"new": {OwnerToken: "b"}}); err != nil {
		t.Fatal(err)
	}

	got, err := m.Read()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["old"]; ok {
		t.Error("stale entry survived rewrite")
	}
	if got["new"].OwnerToken != "b" {
		t.Errorf("entry new = %+v", got["new"])
	}

	// No temp files left behind.
	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range names {
		if strings.HasPrefix(e.Name(), ".sessions-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
