package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return s
}

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates root if not exists", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "phile")

		s, err := NewLocalStorage(root)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}
		if s.Root() != root {
			t.Errorf("Root() = %v, want %v", s.Root(), root)
		}

		info, err := os.Stat(root)
		if err != nil {
			t.Fatalf("root not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		s, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "phile")
		if s.Root() != expected {
			t.Errorf("Root() = %v, want %v", s.Root(), expected)
		}
	})
}

func TestLocalStorage_AppendAndRead(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "AbCdEfGh"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	t.Run("appends across handles", func(t *testing.T) {
		for _, part := range []string{"hello ", "world"} {
			w, err := s.OpenAppend(ctx, "AbCdEfGh", "greeting.txt")
			if err != nil {
				t.Fatalf("OpenAppend() error = %v", err)
			}
			if _, err := w.Write([]byte(part)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
		}

		r, size, err := s.OpenFile(ctx, "AbCdEfGh", "greeting.txt")
		if err != nil {
			t.Fatalf("OpenFile() error = %v", err)
		}
		defer func() { _ = r.Close() }()

		if size != int64(len("hello world")) {
			t.Errorf("size = %d, want %d", size, len("hello world"))
		}
		content, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(content) != "hello world" {
			t.Errorf("got %q, want %q", string(content), "hello world")
		}
	})

	t.Run("lists stored files", func(t *testing.T) {
		names, err := s.ListFiles(ctx, "AbCdEfGh")
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(names) != 1 || names[0] != "greeting.txt" {
			t.Errorf("ListFiles() = %v, want [greeting.txt]", names)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, _, err := s.OpenFile(ctx, "AbCdEfGh", "missing.txt")
		if err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestLocalStorage_RemoveSession(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "ToDelete"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	w, err := s.OpenAppend(ctx, "ToDelete", "a.txt")
	if err != nil {
		t.Fatalf("OpenAppend() error = %v", err)
	}
	_ = w.Close()

	if err := s.RemoveSession(ctx, "ToDelete"); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "ToDelete")); !os.IsNotExist(err) {
		t.Error("session directory should be gone")
	}

	// Removing twice is not an error.
	if err := s.RemoveSession(ctx, "ToDelete"); err != nil {
		t.Errorf("second RemoveSession() error = %v", err)
	}
}

func TestLocalStorage_ListSessions(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"aaaa", "bbbb"} {
		if err := s.CreateSession(ctx, id); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", id, err)
		}
	}
	// Loose files at the root are not sessions.
	if err := os.WriteFile(filepath.Join(s.Root(), "sessions.json"), []byte("{}"), 0640); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ids, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListSessions() = %v, want 2 entries", ids)
	}
}

func TestLocalStorage_RejectsUnsafeNames(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	bad := []struct {
		session string
		file    string
	}{
		{"../escape", "a.txt"},
		{"ok", "../escape.txt"},
		{"ok", "nested/escape.txt"},
		{"", "a.txt"},
		{"ok", ".."},
		{"ok", ""},
	}

	for _, tc := range bad {
		if _, err := s.OpenAppend(ctx, tc.session, tc.file); !errors.Is(err, ErrInvalidName) {
			t.Errorf("OpenAppend(%q, %q) error = %v, want ErrInvalidName", tc.session, tc.file, err)
		}
	}

	if err := s.CreateSession(ctx, "has/slash"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("CreateSession error = %v, want ErrInvalidName", err)
	}
}

func TestLocalStorage_ContextCancellation(t *testing.T) {
	s := setupTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.CreateSession(ctx, "abcd"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := s.ListSessions(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
