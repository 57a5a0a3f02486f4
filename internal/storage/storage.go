// Package storage provides durable storage for upload sessions.
// It defines the Storage interface (port) for hexagonal architecture,
// a local-disk implementation, and an optional S3 archiver for
// completed sessions.
//
// On disk, every session owns one subdirectory under the storage root,
// named by its session id, containing the received files named as
// submitted.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for session file storage.
// Implementations must serialize nothing themselves: callers guarantee
// at most one writer per file at any time.
type Storage interface {
	// CreateSession creates the directory for a new session.
	CreateSession(ctx context.Context, sessionID string) error

	// OpenAppend opens a file inside a session directory for appending,
	// creating it if necessary. The caller owns the returned handle and
	// must close it exactly once.
	OpenAppend(ctx context.Context, sessionID, name string) (io.WriteCloser, error)

	// OpenFile opens a stored file for reading and reports its size.
	// The caller is responsible for closing the returned ReadCloser.
	OpenFile(ctx context.Context, sessionID, name string) (io.ReadCloser, int64, error)

	// ListFiles returns the names of the files stored for a session.
	ListFiles(ctx context.Context, sessionID string) ([]string, error)

	// RemoveSession deletes a session directory and everything in it.
	// Removing a session that does not exist is not an error.
	RemoveSession(ctx context.Context, sessionID string) error

	// ListSessions enumerates the session directories under the root.
	ListSessions(ctx context.Context) ([]string, error)
}
