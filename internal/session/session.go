// Package session implements the resumable chunked-upload session core:
// the in-memory registry of upload sessions, the per-file write
// serialization, the deletion/expiry lifecycle, and the persisted
// completion log that lets completed sessions survive restarts.
package session

import (
	"io"
	"sync"
	"time"
)

// Status represents the current state of an upload session.
type Status string

const (
	// StatusCreated indicates the session exists but has received no data.
	StatusCreated Status = "CREATED"
	// StatusReceiving indicates at least one chunk has been accepted.
	StatusReceiving Status = "RECEIVING"
	// StatusComplete indicates all declared bytes are written to disk.
	StatusComplete Status = "COMPLETE"
	// StatusDeleted indicates the session was removed; the state is terminal.
	StatusDeleted Status = "DELETED"
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusCreated:   {StatusReceiving, StatusDeleted},
	StatusReceiving: {StatusComplete, StatusDeleted},
	StatusComplete:  {StatusDeleted},
	StatusDeleted:   {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one upload transaction covering one or more files.
// All mutable state is guarded by mu; byte counters are only ever
// updated with it held, so the session-level totals and the per-file
// totals can never disagree.
type Session struct {
	mu sync.Mutex

	id            string
	ownerToken    string
	totalSize     int64
	receivedBytes int64
	writtenBytes  int64
	status        Status
	completeTime  time.Time
	files         map[string]*FileTransfer

	// done is closed exactly once when the session is torn down,
	// releasing blocked producers and write workers.
	done     chan struct{}
	doneOnce sync.Once
}

// newSession creates a live session ready to receive chunks.
func newSession(id, ownerToken string, totalSize int64) *Session {
	return &Session{
		id:         id,
		ownerToken: ownerToken,
		totalSize:  totalSize,
		status:     StatusCreated,
		files:      make(map[string]*FileTransfer),
		done:       make(chan struct{}),
	}
}

// rehydrateSession builds the minimal complete session recovered from
// the persisted log. Byte counters and file transfers are not restored;
// a recovered session only serves downloads until its expiry fires.
func rehydrateSession(id, ownerToken string, completeTime time.Time) *Session {
	return &Session{
		id:           id,
		ownerToken:   ownerToken,
		status:       StatusComplete,
		completeTime: completeTime,
		files:        make(map[string]*FileTransfer),
		done:         make(chan struct{}),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// TotalSize returns the declared byte total across all files.
func (s *Session) TotalSize() int64 { return s.totalSize }

// Status returns the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ReceivedBytes returns the number of accepted bytes, including bytes
// still queued for writing.
func (s *Session) ReceivedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receivedBytes
}

// WrittenBytes returns the number of bytes confirmed on disk.
func (s *Session) WrittenBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writtenBytes
}

// CompleteTime returns when the session reached COMPLETE, or the zero
// time if it has not.
func (s *Session) CompleteTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeTime
}

// transitionLocked moves the session to a new state if the transition
// is legal. Callers must hold s.mu.
func (s *Session) transitionLocked(to Status) bool {
	if !canTransition(s.status, to) {
		return false
	}
	s.status = to
	return true
}

// abortLocked marks the session deleted and releases everything blocked
// on it. Callers must hold s.mu.
func (s *Session) abortLocked() {
	s.status = StatusDeleted
	s.doneOnce.Do(func() { close(s.done) })
}

// FileTransfer tracks one file within a session. The pending channel is
// unbuffered and consumed by a single worker goroutine, so bytes are
// appended in enqueue order with at most one write in flight, and a
// producer blocks while the previous write is outstanding: that block
// is the backpressure point.
type FileTransfer struct {
	name          string
	declaredSize  int64
	receivedBytes int64
	writtenBytes  int64

	handle    io.WriteCloser
	closed    bool
	finalized bool

	pending chan []byte
	active  bool
}

func newFileTransfer(name string, declaredSize int64) *FileTransfer {
	return &FileTransfer{
		name:         name,
		declaredSize: declaredSize,
		pending:      make(chan []byte),
	}
}

// closeHandleLocked closes the file handle exactly once. Callers must
// hold the owning session's mutex.
func (ft *FileTransfer) closeHandleLocked() error {
	if ft.closed || ft.handle == nil {
		return nil
	}
	ft.closed = true
	return ft.handle.Close()
}
