package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// drain is the single write worker for one file. It is started on the
// file's first chunk and consumes the pending channel until the file
// reaches its declared size, the session is torn down, or a write
// fails. Running exactly one worker per file is what guarantees that
// appends happen in enqueue order with at most one write in flight.
func (r *Registry) drain(s *Session, ft *FileTransfer) {
	for {
		select {
		case <-s.done:
			return
		case body := <-ft.pending:
			fileDone, err := r.applyChunk(s, ft, body)
			if err != nil {
				r.logger.Error("chunk write failed",
					slog.String("session_id", s.id),
					slog.String("file", ft.name),
					slog.String("error", err.Error()),
				)
				// Storage failure aborts the whole session; the
				// invariants are not worth repairing piecemeal.
				r.remove(s.id, "write error")
				return
			}
			if fileDone {
				return
			}
		}
	}
}

// applyChunk writes one chunk, confirms the written-byte counters, and
// finalizes the file and session when their declared sizes are reached.
// It reports whether the file is finished.
func (r *Registry) applyChunk(s *Session, ft *FileTransfer, body []byte) (bool, error) {
	// The handle opens lazily on the file's first chunk. Open before
	// taking the lock; publication of ft.handle happens under it.
	if ft.handle == nil {
		h, err := r.store.OpenAppend(context.Background(), s.id, ft.name)
		if err != nil {
			return false, fmt.Errorf("open for append: %w", err)
		}
		s.mu.Lock()
		if s.status == StatusDeleted {
			s.mu.Unlock()
			_ = h.Close()
			return false, errSessionAborted
		}
		ft.handle = h
		s.mu.Unlock()
	}

	if _, err := ft.handle.Write(body); err != nil {
		return false, fmt.Errorf("append: %w", err)
	}

	n := int64(len(body))

	s.mu.Lock()
	if s.status == StatusDeleted {
		s.mu.Unlock()
		return false, errSessionAborted
	}

	ft.writtenBytes += n
	s.writtenBytes += n

	if ft.writtenBytes > ft.declaredSize || s.writtenBytes > s.totalSize {
		// Admission control should make this unreachable; treat it as
		// fatal rather than carry on with broken counters.
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %q overran its declared size", ErrCapacityExceeded, ft.name)
	}

	var closeErr error
	fileDone := ft.writtenBytes == ft.declaredSize
	if fileDone && !ft.finalized {
		// The serialized worker is the only finalizer, so the handle
		// closes exactly once even when two chunks could each satisfy
		// the size condition.
		ft.finalized = true
		ft.active = false
		closeErr = ft.closeHandleLocked()
	}

	sessionDone := closeErr == nil &&
		s.writtenBytes == s.totalSize &&
		s.transitionLocked(StatusComplete)
	if sessionDone {
		s.completeTime = time.Now()
	}
	s.mu.Unlock()

	if closeErr != nil {
		return false, fmt.Errorf("finalize %q: %w", ft.name, closeErr)
	}
	if sessionDone {
		r.finishSession(s)
	}
	return fileDone, nil
}
