package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/n-1x/phile/internal/protocol"
	"github.com/n-1x/phile/internal/session/id"
	"github.com/n-1x/phile/internal/storage"
)

// Archiver receives completed sessions for off-box archival.
type Archiver interface {
	Archive(ctx context.Context, sessionID string) error
}

// Registry owns the table of active and complete upload sessions. It
// routes chunks to the per-file write workers, enforces size and
// ownership invariants, drives the deletion/expiry lifecycle, and keeps
// the persisted completion log current.
type Registry struct {
	store    storage.Storage
	manifest *Manifest
	timers   *Timers
	logger   *slog.Logger

	retention  time.Duration
	inactivity time.Duration
	idLength   int
	archiver   Archiver

	mu       sync.RWMutex
	sessions map[string]*Session

	// persistMu serializes log snapshots so an older snapshot can never
	// overwrite a newer one.
	persistMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetention sets how long a completed session stays downloadable.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithInactivityTimeout sets the maximum idle time between accepted
// chunks before an incomplete session is abandoned.
func WithInactivityTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.inactivity = d
		}
	}
}

// WithIDLength sets the length of generated session ids.
func WithIDLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.idLength = n
		}
	}
}

// WithArchiver mirrors completed sessions through the given archiver.
func WithArchiver(a Archiver) Option {
	return func(r *Registry) {
		r.archiver = a
	}
}

// NewRegistry creates a Registry persisting to store and manifest.
func NewRegistry(store storage.Storage, manifest *Manifest, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:      store,
		manifest:   manifest,
		logger:     logger,
		retention:  24 * time.Hour,
		inactivity: 5 * time.Minute,
		idLength:   id.DefaultLength,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.timers = NewTimers(r.expire)
	return r
}

// Create generates a unique session id, stores a new session, and arms
// its inactivity timer.
func (r *Registry) Create(ctx context.Context, ownerToken string, totalSize int64) (*Session, error) {
	r.mu.Lock()
	var sid string
	for {
		sid = id.Generate(r.idLength)
		if _, exists := r.sessions[sid]; !exists {
			break
		}
	}
	s := newSession(sid, ownerToken, totalSize)
	r.sessions[sid] = s
	r.mu.Unlock()

	if err := r.store.CreateSession(ctx, sid); err != nil {
		r.mu.Lock()
		delete(r.sessions, sid)
		r.mu.Unlock()
		return nil, fmt.Errorf("create session storage: %w", err)
	}

	r.timers.Arm(sid, r.inactivity, reasonInactivity)

	r.logger.Info("session created",
		slog.String("session_id", sid),
		slog.Int64("total_size", totalSize),
	)
	return s, nil
}

// Get retrieves a session by id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// RecordChunk verifies ownership and capacity for one chunk, routes its
// bytes to the file's write worker, and re-arms the inactivity timer.
// It blocks while the file's previous write is still in flight and
// returns the session's running received-byte count.
//
// Capacity violations delete the session: the declared totals no longer
// describe what the client is sending, and no partial repair is
// attempted.
func (r *Registry) RecordChunk(ctx context.Context, desc protocol.ChunkDescriptor, body []byte) (int64, error) {
	s, err := r.Get(desc.SessionID)
	if err != nil {
		return 0, err
	}

	n := int64(len(body))

	s.mu.Lock()
	if s.status == StatusDeleted {
		s.mu.Unlock()
		return 0, ErrSessionNotFound
	}
	if s.ownerToken != desc.OwnerToken {
		s.mu.Unlock()
		return 0, ErrOwnerMismatch
	}

	if s.status == StatusComplete || s.receivedBytes+n > s.totalSize {
		s.mu.Unlock()
		r.remove(s.id, "session capacity exceeded")
		return 0, fmt.Errorf("%w: session %s", ErrCapacityExceeded, s.id)
	}

	ft, ok := s.files[desc.FileName]
	if ok && ft.declaredSize != desc.DeclaredFileSize {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: file %q", ErrDeclaredSizeChanged, desc.FileName)
	}
	if ok && ft.receivedBytes+n > ft.declaredSize {
		s.mu.Unlock()
		r.remove(s.id, "file capacity exceeded")
		return 0, fmt.Errorf("%w: file %q", ErrCapacityExceeded, desc.FileName)
	}
	if !ok {
		if n > desc.DeclaredFileSize {
			s.mu.Unlock()
			r.remove(s.id, "file capacity exceeded")
			return 0, fmt.Errorf("%w: file %q", ErrCapacityExceeded, desc.FileName)
		}
		ft = newFileTransfer(desc.FileName, desc.DeclaredFileSize)
		s.files[desc.FileName] = ft
	}

	ft.receivedBytes += n
	s.receivedBytes += n
	if s.status == StatusCreated {
		s.transitionLocked(StatusReceiving)
	}
	if !ft.active {
		ft.active = true
		go r.drain(s, ft)
	}
	r.timers.Arm(s.id, r.inactivity, reasonInactivity)
	s.mu.Unlock()

	// Hand the chunk to the file's worker. The unbuffered channel makes
	// this the backpressure point: the caller stops reading network
	// bytes until the previous write for this file has drained.
	select {
	case ft.pending <- body:
	case <-s.done:
		return 0, ErrSessionNotFound
	}

	return s.ReceivedBytes(), nil
}

// Delete removes a session immediately on behalf of its owner.
// A token mismatch leaves the session untouched.
func (r *Registry) Delete(sessionID, ownerToken string) error {
	s, err := r.Get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	match := s.ownerToken == ownerToken
	s.mu.Unlock()
	if !match {
		return ErrOwnerMismatch
	}

	r.remove(sessionID, reasonOwner)
	return nil
}

// Files lists the stored file names of a session. Read access needs no
// owner token, only an existing session.
func (r *Registry) Files(ctx context.Context, sessionID string) ([]string, error) {
	if _, err := r.Get(sessionID); err != nil {
		return nil, err
	}
	return r.store.ListFiles(ctx, sessionID)
}

// OpenFile opens a stored file of a session for download and reports
// its size.
func (r *Registry) OpenFile(ctx context.Context, sessionID, name string) (io.ReadCloser, int64, error) {
	if _, err := r.Get(sessionID); err != nil {
		return nil, 0, err
	}
	return r.store.OpenFile(ctx, sessionID, name)
}

// expire is the Timers callback.
func (r *Registry) expire(sessionID, reason string) {
	r.remove(sessionID, reason)
}

// remove tears a session down: it leaves the table, every open file
// handle is closed, the on-disk directory is deleted, and the
// completion log is rewritten. Safe to call more than once.
func (r *Registry) remove(sessionID, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.timers.Cancel(sessionID)

	s.mu.Lock()
	s.abortLocked()
	// Handles close strictly before the directory goes away, so no
	// descriptor leaks and no delete racing an in-flight write.
	for _, ft := range s.files {
		if err := ft.closeHandleLocked(); err != nil {
			r.logger.Warn("closing file during delete failed",
				slog.String("session_id", sessionID),
				slog.String("file", ft.name),
				slog.String("error", err.Error()),
			)
		}
	}
	s.mu.Unlock()

	if err := r.store.RemoveSession(context.Background(), sessionID); err != nil {
		r.logger.Error("removing session storage failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	r.persist()

	r.logger.Info("session deleted",
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	)
}

// finishSession runs once when the final byte of a session lands on
// disk: persist the completion, arm the expiry timer, and hand the
// session to the archiver if one is configured.
func (r *Registry) finishSession(s *Session) {
	r.persist()
	r.timers.Arm(s.id, r.retention, reasonRetention)

	r.logger.Info("session complete",
		slog.String("session_id", s.id),
		slog.Int64("total_size", s.TotalSize()),
	)

	if r.archiver != nil {
		go func() {
			if err := r.archiver.Archive(context.Background(), s.id); err != nil {
				r.logger.Error("archiving session failed",
					slog.String("session_id", s.id),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}

// persist rewrites the completion log from the current table.
func (r *Registry) persist() {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	entries := map[string]ManifestEntry{}
	r.mu.RLock()
	for sid, s := range r.sessions {
		s.mu.Lock()
		if s.status == StatusComplete {
			entries[sid] = ManifestEntry{
				OwnerToken:     s.ownerToken,
				CompleteTimeMs: s.completeTime.UnixMilli(),
			}
		}
		s.mu.Unlock()
	}
	r.mu.RUnlock()

	if err := r.manifest.Write(entries); err != nil {
		r.logger.Error("writing session log failed",
			slog.String("error", err.Error()),
		)
	}
}

// Recover rebuilds the table from the persisted log at process start.
// Completed sessions are rehydrated and their remaining expiry armed;
// any on-disk directory the log does not vouch for was mid-upload when
// the process stopped and is purged. Must run before the transport
// starts accepting requests.
func (r *Registry) Recover(ctx context.Context) error {
	entries, err := r.manifest.Read()
	if err != nil {
		r.logger.Warn("session log unreadable, starting empty",
			slog.String("error", err.Error()),
		)
		entries = map[string]ManifestEntry{}
	}

	onDisk, err := r.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("enumerate storage root: %w", err)
	}
	diskSet := make(map[string]bool, len(onDisk))
	for _, sid := range onDisk {
		diskSet[sid] = true
	}

	now := time.Now()
	type pending struct {
		sid       string
		remaining time.Duration
	}
	var expiries []pending

	r.mu.Lock()
	for sid, e := range entries {
		if !diskSet[sid] {
			r.logger.Warn("logged session missing on disk, dropping",
				slog.String("session_id", sid),
			)
			continue
		}
		completeTime := time.UnixMilli(e.CompleteTimeMs)
		r.sessions[sid] = rehydrateSession(sid, e.OwnerToken, completeTime)
		expiries = append(expiries, pending{
			sid:       sid,
			remaining: r.retention - now.Sub(completeTime),
		})
	}
	r.mu.Unlock()

	// Orphans: directories no rehydrated session accounts for.
	for _, sid := range onDisk {
		if _, err := r.Get(sid); err == nil {
			continue
		}
		r.logger.Info("purging orphaned session directory",
			slog.String("session_id", sid),
		)
		if err := r.store.RemoveSession(ctx, sid); err != nil {
			r.logger.Error("purging orphan failed",
				slog.String("session_id", sid),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, p := range expiries {
		if p.remaining <= 0 {
			r.timers.Fire(p.sid, reasonRetention)
		} else {
			r.timers.Arm(p.sid, p.remaining, reasonRetention)
		}
	}

	// Normalize the log: drop whatever was purged above.
	r.persist()

	r.logger.Info("recovery finished",
		slog.Int("recovered_sessions", len(expiries)),
	)
	return nil
}
