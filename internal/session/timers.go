package session

import (
	"sync"
	"time"
)

// Deletion reasons recorded in logs when a timer fires.
const (
	reasonInactivity = "inactivity timeout"
	reasonRetention  = "retention window expired"
	reasonOwner      = "owner request"
)

// Timers schedules the deletion of sessions. Each session has at most
// one pending timer: arming always cancels whatever was pending before.
type Timers struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	expire  func(sessionID, reason string)
}

// NewTimers creates a Timers whose fired or immediate deletions are
// delivered through expire.
func NewTimers(expire func(sessionID, reason string)) *Timers {
	return &Timers{
		pending: make(map[string]*time.Timer),
		expire:  expire,
	}
}

// Arm schedules deletion of a session after d, superseding any pending
// timer for it.
func (t *Timers) Arm(sessionID string, d time.Duration, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.pending[sessionID]; ok {
		old.Stop()
	}

	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		// A timer superseded between firing and locking must not expire
		// the session.
		if t.pending[sessionID] != tm {
			t.mu.Unlock()
			return
		}
		delete(t.pending, sessionID)
		t.mu.Unlock()
		t.expire(sessionID, reason)
	})
	t.pending[sessionID] = tm
}

// Cancel drops any pending timer for a session.
func (t *Timers) Cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tm, ok := t.pending[sessionID]; ok {
		tm.Stop()
		delete(t.pending, sessionID)
	}
}

// Fire cancels any pending timer and expires the session immediately,
// synchronously.
func (t *Timers) Fire(sessionID, reason string) {
	t.Cancel(sessionID)
	t.expire(sessionID, reason)
}

// Armed reports whether a session currently has a pending timer.
func (t *Timers) Armed(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[sessionID]
	return ok
}
