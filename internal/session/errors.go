package session

import "errors"

// Caller-class errors resolved at the boundary without mutating state,
// plus the capacity error that tears the owning session down.
var (
	// ErrSessionNotFound is returned for unknown or deleted session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOwnerMismatch is returned when the presented owner token does
	// not match the session's.
	ErrOwnerMismatch = errors.New("owner token mismatch")

	// ErrCapacityExceeded is returned when a chunk would push received
	// or written totals past the declared sizes. The session is deleted;
	// no partial repair is attempted.
	ErrCapacityExceeded = errors.New("declared capacity exceeded")

	// ErrDeclaredSizeChanged is returned when a chunk re-declares a file
	// with a different size than its first chunk did.
	ErrDeclaredSizeChanged = errors.New("declared file size changed")

	// errSessionAborted aborts pending work when a session is torn down
	// mid-transfer.
	errSessionAborted = errors.New("session aborted")
)
