package session

import "errors"

// Session package errors.
var (
	// ErrTooManySessions is returned when the manager's slot table or the
	// provider's slot table is full.
	ErrTooManySessions = errors.New("session: too many sessions")

	// ErrInvalidSession is returned when a handle does not name a live
	// session, including stale handles to a reused slot.
	ErrInvalidSession = errors.New("session: invalid session")

	// ErrControllerInUse is returned when the controller is not in the
	// manager's custody.
	ErrControllerInUse = errors.New("session: controller in use")

	// ErrInitFailed is returned when the digest could not be initialized.
	ErrInitFailed = errors.New("session: initialization failed")

	// ErrUpdateFailed is returned when an update could not be applied.
	// The session stays live; the caller should cancel it.
	ErrUpdateFailed = errors.New("session: update failed")

	// ErrFinalizeFailed is returned when finalization failed. The session
	// stays live; the caller should cancel it.
	ErrFinalizeFailed = errors.New("session: finalization failed")

	// ErrAlgorithmMismatch is returned when a session is driven with a
	// different algorithm than it was started with.
	ErrAlgorithmMismatch = errors.New("session: algorithm mismatch")

	// ErrInvalidSessionCount is returned when a manager is configured with
	// a capacity outside 1..provider.MaxSessions.
	ErrInvalidSessionCount = errors.New("session: invalid session count")
)
