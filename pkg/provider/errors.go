package provider

import "errors"

// Context provider errors.
var (
	// ErrSessionOutOfBounds is returned when a session id is outside the
	// provider's configured capacity.
	ErrSessionOutOfBounds = errors.New("provider: session id out of bounds")

	// ErrSessionNotAllocated is returned when a session id refers to a free slot.
	ErrSessionNotAllocated = errors.New("provider: session not allocated")

	// ErrNoSessionsAvailable is returned when every slot is allocated.
	ErrNoSessionsAvailable = errors.New("provider: no sessions available")

	// ErrContextSwitchFailed is returned when the active session's state
	// could not be loaded into the hardware context.
	ErrContextSwitchFailed = errors.New("provider: context switch failed")

	// ErrInvalidSessionCount is returned when a provider is created with a
	// capacity outside 1..MaxSessions.
	ErrInvalidSessionCount = errors.New("provider: invalid session count")

	// ErrNilContext is returned when a provider is created without a
	// hardware context.
	ErrNilContext = errors.New("provider: nil hardware context")
)
