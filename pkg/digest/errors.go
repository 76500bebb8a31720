package digest

import "errors"

// Digest and controller errors.
var (
	// ErrContextAccess is returned when the provider could not deliver the
	// hardware context. The provider's error is wrapped.
	ErrContextAccess = errors.New("digest: context access failed")

	// ErrHardwareTimeout is returned when the engine does not signal
	// completion within the poll budget.
	ErrHardwareTimeout = errors.New("digest: hardware timeout")

	// ErrHardwareFault is returned when the engine rejects a command.
	ErrHardwareFault = errors.New("digest: hardware fault")

	// ErrControllerMoved is returned when a controller handle is used after
	// it was moved into an owned context.
	ErrControllerMoved = errors.New("digest: controller moved")

	// ErrContextConsumed is returned when a digest context is used after it
	// was finalized, cancelled, updated by value or superseded.
	ErrContextConsumed = errors.New("digest: context consumed")

	// ErrContextPoisoned is returned by Update and Finalize after an earlier
	// Update or Finalize on the same computation failed. The engine may have
	// folded in part of the data, so the state can no longer produce a
	// correct digest; the context can only be cancelled.
	ErrContextPoisoned = errors.New("digest: context poisoned by a failed operation")

	// ErrAlgorithmMismatch is returned when the hardware context holds a
	// different algorithm than the one requested.
	ErrAlgorithmMismatch = errors.New("digest: algorithm mismatch")

	// ErrNotInitialized is returned when the hardware context holds no
	// running computation.
	ErrNotInitialized = errors.New("digest: context not initialized")

	// ErrBufferOverflow is returned when buffered data would overrun the
	// pending-data buffer.
	ErrBufferOverflow = errors.New("digest: pending buffer overflow")

	// ErrInvalidConfig is returned for an invalid controller configuration.
	ErrInvalidConfig = errors.New("digest: invalid configuration")
)
