// Package session ties digest sessions to the hash engine for callers that
// cannot hold a borrowed controller, such as an IPC server.
//
// A Manager owns one digest.Controller over a provider.Multi. Starting a
// session reserves a manager slot and a provider slot, initializes the
// digest there, and returns a typed Digest handle. Each later call selects
// the session's provider slot, lends the controller to the session for the
// duration of the call, and takes it back. The provider switches hardware
// state only when a different session than the last one is addressed.
//
// Sessions are identified by slot index plus a wrapping generation number,
// so a stale handle to a reused slot is rejected with ErrInvalidSession.
package session

// SlotState is the lifecycle state of a manager slot.
type SlotState int

const (
	// SlotStateFree indicates the slot holds no session.
	SlotStateFree SlotState = iota

	// SlotStateAllocated indicates the slot is reserved while its session
	// is being initialized.
	SlotStateAllocated

	// SlotStateActive indicates the slot holds a live session.
	SlotStateActive
)

// String returns a human-readable name for the slot state.
func (s SlotState) String() string {
	switch s {
	case SlotStateFree:
		return "Free"
	case SlotStateAllocated:
		return "Allocated"
	case SlotStateActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the slot state is a defined value.
func (s SlotState) IsValid() bool {
	return s >= SlotStateFree && s <= SlotStateActive
}
