package provider

import (
	"fmt"

	"github.com/backkem/hace/pkg/hace"
	"github.com/pion/logging"
)

// MaxSessions is the fixed slot capacity of a Multi provider.
const MaxSessions = 8

// noSession marks lastLoaded as empty.
const noSession = -1

// MultiConfig configures a Multi provider.
type MultiConfig struct {
	// MaxSessions is the number of usable slots, 1..MaxSessions.
	// Zero selects MaxSessions.
	MaxSessions int

	// LoggerFactory creates the provider logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// SwitchStats counts software context switches.
type SwitchStats struct {
	// Switches is the number of times the hardware context was reloaded.
	Switches uint64
	// Saves is the number of times hardware state was written back to a slot.
	Saves uint64
}

// Multi multiplexes the single hardware context across session slots.
//
// The active session is only a selection; state moves when Context is
// called and the slot resident in hardware (lastLoaded) differs from the
// active one. Save and restore copy every field except the scatter/gather
// descriptors, which always point into the shared DMA region.
//
// Multi is not safe for concurrent use. Callers serialize access.
type Multi struct {
	hw *hace.Context

	slots       [MaxSessions]hace.Context
	allocated   [MaxSessions]bool
	maxSessions int

	active     int
	lastLoaded int

	stats SwitchStats
	log   logging.LeveledLogger
}

// NewMulti creates a provider over the hardware-visible context.
func NewMulti(hw *hace.Context, config MultiConfig) (*Multi, error) {
	if hw == nil {
		return nil, ErrNilContext
	}
	n := config.MaxSessions
	if n == 0 {
		n = MaxSessions
	}
	if n < 1 || n > MaxSessions {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSessionCount, config.MaxSessions)
	}

	m := &Multi{
		hw:          hw,
		maxSessions: n,
		lastLoaded:  noSession,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("hace-provider")
	}
	return m, nil
}

// MaxSessions returns the configured slot capacity.
func (m *Multi) MaxSessions() int {
	return m.maxSessions
}

// AllocateSession claims the lowest free slot and returns its id.
// The slot starts zeroed.
func (m *Multi) AllocateSession() (int, error) {
	for id := 0; id < m.maxSessions; id++ {
		if !m.allocated[id] {
			m.allocated[id] = true
			m.slots[id].Zeroize()
			if m.log != nil {
				m.log.Debugf("allocated session %d", id)
			}
			return id, nil
		}
	}
	return 0, ErrNoSessionsAvailable
}

// ReleaseSession zeroes a slot and returns it to the free pool. If the slot
// is resident in hardware, the next Context call reloads from scratch.
func (m *Multi) ReleaseSession(id int) error {
	if err := m.check(id); err != nil {
		return err
	}

	m.slots[id].Zeroize()
	m.allocated[id] = false
	if m.lastLoaded == id {
		m.lastLoaded = noSession
	}
	if m.log != nil {
		m.log.Debugf("released session %d", id)
	}
	return nil
}

// CopySession copies the running state of session src into session dst.
// Either may be resident in hardware; the active selection is unchanged
// and no context switch is counted.
func (m *Multi) CopySession(dst, src int) error {
	if err := m.check(dst); err != nil {
		return err
	}
	if err := m.check(src); err != nil {
		return err
	}
	if dst == src {
		return nil
	}

	from := &m.slots[src]
	if m.lastLoaded == src {
		from = m.hw
	}
	to := &m.slots[dst]
	if m.lastLoaded == dst {
		to = m.hw
	}
	to.CopyStateFrom(from)
	if m.log != nil {
		m.log.Tracef("copied session %d -> %d", src, dst)
	}
	return nil
}

// SetActiveSession selects the session the next Context call will return.
// No state is copied until then.
func (m *Multi) SetActiveSession(id int) error {
	if err := m.check(id); err != nil {
		return err
	}
	m.active = id
	return nil
}

// ActiveSession returns the selected session id.
func (m *Multi) ActiveSession() int {
	return m.active
}

// LastLoaded returns the session whose state is resident in hardware.
func (m *Multi) LastLoaded() (int, bool) {
	if m.lastLoaded == noSession {
		return 0, false
	}
	return m.lastLoaded, true
}

// IsSessionAllocated reports whether id names an allocated slot.
func (m *Multi) IsSessionAllocated(id int) bool {
	return id >= 0 && id < m.maxSessions && m.allocated[id]
}

// AllocatedCount returns the number of allocated slots.
func (m *Multi) AllocatedCount() int {
	n := 0
	for id := 0; id < m.maxSessions; id++ {
		if m.allocated[id] {
			n++
		}
	}
	return n
}

// Stats returns the context switch counters.
func (m *Multi) Stats() SwitchStats {
	return m.stats
}

// Context loads the active session into hardware if it is not already
// resident and returns the hardware context.
func (m *Multi) Context() (*hace.Context, error) {
	if m.lastLoaded == m.active {
		return m.hw, nil
	}

	if err := m.check(m.active); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextSwitchFailed, err)
	}

	if m.lastLoaded != noSession {
		if err := m.check(m.lastLoaded); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextSwitchFailed, err)
		}
		m.slots[m.lastLoaded].CopyStateFrom(m.hw)
		m.stats.Saves++
	}
	m.hw.CopyStateFrom(&m.slots[m.active])
	m.stats.Switches++

	if m.log != nil {
		if m.lastLoaded == noSession {
			m.log.Tracef("context switch: load %d", m.active)
		} else {
			m.log.Tracef("context switch: %d -> %d", m.lastLoaded, m.active)
		}
	}
	m.lastLoaded = m.active
	return m.hw, nil
}

func (m *Multi) check(id int) error {
	if id < 0 || id >= m.maxSessions {
		return fmt.Errorf("%w: %d", ErrSessionOutOfBounds, id)
	}
	if !m.allocated[id] {
		return fmt.Errorf("%w: %d", ErrSessionNotAllocated, id)
	}
	return nil
}
