package session

import (
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
)

// ID names one session: the manager slot it lives in and the generation the
// slot was given when the session started. Generations are never 0.
type ID struct {
	Slot       int
	Generation uint32
}

// IsZero reports whether the ID names no session.
func (id ID) IsZero() bool {
	return id.Generation == 0
}

// Slot is the manager's record of one session.
type Slot struct {
	State      SlotState
	Generation uint32
	Algorithm  hace.Algorithm

	// ProviderSession is the provider slot holding the session's context.
	ProviderSession int

	// Keyed is set for HMAC sessions.
	Keyed bool

	// Poisoned is set once an update or finalize failed. The context may
	// hold partially absorbed data, so the session can only be cancelled.
	Poisoned bool
}

// Table is the manager's fixed slot table. It is not safe for concurrent
// use; the Manager serializes access.
type Table struct {
	slots       [provider.MaxSessions]Slot
	maxSessions int
	count       int
	nextGen     uint32
}

// NewTable creates a table with maxSessions slots. Values outside
// 1..provider.MaxSessions select provider.MaxSessions.
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 || maxSessions > provider.MaxSessions {
		maxSessions = provider.MaxSessions
	}
	return &Table{
		maxSessions: maxSessions,
		nextGen:     1,
	}
}

// Reserve claims the lowest free slot and marks it allocated.
// Returns ErrTooManySessions if every slot is in use.
func (t *Table) Reserve() (int, error) {
	for i := 0; i < t.maxSessions; i++ {
		if t.slots[i].State == SlotStateFree {
			t.slots[i] = Slot{State: SlotStateAllocated}
			t.count++
			return i, nil
		}
	}
	return 0, ErrTooManySessions
}

// Activate turns a reserved slot into a live session and assigns it a fresh
// generation.
func (t *Table) Activate(idx int, algo hace.Algorithm, providerSession int, keyed bool) (ID, error) {
	if idx < 0 || idx >= t.maxSessions || t.slots[idx].State != SlotStateAllocated {
		return ID{}, ErrInvalidSession
	}
	gen := t.nextGeneration()
	t.slots[idx] = Slot{
		State:           SlotStateActive,
		Generation:      gen,
		Algorithm:       algo,
		ProviderSession: providerSession,
		Keyed:           keyed,
	}
	return ID{Slot: idx, Generation: gen}, nil
}

// nextGeneration returns the next generation not held by a live slot,
// skipping 0 on wrap.
func (t *Table) nextGeneration() uint32 {
	for {
		gen := t.nextGen
		t.nextGen++
		if t.nextGen == 0 {
			t.nextGen = 1
		}
		if _, ok := t.FindByGeneration(gen); !ok {
			return gen
		}
	}
}

// Lookup returns the live slot named by id. Stale or out-of-range IDs
// return ErrInvalidSession.
func (t *Table) Lookup(id ID) (*Slot, error) {
	if id.Slot < 0 || id.Slot >= t.maxSessions || id.IsZero() {
		return nil, ErrInvalidSession
	}
	s := &t.slots[id.Slot]
	if s.State != SlotStateActive || s.Generation != id.Generation {
		return nil, ErrInvalidSession
	}
	return s, nil
}

// Free returns a slot to the free pool. Freeing a free slot is a no-op.
func (t *Table) Free(idx int) {
	if idx < 0 || idx >= t.maxSessions || t.slots[idx].State == SlotStateFree {
		return
	}
	t.slots[idx] = Slot{}
	t.count--
}

// FindByGeneration returns the ID of the live session with generation gen.
func (t *Table) FindByGeneration(gen uint32) (ID, bool) {
	if gen == 0 {
		return ID{}, false
	}
	for i := 0; i < t.maxSessions; i++ {
		s := &t.slots[i]
		if s.State == SlotStateActive && s.Generation == gen {
			return ID{Slot: i, Generation: gen}, true
		}
	}
	return ID{}, false
}

// Get returns a copy of slot idx.
func (t *Table) Get(idx int) (Slot, bool) {
	if idx < 0 || idx >= t.maxSessions {
		return Slot{}, false
	}
	return t.slots[idx], true
}

// Count returns the number of slots not free.
func (t *Table) Count() int {
	return t.count
}

// IsFull returns true if no slot is free.
func (t *Table) IsFull() bool {
	return t.count >= t.maxSessions
}

// MaxSessions returns the table capacity.
func (t *Table) MaxSessions() int {
	return t.maxSessions
}
