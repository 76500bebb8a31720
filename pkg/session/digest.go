package session

import (
	"fmt"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
)

// Digest is a live session of algorithm A. It is a reference, not the
// state: the state lives in the session's provider slot, and every call is
// checked against the manager's record so a handle outliving its session
// gets ErrInvalidSession.
type Digest[A digest.Algorithm] struct {
	m               *Manager
	id              ID
	providerSession int
	keyed           bool
}

// Update absorbs data. On error the session stays live but poisoned:
// later updates and finalize fail with digest.ErrContextPoisoned and the
// session should be cancelled. A failure to obtain the controller does not
// poison the session.
func (d *Digest[A]) Update(data []byte) error {
	if d == nil || d.m == nil {
		return ErrInvalidSession
	}
	m := d.m
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.validate(d.id, digest.KindOf[A]())
	if err != nil {
		return err
	}
	if s.Poisoned {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, digest.ErrContextPoisoned)
	}
	l, err := lend[A](m, s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	err = l.update(data)
	m.restoreController(l.suspend())
	if err != nil {
		s.Poisoned = true
		if m.log != nil {
			m.log.Warnf("session slot=%d gen=%d poisoned by failed update: %v", d.id.Slot, d.id.Generation, err)
		}
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	return nil
}

// Handle returns a reference to the session that carries no manager.
func (d *Digest[A]) Handle() Handle[A] {
	return Handle[A]{id: d.id}
}

// ID returns the session ID.
func (d *Digest[A]) ID() ID {
	return d.id
}

// Algorithm returns the algorithm selected by A.
func (d *Digest[A]) Algorithm() hace.Algorithm {
	return digest.KindOf[A]()
}

// Keyed reports whether this is an HMAC session.
func (d *Digest[A]) Keyed() bool {
	return d.keyed
}

// ProviderSession returns the provider slot holding the session's context.
func (d *Digest[A]) ProviderSession() int {
	return d.providerSession
}

// Handle identifies a session of algorithm A. Finalize returns the handle
// of the session it ended, which no longer validates.
type Handle[A digest.Algorithm] struct {
	id ID
}

// ID returns the session ID.
func (h Handle[A]) ID() ID {
	return h.id
}

// lease is a session's digest holding the lent controller.
type lease[A digest.Algorithm] struct {
	plain *digest.OwnedContext[A, *provider.Multi]
	keyed *digest.OwnedHMAC[A, *provider.Multi]
}

func initLease[A digest.Algorithm](c *digest.Controller[*provider.Multi], key []byte, keyed bool) (*lease[A], error) {
	if keyed {
		h, err := digest.InitHMAC[A](c, key)
		if err != nil {
			return nil, err
		}
		return &lease[A]{keyed: h}, nil
	}
	o, err := digest.Init[A](c)
	if err != nil {
		return nil, err
	}
	return &lease[A]{plain: o}, nil
}

func resume[A digest.Algorithm](c *digest.Controller[*provider.Multi], keyed bool) (*lease[A], error) {
	if keyed {
		h, err := digest.ResumeHMAC[A](c)
		if err != nil {
			return nil, err
		}
		return &lease[A]{keyed: h}, nil
	}
	o, err := digest.Resume[A](c)
	if err != nil {
		return nil, err
	}
	return &lease[A]{plain: o}, nil
}

func (l *lease[A]) update(data []byte) error {
	if l.keyed != nil {
		next, err := l.keyed.Update(data)
		if err != nil {
			return err
		}
		l.keyed = next
		return nil
	}
	next, err := l.plain.Update(data)
	if err != nil {
		return err
	}
	l.plain = next
	return nil
}

func (l *lease[A]) finalize() (digest.Digest, *digest.Controller[*provider.Multi], error) {
	if l.keyed != nil {
		return l.keyed.Finalize()
	}
	return l.plain.Finalize()
}

func (l *lease[A]) cancel() (*digest.Controller[*provider.Multi], error) {
	if l.keyed != nil {
		return l.keyed.Cancel()
	}
	return l.plain.Cancel()
}

// suspend hands the controller back, leaving the state in the provider slot.
func (l *lease[A]) suspend() *digest.Controller[*provider.Multi] {
	var c *digest.Controller[*provider.Multi]
	if l.keyed != nil {
		c, _ = l.keyed.Suspend()
	} else {
		c, _ = l.plain.Suspend()
	}
	return c
}
