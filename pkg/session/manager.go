package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
	"github.com/pion/logging"
)

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions limits the number of concurrent sessions.
	// Default: the provider's capacity.
	MaxSessions int

	// MaxPolls bounds the status reads per engine command. Only used by New.
	// Default: digest.DefaultMaxPolls
	MaxPolls int

	// LoggerFactory creates the manager logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Manager multiplexes digest sessions over one controller.
//
// Between calls the manager holds the controller. A call on a session
// selects the session's provider slot, lends the controller to the
// session's digest for the duration of the call and takes it back, so the
// manager and a running digest never hold the controller at once.
type Manager struct {
	mu       sync.Mutex
	ctrl     *digest.Controller[*provider.Multi]
	provider *provider.Multi
	table    *Table
	log      logging.LeveledLogger
}

// NewManager creates a manager that takes custody of ctrl. On success ctrl
// is emptied and every later call on it returns digest.ErrControllerMoved.
func NewManager(ctrl *digest.Controller[*provider.Multi], config ManagerConfig) (*Manager, error) {
	p, err := ctrl.Provider()
	if err != nil {
		return nil, err
	}
	if config.MaxSessions == 0 {
		config.MaxSessions = p.MaxSessions()
	}
	if config.MaxSessions < 1 || config.MaxSessions > p.MaxSessions() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSessionCount, config.MaxSessions)
	}

	owned, err := ctrl.Move()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		ctrl:     owned,
		provider: p,
		table:    NewTable(config.MaxSessions),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("hace-session")
	}
	return m, nil
}

// New builds the provider, controller and manager for engine.
func New(engine hace.Engine, config ManagerConfig) (*Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", digest.ErrInvalidConfig)
	}
	p, err := provider.NewMulti(engine.Memory().Context(), provider.MultiConfig{
		MaxSessions:   config.MaxSessions,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSessionCount, err)
	}
	ctrl, err := digest.NewController(engine, p, digest.ControllerConfig{
		MaxPolls:      config.MaxPolls,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	return NewManager(ctrl, config)
}

// InitSHA256 starts a SHA-256 session.
func (m *Manager) InitSHA256() (*Digest[digest.SHA256], error) {
	return Init[digest.SHA256](m)
}

// InitSHA384 starts a SHA-384 session.
func (m *Manager) InitSHA384() (*Digest[digest.SHA384], error) {
	return Init[digest.SHA384](m)
}

// InitSHA512 starts a SHA-512 session.
func (m *Manager) InitSHA512() (*Digest[digest.SHA512], error) {
	return Init[digest.SHA512](m)
}

// FinalizeSHA256 finishes a SHA-256 session.
func (m *Manager) FinalizeSHA256(d *Digest[digest.SHA256]) (digest.Digest, Handle[digest.SHA256], error) {
	return Finalize(m, d)
}

// FinalizeSHA384 finishes a SHA-384 session.
func (m *Manager) FinalizeSHA384(d *Digest[digest.SHA384]) (digest.Digest, Handle[digest.SHA384], error) {
	return Finalize(m, d)
}

// FinalizeSHA512 finishes a SHA-512 session.
func (m *Manager) FinalizeSHA512(d *Digest[digest.SHA512]) (digest.Digest, Handle[digest.SHA512], error) {
	return Finalize(m, d)
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Count()
}

// MaxSessions returns the manager capacity.
func (m *Manager) MaxSessions() int {
	return m.table.MaxSessions()
}

// IsValid reports whether id names a live session.
func (m *Manager) IsValid(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.table.Lookup(id)
	return err == nil
}

// SessionInfo returns a copy of slot idx.
func (m *Manager) SessionInfo(idx int) (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Get(idx)
}

// Lookup resolves a generation, as carried on the wire, to a session ID.
func (m *Manager) Lookup(gen uint32) (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.FindByGeneration(gen)
}

// SwitchStats returns the provider's context switch counters.
func (m *Manager) SwitchStats() provider.SwitchStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider.Stats()
}

// takeController removes the controller from manager custody.
func (m *Manager) takeController() (*digest.Controller[*provider.Multi], error) {
	if !m.ctrl.IsValid() {
		return nil, ErrControllerInUse
	}
	c := m.ctrl
	m.ctrl = nil
	return c, nil
}

func (m *Manager) restoreController(c *digest.Controller[*provider.Multi]) {
	m.ctrl = c
}

// validate looks up id and checks it was started for algo.
func (m *Manager) validate(id ID, algo hace.Algorithm) (*Slot, error) {
	s, err := m.table.Lookup(id)
	if err != nil {
		if m.log != nil {
			m.log.Warnf("rejected session slot=%d gen=%d", id.Slot, id.Generation)
		}
		return nil, err
	}
	if s.Algorithm != algo {
		return nil, fmt.Errorf("%w: session is %v, not %v", ErrAlgorithmMismatch, s.Algorithm, algo)
	}
	return s, nil
}

// lend selects the session's provider slot and resumes its digest with the
// manager's controller.
func lend[A digest.Algorithm](m *Manager, s *Slot) (*lease[A], error) {
	c, err := m.takeController()
	if err != nil {
		return nil, err
	}
	if err := m.provider.SetActiveSession(s.ProviderSession); err != nil {
		m.restoreController(c)
		return nil, err
	}
	l, err := resume[A](c, s.Keyed)
	if err != nil {
		m.restoreController(c)
		return nil, err
	}
	return l, nil
}

// release frees the session's provider and manager slots.
func (m *Manager) release(id ID, s *Slot) error {
	err := m.provider.ReleaseSession(s.ProviderSession)
	m.table.Free(id.Slot)
	if m.log != nil {
		m.log.Debugf("session slot=%d gen=%d closed", id.Slot, id.Generation)
	}
	return err
}

// Init starts a session of algorithm A.
func Init[A digest.Algorithm](m *Manager) (*Digest[A], error) {
	return start[A](m, nil, false)
}

// InitHMAC starts an HMAC session of algorithm A keyed with key. The key is
// copied into the session's context and wiped when the session ends.
func InitHMAC[A digest.Algorithm](m *Manager, key []byte) (*Digest[A], error) {
	return start[A](m, key, true)
}

func start[A digest.Algorithm](m *Manager, key []byte, keyed bool) (*Digest[A], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.table.Reserve()
	if err != nil {
		return nil, err
	}
	c, err := m.takeController()
	if err != nil {
		m.table.Free(idx)
		return nil, err
	}
	ps, err := m.provider.AllocateSession()
	if err != nil {
		m.restoreController(c)
		m.table.Free(idx)
		return nil, fmt.Errorf("%w: %w", ErrTooManySessions, err)
	}

	fail := func(err error) (*Digest[A], error) {
		m.restoreController(c)
		_ = m.provider.ReleaseSession(ps)
		m.table.Free(idx)
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	if err := m.provider.SetActiveSession(ps); err != nil {
		return fail(err)
	}
	l, err := initLease[A](c, key, keyed)
	if err != nil {
		return fail(err)
	}
	m.restoreController(l.suspend())

	algo := digest.KindOf[A]()
	id, err := m.table.Activate(idx, algo, ps, keyed)
	if err != nil {
		_ = m.provider.ReleaseSession(ps)
		m.table.Free(idx)
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	if m.log != nil {
		m.log.Debugf("session slot=%d gen=%d started: %v keyed=%v provider=%d", id.Slot, id.Generation, algo, keyed, ps)
	}
	return &Digest[A]{m: m, id: id, providerSession: ps, keyed: keyed}, nil
}

// Finalize finishes the session and frees its slot. On error the session
// stays live but poisoned: it must be cancelled, and a retried Finalize
// returns ErrFinalizeFailed wrapping digest.ErrContextPoisoned. A failure
// to obtain the controller does not poison the session.
func Finalize[A digest.Algorithm](m *Manager, d *Digest[A]) (digest.Digest, Handle[A], error) {
	if d == nil || d.m != m {
		return digest.Digest{}, Handle[A]{}, ErrInvalidSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.validate(d.id, digest.KindOf[A]())
	if err != nil {
		return digest.Digest{}, Handle[A]{}, err
	}
	if s.Poisoned {
		return digest.Digest{}, Handle[A]{}, fmt.Errorf("%w: %w", ErrFinalizeFailed, digest.ErrContextPoisoned)
	}
	l, err := lend[A](m, s)
	if err != nil {
		return digest.Digest{}, Handle[A]{}, fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}
	sum, c, err := l.finalize()
	if err != nil {
		s.Poisoned = true
		m.restoreController(l.suspend())
		if m.log != nil {
			m.log.Warnf("session slot=%d gen=%d poisoned by failed finalize: %v", d.id.Slot, d.id.Generation, err)
		}
		return digest.Digest{}, Handle[A]{}, fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}
	m.restoreController(c)

	if err := m.release(d.id, s); err != nil {
		return digest.Digest{}, Handle[A]{}, fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}
	return sum, Handle[A]{id: d.id}, nil
}

// Cancel discards the session. The slot is freed whenever the handle is
// valid, even if the engine reports an error while cleaning up. The one
// exception is ErrControllerInUse: the context cannot be wiped without the
// controller, so the session is kept and Cancel can be retried.
func Cancel[A digest.Algorithm](m *Manager, d *Digest[A]) error {
	if d == nil || d.m != m {
		return ErrInvalidSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.validate(d.id, digest.KindOf[A]())
	if err != nil {
		return err
	}

	var cleanupErr error
	l, err := lend[A](m, s)
	if errors.Is(err, ErrControllerInUse) {
		return err
	}
	if err != nil {
		cleanupErr = err
	} else {
		c, err := l.cancel()
		m.restoreController(c)
		cleanupErr = err
	}

	if err := m.release(d.id, s); err != nil && cleanupErr == nil {
		cleanupErr = err
	}
	return cleanupErr
}

// Clone starts a new session holding a copy of d's running state. The copy
// and d then evolve independently. Cloning a poisoned session fails with
// ErrInitFailed wrapping digest.ErrContextPoisoned.
func Clone[A digest.Algorithm](m *Manager, d *Digest[A]) (*Digest[A], error) {
	if d == nil || d.m != m {
		return nil, ErrInvalidSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.validate(d.id, digest.KindOf[A]())
	if err != nil {
		return nil, err
	}
	if s.Poisoned {
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, digest.ErrContextPoisoned)
	}
	src, keyed := s.ProviderSession, s.Keyed

	idx, err := m.table.Reserve()
	if err != nil {
		return nil, err
	}
	ps, err := m.provider.AllocateSession()
	if err != nil {
		m.table.Free(idx)
		return nil, fmt.Errorf("%w: %w", ErrTooManySessions, err)
	}
	if err := m.provider.CopySession(ps, src); err != nil {
		_ = m.provider.ReleaseSession(ps)
		m.table.Free(idx)
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	id, err := m.table.Activate(idx, digest.KindOf[A](), ps, keyed)
	if err != nil {
		_ = m.provider.ReleaseSession(ps)
		m.table.Free(idx)
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	if m.log != nil {
		m.log.Debugf("session slot=%d gen=%d cloned from slot=%d gen=%d", id.Slot, id.Generation, d.id.Slot, d.id.Generation)
	}
	return &Digest[A]{m: m, id: id, providerSession: ps, keyed: keyed}, nil
}

// OneShot digests data in a single session.
func OneShot[A digest.Algorithm](m *Manager, data []byte) (digest.Digest, error) {
	d, err := Init[A](m)
	if err != nil {
		return digest.Digest{}, err
	}
	return finish(m, d, data)
}

// HMACOneShot computes HMAC-A(key, data) in a single session.
func HMACOneShot[A digest.Algorithm](m *Manager, key, data []byte) (digest.Digest, error) {
	d, err := InitHMAC[A](m, key)
	if err != nil {
		return digest.Digest{}, err
	}
	return finish(m, d, data)
}

func finish[A digest.Algorithm](m *Manager, d *Digest[A], data []byte) (digest.Digest, error) {
	if err := d.Update(data); err != nil {
		_ = Cancel(m, d)
		return digest.Digest{}, err
	}
	sum, _, err := Finalize(m, d)
	if err != nil {
		_ = Cancel(m, d)
		return digest.Digest{}, err
	}
	return sum, nil
}
