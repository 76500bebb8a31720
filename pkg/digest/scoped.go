package digest

import (
	"github.com/backkem/hace/pkg/provider"
)

// scope ties a scoped context to one borrow of a controller. The borrow
// ends when the context is finalized or cancelled, when another context
// borrows the controller, or when the controller is moved.
type scope[P provider.ContextProvider] struct {
	ctrl *Controller[P]
	st   *controllerState[P]
	gen  uint64
	done bool

	// poisoned is set when an Update or Finalize failed part way.
	poisoned bool
}

func borrow[P provider.ContextProvider](c *Controller[P]) (scope[P], error) {
	st, err := c.state()
	if err != nil {
		return scope[P]{}, err
	}
	st.borrow++
	return scope[P]{ctrl: c, st: st, gen: st.borrow}, nil
}

func (s *scope[P]) check() error {
	if s.done || s.ctrl.st != s.st || s.st.borrow != s.gen {
		return ErrContextConsumed
	}
	return nil
}

// usable is check plus the poison state. Update and Finalize need it;
// Cancel only needs check.
func (s *scope[P]) usable() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.poisoned {
		return ErrContextPoisoned
	}
	return nil
}

// ScopedContext is an incremental digest that borrows its controller.
// It is only valid until the controller is borrowed again or moved, and
// should not be kept past the call that created it.
type ScopedContext[A Algorithm, P provider.ContextProvider] struct {
	scope[P]
}

// InitScoped starts a digest of algorithm A on c.
func InitScoped[A Algorithm, P provider.ContextProvider](c *Controller[P]) (*ScopedContext[A, P], error) {
	sc, err := borrow(c)
	if err != nil {
		return nil, err
	}
	if err := sc.st.initContext(KindOf[A]()); err != nil {
		return nil, err
	}
	return &ScopedContext[A, P]{scope: sc}, nil
}

// Update absorbs data.
func (s *ScopedContext[A, P]) Update(data []byte) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.st.update(KindOf[A](), data); err != nil {
		s.poisoned = true
		return err
	}
	return nil
}

// Finalize returns the digest and ends the context. On error the context
// is poisoned and can only be cancelled.
func (s *ScopedContext[A, P]) Finalize() (Digest, error) {
	if err := s.usable(); err != nil {
		return Digest{}, err
	}
	d, err := s.st.finalize(KindOf[A]())
	if err != nil {
		s.poisoned = true
		return Digest{}, err
	}
	s.done = true
	return d, nil
}

// Cancel discards the computation and ends the context.
func (s *ScopedContext[A, P]) Cancel() error {
	if err := s.check(); err != nil {
		return err
	}
	s.done = true
	return s.st.cleanup()
}

// Scoped runs fn with a fresh scoped context. The context is cancelled when
// fn returns unless fn finalized it.
func Scoped[A Algorithm, P provider.ContextProvider](c *Controller[P], fn func(*ScopedContext[A, P]) error) error {
	sc, err := InitScoped[A](c)
	if err != nil {
		return err
	}
	defer func() {
		if sc.check() == nil {
			_ = sc.Cancel()
		}
	}()
	return fn(sc)
}

// Sum computes the digest of data in one call.
func Sum[A Algorithm, P provider.ContextProvider](c *Controller[P], data []byte) (Digest, error) {
	sc, err := InitScoped[A](c)
	if err != nil {
		return Digest{}, err
	}
	if err := sc.Update(data); err != nil {
		_ = sc.Cancel()
		return Digest{}, err
	}
	d, err := sc.Finalize()
	if err != nil {
		_ = sc.Cancel()
		return Digest{}, err
	}
	return d, nil
}
