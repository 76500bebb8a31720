package digest

import (
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
)

// OwnedContext is an incremental digest that owns its controller. It has no
// tie to a call scope, so it can be stored in long-lived server state.
//
// Every operation consumes the receiver: Update returns the successor
// context, Finalize and Cancel return the controller. A consumed context
// returns ErrContextConsumed. A failed Update or Finalize leaves the
// receiver holding the controller but poisoned: Update and Finalize then
// return ErrContextPoisoned, and only Cancel or Suspend succeed.
type OwnedContext[A Algorithm, P provider.ContextProvider] struct {
	st       *controllerState[P]
	poisoned bool
}

// Init moves c into a new digest of algorithm A. On error c is left intact.
func Init[A Algorithm, P provider.ContextProvider](c *Controller[P]) (*OwnedContext[A, P], error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	if err := st.initContext(KindOf[A]()); err != nil {
		return nil, err
	}
	return &OwnedContext[A, P]{st: c.move()}, nil
}

// Resume moves c into the digest of algorithm A that is already running in
// the provider's active context. It pairs with Suspend.
func Resume[A Algorithm, P provider.ContextProvider](c *Controller[P]) (*OwnedContext[A, P], error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	if _, err := st.running(KindOf[A]()); err != nil {
		return nil, err
	}
	return &OwnedContext[A, P]{st: c.move()}, nil
}

// IsValid reports whether the context has not been consumed.
func (o *OwnedContext[A, P]) IsValid() bool {
	return o != nil && o.st != nil
}

// Algorithm returns the algorithm selected by A.
func (o *OwnedContext[A, P]) Algorithm() hace.Algorithm {
	return KindOf[A]()
}

// Poisoned reports whether an Update or Finalize failed on this context.
func (o *OwnedContext[A, P]) Poisoned() bool {
	return o != nil && o.poisoned
}

func (o *OwnedContext[A, P]) state() (*controllerState[P], error) {
	if !o.IsValid() {
		return nil, ErrContextConsumed
	}
	return o.st, nil
}

func (o *OwnedContext[A, P]) live() (*controllerState[P], error) {
	st, err := o.state()
	if err != nil {
		return nil, err
	}
	if o.poisoned {
		return nil, ErrContextPoisoned
	}
	return st, nil
}

// Update absorbs data and returns the successor context.
func (o *OwnedContext[A, P]) Update(data []byte) (*OwnedContext[A, P], error) {
	st, err := o.live()
	if err != nil {
		return nil, err
	}
	if err := st.update(KindOf[A](), data); err != nil {
		o.poisoned = true
		return nil, err
	}
	o.st = nil
	return &OwnedContext[A, P]{st: st}, nil
}

// Finalize returns the digest and the controller.
func (o *OwnedContext[A, P]) Finalize() (Digest, *Controller[P], error) {
	st, err := o.live()
	if err != nil {
		return Digest{}, nil, err
	}
	d, err := st.finalize(KindOf[A]())
	if err != nil {
		o.poisoned = true
		return Digest{}, nil, err
	}
	o.st = nil
	return d, &Controller[P]{st: st}, nil
}

// Cancel discards the computation and returns the controller. The
// controller is returned even when cleanup fails.
func (o *OwnedContext[A, P]) Cancel() (*Controller[P], error) {
	st, err := o.state()
	if err != nil {
		return nil, err
	}
	o.st = nil
	return &Controller[P]{st: st}, st.cleanup()
}

// Suspend returns the controller without touching the computation. The
// state stays in the provider's slot for a later Resume. The poison flag
// lives in the receiver and does not survive Suspend; callers that suspend
// a poisoned context must keep track of it.
func (o *OwnedContext[A, P]) Suspend() (*Controller[P], error) {
	st, err := o.state()
	if err != nil {
		return nil, err
	}
	o.st = nil
	return &Controller[P]{st: st}, nil
}
