package digest

import (
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
)

// HMAC runs the nested construction H(key^opad || H(key^ipad || M)) on the
// engine. Both passes go through the same controller and context; the key
// and both pads live in the context so they follow a session across
// context switches. Key material is zeroed on finalize and cancel.

// ScopedHMAC is an incremental HMAC that borrows its controller.
type ScopedHMAC[A Algorithm, P provider.ContextProvider] struct {
	scope[P]
}

// InitScopedHMAC starts an HMAC of algorithm A keyed with key.
func InitScopedHMAC[A Algorithm, P provider.ContextProvider](c *Controller[P], key []byte) (*ScopedHMAC[A, P], error) {
	sc, err := borrow(c)
	if err != nil {
		return nil, err
	}
	if err := sc.st.initHMAC(KindOf[A](), key); err != nil {
		_ = sc.st.cleanup()
		return nil, err
	}
	return &ScopedHMAC[A, P]{scope: sc}, nil
}

// Update absorbs message data.
func (h *ScopedHMAC[A, P]) Update(data []byte) error {
	if err := h.usable(); err != nil {
		return err
	}
	if err := h.st.update(KindOf[A](), data); err != nil {
		h.poisoned = true
		return err
	}
	return nil
}

// Finalize returns the MAC and ends the context.
func (h *ScopedHMAC[A, P]) Finalize() (Digest, error) {
	if err := h.usable(); err != nil {
		return Digest{}, err
	}
	d, err := h.st.finalizeHMAC(KindOf[A]())
	if err != nil {
		h.poisoned = true
		return Digest{}, err
	}
	h.done = true
	return d, nil
}

// Cancel discards the computation and the key.
func (h *ScopedHMAC[A, P]) Cancel() error {
	if err := h.check(); err != nil {
		return err
	}
	h.done = true
	return h.st.cleanup()
}

// MAC computes HMAC-A(key, data) in one call.
func MAC[A Algorithm, P provider.ContextProvider](c *Controller[P], key, data []byte) (Digest, error) {
	h, err := InitScopedHMAC[A](c, key)
	if err != nil {
		return Digest{}, err
	}
	if err := h.Update(data); err != nil {
		_ = h.Cancel()
		return Digest{}, err
	}
	d, err := h.Finalize()
	if err != nil {
		_ = h.Cancel()
		return Digest{}, err
	}
	return d, nil
}

// OwnedHMAC is an incremental HMAC that owns its controller. It follows the
// same consume-on-use and poisoning rules as OwnedContext.
type OwnedHMAC[A Algorithm, P provider.ContextProvider] struct {
	st       *controllerState[P]
	poisoned bool
}

// InitHMAC moves c into a new HMAC of algorithm A keyed with key. On error
// c is left intact and the key is wiped from the context.
func InitHMAC[A Algorithm, P provider.ContextProvider](c *Controller[P], key []byte) (*OwnedHMAC[A, P], error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	if err := st.initHMAC(KindOf[A](), key); err != nil {
		_ = st.cleanup()
		return nil, err
	}
	return &OwnedHMAC[A, P]{st: c.move()}, nil
}

// ResumeHMAC moves c into the HMAC of algorithm A already running in the
// provider's active context.
func ResumeHMAC[A Algorithm, P provider.ContextProvider](c *Controller[P]) (*OwnedHMAC[A, P], error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	if _, err := st.running(KindOf[A]()); err != nil {
		return nil, err
	}
	return &OwnedHMAC[A, P]{st: c.move()}, nil
}

// IsValid reports whether the context has not been consumed.
func (h *OwnedHMAC[A, P]) IsValid() bool {
	return h != nil && h.st != nil
}

// Algorithm returns the algorithm selected by A.
func (h *OwnedHMAC[A, P]) Algorithm() hace.Algorithm {
	return KindOf[A]()
}

// Poisoned reports whether an Update or Finalize failed on this context.
func (h *OwnedHMAC[A, P]) Poisoned() bool {
	return h != nil && h.poisoned
}

func (h *OwnedHMAC[A, P]) state() (*controllerState[P], error) {
	if !h.IsValid() {
		return nil, ErrContextConsumed
	}
	return h.st, nil
}

func (h *OwnedHMAC[A, P]) live() (*controllerState[P], error) {
	st, err := h.state()
	if err != nil {
		return nil, err
	}
	if h.poisoned {
		return nil, ErrContextPoisoned
	}
	return st, nil
}

// Update absorbs message data and returns the successor context.
func (h *OwnedHMAC[A, P]) Update(data []byte) (*OwnedHMAC[A, P], error) {
	st, err := h.live()
	if err != nil {
		return nil, err
	}
	if err := st.update(KindOf[A](), data); err != nil {
		h.poisoned = true
		return nil, err
	}
	h.st = nil
	return &OwnedHMAC[A, P]{st: st}, nil
}

// Finalize returns the MAC and the controller.
func (h *OwnedHMAC[A, P]) Finalize() (Digest, *Controller[P], error) {
	st, err := h.live()
	if err != nil {
		return Digest{}, nil, err
	}
	d, err := st.finalizeHMAC(KindOf[A]())
	if err != nil {
		h.poisoned = true
		return Digest{}, nil, err
	}
	h.st = nil
	return d, &Controller[P]{st: st}, nil
}

// Cancel discards the computation and the key and returns the controller.
func (h *OwnedHMAC[A, P]) Cancel() (*Controller[P], error) {
	st, err := h.state()
	if err != nil {
		return nil, err
	}
	h.st = nil
	return &Controller[P]{st: st}, st.cleanup()
}

// Suspend returns the controller and leaves the computation in the
// provider's slot.
func (h *OwnedHMAC[A, P]) Suspend() (*Controller[P], error) {
	st, err := h.state()
	if err != nil {
		return nil, err
	}
	h.st = nil
	return &Controller[P]{st: st}, nil
}
