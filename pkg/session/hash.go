package session

import (
	"errors"
	"hash"

	"github.com/backkem/hace/pkg/digest"
)

// Hash adapts a session of algorithm A to hash.Hash so code written
// against the standard interface, such as crypto/hmac and the key
// derivation functions built on it, runs on the engine.
//
// Writes stream into a live session that is started by the first non-empty
// Write after construction or Reset. Sum clones that session and finalizes
// the clone, so the running state is left untouched.
//
// Unlike the standard library hashes, engine operations can fail. The first
// failure is kept until Close: Write returns it, Sum appends a zero digest,
// and Err and Close report it. A Hash holds a manager slot until Reset or
// Close.
type Hash[A digest.Algorithm] struct {
	m   *Manager
	d   *Digest[A]
	err error
}

var _ hash.Hash = (*Hash[digest.SHA256])(nil)

// NewHash returns an empty Hash running on m.
func NewHash[A digest.Algorithm](m *Manager) *Hash[A] {
	return &Hash[A]{m: m}
}

// Write absorbs p.
func (h *Hash[A]) Write(p []byte) (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if h.d == nil {
		d, err := Init[A](h.m)
		if err != nil {
			h.err = err
			return 0, err
		}
		h.d = d
	}
	if err := h.d.Update(p); err != nil {
		h.err = err
		return 0, err
	}
	return len(p), nil
}

// Sum appends the digest of everything written so far to b.
func (h *Hash[A]) Sum(b []byte) []byte {
	sum, err := h.sum()
	if err != nil {
		if h.err == nil {
			h.err = err
		}
		return append(b, make([]byte, h.Size())...)
	}
	return append(b, sum.Bytes()...)
}

func (h *Hash[A]) sum() (digest.Digest, error) {
	if h.err != nil {
		return digest.Digest{}, h.err
	}
	if h.d == nil {
		return OneShot[A](h.m, nil)
	}
	c, err := Clone(h.m, h.d)
	if err != nil {
		return digest.Digest{}, err
	}
	sum, _, err := Finalize(h.m, c)
	if err != nil {
		_ = Cancel(h.m, c)
		return digest.Digest{}, err
	}
	return sum, nil
}

// Reset discards the running state. A kept error survives Reset, since
// crypto/hmac resets its hashes between messages; only Close clears it.
func (h *Hash[A]) Reset() {
	if h.d != nil {
		_ = Cancel(h.m, h.d)
		h.d = nil
	}
}

// Size returns the digest length in bytes.
func (h *Hash[A]) Size() int {
	return digest.KindOf[A]().DigestSize()
}

// BlockSize returns the algorithm's block size in bytes.
func (h *Hash[A]) BlockSize() int {
	return digest.KindOf[A]().BlockSize()
}

// Err returns the first engine or session failure since the last Close.
func (h *Hash[A]) Err() error {
	return h.err
}

// Close releases the session, if any, and returns Err. The Hash can be
// used again afterwards as if freshly constructed.
func (h *Hash[A]) Close() error {
	err := h.err
	if h.d != nil {
		if cerr := Cancel(h.m, h.d); cerr != nil && !errors.Is(cerr, ErrInvalidSession) {
			err = errors.Join(err, cerr)
		}
		h.d = nil
	}
	h.err = nil
	return err
}
