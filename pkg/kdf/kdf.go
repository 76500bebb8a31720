// Package kdf derives keys with HKDF (RFC 5869) and PBKDF2 (RFC 8018) on
// the hash engine. The constructions come from golang.org/x/crypto; every
// hash they instantiate is a session.Hash, so each HMAC runs as sessions of
// a session.Manager and derivations share the engine with other sessions.
package kdf

import (
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/session"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidLength is returned for an output length the function cannot
	// produce.
	ErrInvalidLength = errors.New("kdf: invalid output length")

	// ErrInvalidIterations is returned for a PBKDF2 iteration count below 1.
	ErrInvalidIterations = errors.New("kdf: invalid iteration count")
)

// hashes hands out engine hashes for one derivation.
type hashes[A digest.Algorithm] struct {
	m    *session.Manager
	made []*session.Hash[A]
}

func (hs *hashes[A]) new() hash.Hash {
	h := session.NewHash[A](hs.m)
	hs.made = append(hs.made, h)
	return h
}

// close releases every session and reports the engine failures the hashes
// kept.
func (hs *hashes[A]) close() error {
	var errs []error
	for _, h := range hs.made {
		errs = append(errs, h.Close())
	}
	hs.made = nil
	return errors.Join(errs...)
}

// derive runs fn with an engine hash constructor. Output produced while any
// engine operation failed is wiped and replaced by the error.
func derive[A digest.Algorithm](m *session.Manager, fn func(func() hash.Hash) ([]byte, error)) ([]byte, error) {
	hs := &hashes[A]{m: m}
	out, err := fn(hs.new)
	if cerr := hs.close(); cerr != nil {
		err = errors.Join(cerr, err)
	}
	if err != nil {
		clear(out)
		return nil, err
	}
	return out, nil
}

// Extract performs HKDF-Extract. A nil or empty salt acts as HashLen zero
// bytes.
func Extract[A digest.Algorithm](m *session.Manager, ikm, salt []byte) ([]byte, error) {
	return derive[A](m, func(h func() hash.Hash) ([]byte, error) {
		return hkdf.Extract(h, ikm, salt), nil
	})
}

// Expand performs HKDF-Expand, producing length bytes from prk and info.
// length may not exceed 255 * HashLen.
func Expand[A digest.Algorithm](m *session.Manager, prk, info []byte, length int) ([]byte, error) {
	if err := checkLength[A](length); err != nil {
		return nil, err
	}
	return derive[A](m, func(h func() hash.Hash) ([]byte, error) {
		return read(hkdf.Expand(h, prk, info), length)
	})
}

// HKDF derives length bytes: HKDF-Expand(HKDF-Extract(salt, ikm), info, length).
func HKDF[A digest.Algorithm](m *session.Manager, ikm, salt, info []byte, length int) ([]byte, error) {
	if err := checkLength[A](length); err != nil {
		return nil, err
	}
	return derive[A](m, func(h func() hash.Hash) ([]byte, error) {
		return read(hkdf.New(h, ikm, salt, info), length)
	})
}

// HKDFSHA256 derives key material using HKDF-SHA256.
func HKDFSHA256(m *session.Manager, ikm, salt, info []byte, length int) ([]byte, error) {
	return HKDF[digest.SHA256](m, ikm, salt, info, length)
}

func checkLength[A digest.Algorithm](length int) error {
	if length < 0 || length > 255*digest.KindOf[A]().DigestSize() {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	return nil
}

func read(r io.Reader, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return out, err
	}
	return out, nil
}

// PBKDF2 derives keyLen bytes from password with PBKDF2-HMAC-A.
func PBKDF2[A digest.Algorithm](m *session.Manager, password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}
	if keyLen < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, keyLen)
	}
	if keyLen == 0 {
		return []byte{}, nil
	}
	return derive[A](m, func(h func() hash.Hash) ([]byte, error) {
		return pbkdf2.Key(password, salt, iterations, keyLen, h), nil
	})
}

// PBKDF2SHA256 derives a key using PBKDF2-HMAC-SHA256.
func PBKDF2SHA256(m *session.Manager, password, salt []byte, iterations, keyLen int) ([]byte, error) {
	return PBKDF2[digest.SHA256](m, password, salt, iterations, keyLen)
}
