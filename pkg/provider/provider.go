// Package provider hands out the hardware-visible hash context.
//
// Every access to the engine's working state goes through a ContextProvider.
// Single passes the one hardware context straight through. Multi multiplexes
// it across a fixed number of session slots, saving and restoring state
// lazily so the hardware context always holds the active session.
package provider

import "github.com/backkem/hace/pkg/hace"

// ContextProvider gives mutable access to the context that should currently
// be resident in hardware.
type ContextProvider interface {
	Context() (*hace.Context, error)
}

// Single is a pass-through provider for one logical session.
type Single struct {
	hw *hace.Context
}

// NewSingle wraps the hardware-visible context.
func NewSingle(hw *hace.Context) (*Single, error) {
	if hw == nil {
		return nil, ErrNilContext
	}
	return &Single{hw: hw}, nil
}

// Context returns the hardware context. It never fails.
func (s *Single) Context() (*hace.Context, error) {
	return s.hw, nil
}
