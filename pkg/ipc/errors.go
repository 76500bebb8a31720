package ipc

import "errors"

// Frame and client errors.
var (
	ErrFrameTooShort    = errors.New("ipc: frame too short")
	ErrLengthMismatch   = errors.New("ipc: payload length does not match frame")
	ErrReservedNotZero  = errors.New("ipc: reserved byte not zero")
	ErrPayloadTooLarge  = errors.New("ipc: payload too large")
	ErrInvalidAlgorithm = errors.New("ipc: algorithm does not fit the frame")
	ErrTimeout          = errors.New("ipc: request timed out")
	ErrInvalidConfig    = errors.New("ipc: invalid configuration")
	ErrUnexpectedReply  = errors.New("ipc: unexpected reply")
)
