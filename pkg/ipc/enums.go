// Package ipc exposes a session.Manager as a request/reply datagram
// service and provides the matching client.
//
// Every request and reply is one frame:
//
//	op u8 | algo u8 | status u8 | rsvd u8 | seq u32 | session u32 | len u16 | payload
//
// Multi-byte fields are big-endian. The session field carries the
// manager's generation number for the session. The reply echoes op and seq
// and sets status.
package ipc

import "fmt"

// Op is a request operation.
type Op uint8

const (
	OpInit     Op = 0x01 // start a digest session
	OpInitHMAC Op = 0x02 // start an HMAC session; payload is the key
	OpUpdate   Op = 0x03 // absorb payload into a session
	OpFinalize Op = 0x04 // finish a session; reply payload is the digest
	OpCancel   Op = 0x05 // discard a session
	OpDigest   Op = 0x06 // one-shot digest of payload
	OpHMAC     Op = 0x07 // one-shot HMAC; payload is key length u16 | key | data
	opSentinel Op = 0x08
)

// String returns a human-readable name for the operation.
func (o Op) String() string {
	switch o {
	case OpInit:
		return "Init"
	case OpInitHMAC:
		return "InitHMAC"
	case OpUpdate:
		return "Update"
	case OpFinalize:
		return "Finalize"
	case OpCancel:
		return "Cancel"
	case OpDigest:
		return "Digest"
	case OpHMAC:
		return "HMAC"
	default:
		return fmt.Sprintf("Op(0x%02x)", uint8(o))
	}
}

// IsValid returns true if the operation is defined.
func (o Op) IsValid() bool {
	return o >= OpInit && o < opSentinel
}

// Status is the result code carried by a reply. A non-OK Status is also
// the error the client returns, so callers can match it with errors.Is.
type Status uint8

const (
	StatusOK Status = iota
	StatusTooManySessions
	StatusInvalidSession
	StatusAlgorithmMismatch
	StatusInitFailed
	StatusUpdateFailed
	StatusFinalizeFailed
	StatusTransferTooLarge
	StatusUnsupportedAlgorithm
	StatusBadRequest
	StatusBusy
	StatusInternal
	statusSentinel
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTooManySessions:
		return "TooManySessions"
	case StatusInvalidSession:
		return "InvalidSession"
	case StatusAlgorithmMismatch:
		return "AlgorithmMismatch"
	case StatusInitFailed:
		return "InitFailed"
	case StatusUpdateFailed:
		return "UpdateFailed"
	case StatusFinalizeFailed:
		return "FinalizeFailed"
	case StatusTransferTooLarge:
		return "TransferTooLarge"
	case StatusUnsupportedAlgorithm:
		return "UnsupportedAlgorithm"
	case StatusBadRequest:
		return "BadRequest"
	case StatusBusy:
		return "Busy"
	case StatusInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// IsValid returns true if the status is defined.
func (s Status) IsValid() bool {
	return s < statusSentinel
}

// Error implements error.
func (s Status) Error() string {
	return "ipc: " + s.String()
}
