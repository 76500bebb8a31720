package ipc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/backkem/hace/pkg/hace"
)

// HeaderSize is the fixed frame header size.
const HeaderSize = 14

// MaxPayloadSize is the largest payload the length field can carry.
const MaxPayloadSize = math.MaxUint16

// Frame is one request or reply.
type Frame struct {
	Op        Op
	Algorithm hace.Algorithm
	Status    Status
	Seq       uint32
	Session   uint32
	Payload   []byte
}

// Size returns the encoded size of the frame.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// Encode serializes the frame.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	if f.Algorithm < 0 || f.Algorithm > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlgorithm, f.Algorithm)
	}
	buf := make([]byte, f.Size())
	f.EncodeTo(buf)
	return buf, nil
}

// EncodeTo serializes the frame into buf, which must be at least Size()
// bytes long. Returns the number of bytes written.
func (f *Frame) EncodeTo(buf []byte) int {
	buf[0] = uint8(f.Op)
	buf[1] = uint8(f.Algorithm)
	buf[2] = uint8(f.Status)
	buf[3] = 0
	binary.BigEndian.PutUint32(buf[4:], f.Seq)
	binary.BigEndian.PutUint32(buf[8:], f.Session)
	binary.BigEndian.PutUint16(buf[12:], uint16(len(f.Payload)))
	return HeaderSize + copy(buf[HeaderSize:], f.Payload)
}

// Decode parses a frame. The payload aliases data.
func (f *Frame) Decode(data []byte) error {
	if len(data) < HeaderSize {
		return ErrFrameTooShort
	}
	if data[3] != 0 {
		return ErrReservedNotZero
	}
	n := int(binary.BigEndian.Uint16(data[12:]))
	if len(data) != HeaderSize+n {
		return fmt.Errorf("%w: header says %d, have %d", ErrLengthMismatch, n, len(data)-HeaderSize)
	}

	f.Op = Op(data[0])
	f.Algorithm = hace.Algorithm(data[1])
	f.Status = Status(data[2])
	f.Seq = binary.BigEndian.Uint32(data[4:])
	f.Session = binary.BigEndian.Uint32(data[8:])
	f.Payload = data[HeaderSize:]
	return nil
}

// reply returns a reply frame for f.
func (f *Frame) reply(status Status) Frame {
	return Frame{
		Op:        f.Op,
		Algorithm: f.Algorithm,
		Status:    status,
		Seq:       f.Seq,
		Session:   f.Session,
	}
}

// EncodeKeyed builds the OpHMAC payload: key length, key, data.
func EncodeKeyed(key, data []byte) ([]byte, error) {
	if len(key) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d byte key", ErrPayloadTooLarge, len(key))
	}
	buf := make([]byte, 2+len(key)+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(key)))
	copy(buf[2:], key)
	copy(buf[2+len(key):], data)
	return buf, nil
}

// DecodeKeyed splits an OpHMAC payload.
func DecodeKeyed(payload []byte) (key, data []byte, err error) {
	if len(payload) < 2 {
		return nil, nil, ErrFrameTooShort
	}
	n := int(binary.BigEndian.Uint16(payload))
	if len(payload) < 2+n {
		return nil, nil, fmt.Errorf("%w: key length %d", ErrLengthMismatch, n)
	}
	return payload[2 : 2+n], payload[2+n:], nil
}
