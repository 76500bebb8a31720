package digest

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
)

// MaxWords is the largest digest size in 32-bit words.
const MaxWords = 16

// Digest is a computed hash value held as big-endian 32-bit words.
type Digest struct {
	words [MaxWords]uint32
	n     int
}

func newDigest(b []byte) Digest {
	var d Digest
	d.n = len(b) / 4
	for i := 0; i < d.n; i++ {
		d.words[i] = binary.BigEndian.Uint32(b[i*4:])
	}
	return d
}

// Len returns the digest length in bytes.
func (d Digest) Len() int {
	return d.n * 4
}

// Words returns the digest as 32-bit words.
func (d Digest) Words() []uint32 {
	out := make([]uint32, d.n)
	copy(out, d.words[:d.n])
	return out
}

// Bytes returns the digest bytes.
func (d Digest) Bytes() []byte {
	out := make([]byte, d.Len())
	d.put(out)
	return out
}

// PutBytes writes the digest into dst and returns the number of bytes
// written. dst must hold Len bytes.
func (d Digest) PutBytes(dst []byte) int {
	if len(dst) < d.Len() {
		return 0
	}
	d.put(dst)
	return d.Len()
}

func (d Digest) put(dst []byte) {
	for i := 0; i < d.n; i++ {
		binary.BigEndian.PutUint32(dst[i*4:], d.words[i])
	}
}

// Equal compares the digest with b in constant time.
func (d Digest) Equal(b []byte) bool {
	if len(b) != d.Len() {
		return false
	}
	var buf [MaxWords * 4]byte
	d.put(buf[:])
	return subtle.ConstantTimeCompare(buf[:d.Len()], b) == 1
}

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	var buf [MaxWords * 4]byte
	d.put(buf[:])
	return hex.EncodeToString(buf[:d.Len()])
}
