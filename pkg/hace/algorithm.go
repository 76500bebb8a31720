package hace

// Method word flags written to RegCommand and stored in Context.Method.
const (
	// MethodBigEndian makes the engine load and store the accumulator as
	// big-endian words (HACE_SHA_BE_EN).
	MethodBigEndian uint32 = 1 << 3

	// MethodAccumulate continues from the accumulator instead of the IV
	// (HACE_CMD_ACC_MODE).
	MethodAccumulate uint32 = 1 << 8

	// MethodSGEnable makes RegSource point at the scatter/gather descriptor
	// list instead of a flat buffer (HACE_SG_EN).
	MethodSGEnable uint32 = 1 << 18

	// SGLast marks the final descriptor of a scatter/gather list. It is
	// carried in the length word.
	SGLast uint32 = 1 << 31
)

// Algorithm selection bits within the method word.
const (
	methodSHA1       uint32 = 1 << 5
	methodSHA224     uint32 = 1 << 6
	methodSHA256     uint32 = (1 << 4) | (1 << 6)
	methodSHA512     uint32 = (1 << 5) | (1 << 6)
	methodSHA384     uint32 = (1 << 5) | (1 << 6) | (1 << 10)
	methodSHA512_224 uint32 = (1 << 5) | (1 << 6) | (1 << 10) | (1 << 11)
	methodSHA512_256 uint32 = (1 << 5) | (1 << 6) | (1 << 11)

	methodAlgoMask uint32 = (1 << 4) | (1 << 5) | (1 << 6) | (1 << 10) | (1 << 11)
)

// Size limits shared by every algorithm.
const (
	// MaxDigestSize is the size of the accumulator in bytes.
	MaxDigestSize = 64

	// MaxBlockSize is the largest block size of any supported algorithm.
	MaxBlockSize = 128
)

// Algorithm identifies a hash algorithm implemented by the engine.
type Algorithm int

const (
	// AlgorithmUnknown indicates an unset or invalid algorithm.
	AlgorithmUnknown Algorithm = iota
	AlgorithmSHA1
	AlgorithmSHA224
	AlgorithmSHA256
	AlgorithmSHA384
	AlgorithmSHA512
	AlgorithmSHA512_224
	AlgorithmSHA512_256
)

// String returns a human-readable name for the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmSHA1:
		return "SHA-1"
	case AlgorithmSHA224:
		return "SHA-224"
	case AlgorithmSHA256:
		return "SHA-256"
	case AlgorithmSHA384:
		return "SHA-384"
	case AlgorithmSHA512:
		return "SHA-512"
	case AlgorithmSHA512_224:
		return "SHA-512/224"
	case AlgorithmSHA512_256:
		return "SHA-512/256"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the algorithm is a defined value.
func (a Algorithm) IsValid() bool {
	return a >= AlgorithmSHA1 && a <= AlgorithmSHA512_256
}

// DigestSize returns the output length in bytes, or 0 for an invalid algorithm.
func (a Algorithm) DigestSize() int {
	switch a {
	case AlgorithmSHA1:
		return 20
	case AlgorithmSHA224, AlgorithmSHA512_224:
		return 28
	case AlgorithmSHA256, AlgorithmSHA512_256:
		return 32
	case AlgorithmSHA384:
		return 48
	case AlgorithmSHA512:
		return 64
	default:
		return 0
	}
}

// BlockSize returns the block size in bytes, or 0 for an invalid algorithm.
func (a Algorithm) BlockSize() int {
	switch a {
	case AlgorithmSHA1, AlgorithmSHA224, AlgorithmSHA256:
		return 64
	case AlgorithmSHA384, AlgorithmSHA512, AlgorithmSHA512_224, AlgorithmSHA512_256:
		return 128
	default:
		return 0
	}
}

// StateSize returns the number of accumulator bytes the engine reads and
// writes for one transform.
func (a Algorithm) StateSize() int {
	switch a {
	case AlgorithmSHA1:
		return 20
	case AlgorithmSHA224, AlgorithmSHA256:
		return 32
	case AlgorithmSHA384, AlgorithmSHA512, AlgorithmSHA512_224, AlgorithmSHA512_256:
		return 64
	default:
		return 0
	}
}

// LengthFieldSize returns the size of the big-endian bit-length trailer
// appended during padding: 8 bytes for 64-byte blocks, 16 for 128-byte blocks.
func (a Algorithm) LengthFieldSize() int {
	if a.BlockSize() == 128 {
		return 16
	}
	return 8
}

// IVSize returns the IV length in 32-bit words.
func (a Algorithm) IVSize() uint8 {
	switch a {
	case AlgorithmSHA1, AlgorithmSHA224, AlgorithmSHA256:
		return 8
	case AlgorithmSHA384, AlgorithmSHA512, AlgorithmSHA512_224, AlgorithmSHA512_256:
		return 16
	default:
		return 0
	}
}

// Method returns the algorithm selection bits.
func (a Algorithm) Method() uint32 {
	switch a {
	case AlgorithmSHA1:
		return methodSHA1
	case AlgorithmSHA224:
		return methodSHA224
	case AlgorithmSHA256:
		return methodSHA256
	case AlgorithmSHA384:
		return methodSHA384
	case AlgorithmSHA512:
		return methodSHA512
	case AlgorithmSHA512_224:
		return methodSHA512_224
	case AlgorithmSHA512_256:
		return methodSHA512_256
	default:
		return 0
	}
}

// HashCommand returns the full command word for an accumulating,
// big-endian, scatter/gather digest operation.
func (a Algorithm) HashCommand() uint32 {
	return MethodAccumulate | MethodBigEndian | MethodSGEnable | a.Method()
}

// AlgorithmFromMethod decodes the algorithm selection bits of a method word.
func AlgorithmFromMethod(method uint32) Algorithm {
	switch method & methodAlgoMask {
	case methodSHA1:
		return AlgorithmSHA1
	case methodSHA224:
		return AlgorithmSHA224
	case methodSHA256:
		return AlgorithmSHA256
	case methodSHA384:
		return AlgorithmSHA384
	case methodSHA512:
		return AlgorithmSHA512
	case methodSHA512_224:
		return AlgorithmSHA512_224
	case methodSHA512_256:
		return AlgorithmSHA512_256
	default:
		return AlgorithmUnknown
	}
}

// Initial hash values (FIPS 180-4 Section 5.3).
var (
	ivSHA1   = [5]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476, 0xc3d2e1f0}
	ivSHA224 = [8]uint32{0xc1059ed8, 0x367cd507, 0x3070dd17, 0xf70e5939, 0xffc00b31, 0x68581511, 0x64f98fa7, 0xbefa4fa4}
	ivSHA256 = [8]uint32{0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a, 0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19}

	ivSHA384 = [8]uint64{
		0xcbbb9d5dc1059ed8, 0x629a292a367cd507, 0x9159015a3070dd17, 0x152fecd8f70e5939,
		0x67332667ffc00b31, 0x8eb44a8768581511, 0xdb0c2e0d64f98fa7, 0x47b5481dbefa4fa4,
	}
	ivSHA512 = [8]uint64{
		0x6a09e667f3bcc908, 0xbb67ae8584caa73b, 0x3c6ef372fe94f82b, 0xa54ff53a5f1d36f1,
		0x510e527fade682d1, 0x9b05688c2b3e6c1f, 0x1f83d9abfb41bd6b, 0x5be0cd19137e2179,
	}
	ivSHA512_224 = [8]uint64{
		0x8c3d37c819544da2, 0x73e1996689dcd4d6, 0x1dfab7ae32ff9c82, 0x679dd514582f9fcf,
		0x0f6d2b697bd44da8, 0x77e36f7304c48942, 0x3f9d85a86a1d36c8, 0x1112e6ad91d692a1,
	}
	ivSHA512_256 = [8]uint64{
		0x22312194fc2bf72c, 0x9f555fa3c84c64c2, 0x2393b86b6f53b151, 0x963877195940eabd,
		0x96283ee2a88effe3, 0xbe5e1e2553863992, 0x2b0199fc2c85b8aa, 0x0eb72ddc81c52ca2,
	}
)

// WriteIV stores the algorithm's initial hash value into dst as big-endian
// words, the layout the engine expects with MethodBigEndian set. Bytes of
// dst past the state size are zeroed. It returns false for an invalid
// algorithm.
func (a Algorithm) WriteIV(dst *[MaxDigestSize]byte) bool {
	clear(dst[:])
	switch a {
	case AlgorithmSHA1:
		putWords32(dst[:], ivSHA1[:])
	case AlgorithmSHA224:
		putWords32(dst[:], ivSHA224[:])
	case AlgorithmSHA256:
		putWords32(dst[:], ivSHA256[:])
	case AlgorithmSHA384:
		putWords64(dst[:], ivSHA384[:])
	case AlgorithmSHA512:
		putWords64(dst[:], ivSHA512[:])
	case AlgorithmSHA512_224:
		putWords64(dst[:], ivSHA512_224[:])
	case AlgorithmSHA512_256:
		putWords64(dst[:], ivSHA512_256[:])
	default:
		return false
	}
	return true
}
