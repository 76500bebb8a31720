package hace

// Fixed sizes of the context mirror's buffers.
const (
	// BufferSize is the capacity of the pending-data buffer. It holds up to
	// two 128-byte blocks so padding can spill into a second block.
	BufferSize = 256

	// KeySize is the capacity of the HMAC key buffer.
	KeySize = 128

	// PadSize is the capacity of each HMAC pad buffer.
	PadSize = 128
)

// SGDescriptor is one scatter/gather entry: a byte length and a DMA address.
// The top bit of Len (SGLast) terminates the list.
type SGDescriptor struct {
	Len  uint32
	Addr uint32
}

// Length returns the descriptor's byte length without the SGLast flag.
func (d SGDescriptor) Length() uint32 {
	return d.Len &^ SGLast
}

// IsLast reports whether the descriptor terminates the list.
func (d SGDescriptor) IsLast() bool {
	return d.Len&SGLast != 0
}

// Context is the working state of one hash computation in the layout the
// engine reads and writes.
//
// Exactly one Context is hardware-visible (the one inside Memory). Any
// number of shadow copies may exist as plain values; the Multi provider
// moves state between them with CopyStateFrom.
type Context struct {
	// SG always points into the shared DMA region, never at session
	// storage, so it is not part of a session's saved state.
	SG [2]SGDescriptor

	Digest      [MaxDigestSize]byte
	Method      uint32
	BlockSize   uint32
	DigestCount [2]uint64
	BufferCount uint32
	Buffer      [BufferSize]byte
	IVSize      uint8

	Key    [KeySize]byte
	KeyLen uint32
	IPad   [PadSize]byte
	OPad   [PadSize]byte
}

// CopyStateFrom copies every field of src except the scatter/gather pair.
// The copy is fixed-size and does not branch on the data being moved.
func (c *Context) CopyStateFrom(src *Context) {
	c.Digest = src.Digest
	c.Method = src.Method
	c.BlockSize = src.BlockSize
	c.DigestCount = src.DigestCount
	c.BufferCount = src.BufferCount
	c.Buffer = src.Buffer
	c.IVSize = src.IVSize
	c.Key = src.Key
	c.KeyLen = src.KeyLen
	c.IPad = src.IPad
	c.OPad = src.OPad
}

// Algorithm decodes the algorithm selected by the method word.
func (c *Context) Algorithm() Algorithm {
	return AlgorithmFromMethod(c.Method)
}

// Reset clears the running hash state: accumulator, counters and the
// pending-data buffer. Key material and the method word are kept.
func (c *Context) Reset() {
	clear(c.Digest[:])
	clear(c.Buffer[:])
	c.BufferCount = 0
	c.DigestCount = [2]uint64{}
}

// ZeroizeKey clears the HMAC key, its length and both pads.
func (c *Context) ZeroizeKey() {
	clear(c.Key[:])
	clear(c.IPad[:])
	clear(c.OPad[:])
	c.KeyLen = 0
}

// Zeroize overwrites every field, including the descriptors, with zero.
// Call this when a session's storage is released. Go has no volatile
// writes, so the erase holds only because contexts live on the heap behind
// a pointer the compiler cannot prove dead; copies made by value are not
// reached.
func (c *Context) Zeroize() {
	c.Reset()
	c.ZeroizeKey()
	c.SG = [2]SGDescriptor{}
	c.Method = 0
	c.BlockSize = 0
	c.IVSize = 0
}

// IsZero reports whether every field of c is zero.
func (c *Context) IsZero() bool {
	return *c == Context{}
}
