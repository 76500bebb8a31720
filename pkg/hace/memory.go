package hace

import "fmt"

// DMA address map of the shared memory region.
const (
	AddrBase    uint32 = 0x000a0000
	AddrSG      uint32 = AddrBase
	AddrDigest  uint32 = AddrBase + 0x0040
	AddrBuffer  uint32 = AddrBase + 0x0100
	AddrKey     uint32 = AddrBase + 0x0200
	AddrIPad    uint32 = AddrBase + 0x0280
	AddrOPad    uint32 = AddrBase + 0x0300
	AddrStaging uint32 = AddrBase + 0x1000

	// StagingSize is the size of the staging window callers' input is
	// copied into before the engine reads it. It also bounds a single
	// engine transfer.
	StagingSize = 1024
)

// Memory is the DMA region shared between software and the engine. It holds
// the single hardware-visible Context and the staging window.
type Memory struct {
	ctx     Context
	staging [StagingSize]byte
}

// NewMemory returns a zeroed DMA region.
func NewMemory() *Memory {
	return &Memory{}
}

// Context returns the hardware-visible context mirror.
func (m *Memory) Context() *Context {
	return &m.ctx
}

// Staging returns the staging window.
func (m *Memory) Staging() []byte {
	return m.staging[:]
}

// Resolve maps a DMA address and length to the backing bytes.
func (m *Memory) Resolve(addr uint32, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrBadAddress, n)
	}
	var region []byte
	var base uint32
	switch {
	case addr >= AddrDigest && addr < AddrDigest+MaxDigestSize:
		region, base = m.ctx.Digest[:], AddrDigest
	case addr >= AddrBuffer && addr < AddrBuffer+BufferSize:
		region, base = m.ctx.Buffer[:], AddrBuffer
	case addr >= AddrKey && addr < AddrKey+KeySize:
		region, base = m.ctx.Key[:], AddrKey
	case addr >= AddrIPad && addr < AddrIPad+PadSize:
		region, base = m.ctx.IPad[:], AddrIPad
	case addr >= AddrOPad && addr < AddrOPad+PadSize:
		region, base = m.ctx.OPad[:], AddrOPad
	case addr >= AddrStaging && addr < AddrStaging+StagingSize:
		region, base = m.staging[:], AddrStaging
	default:
		return nil, fmt.Errorf("%w: 0x%08x", ErrBadAddress, addr)
	}
	off := int(addr - base)
	if n > len(region)-off {
		return nil, fmt.Errorf("%w: 0x%08x+%d overruns region", ErrBadAddress, addr, n)
	}
	return region[off : off+n], nil
}

// Descriptors returns the scatter/gather list at addr.
func (m *Memory) Descriptors(addr uint32) (*[2]SGDescriptor, error) {
	if addr != AddrSG {
		return nil, fmt.Errorf("%w: no descriptor list at 0x%08x", ErrBadAddress, addr)
	}
	return &m.ctx.SG, nil
}
