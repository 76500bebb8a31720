package hace

import "fmt"

// Reg is the offset of an engine register within the HACE block.
type Reg uint32

// Hash engine registers.
const (
	RegStatus          Reg = 0x1c
	RegSource          Reg = 0x20
	RegDestination     Reg = 0x24
	RegContext         Reg = 0x28
	RegDataLength      Reg = 0x2c
	RegCommand         Reg = 0x30
	RegKeyBuffer       Reg = 0x34
	RegKeyedDataLength Reg = 0x38
)

const regCount = int(RegKeyedDataLength-RegStatus)/4 + 1

// String returns the register's name.
func (r Reg) String() string {
	switch r {
	case RegStatus:
		return "STATUS"
	case RegSource:
		return "SRC"
	case RegDestination:
		return "DST"
	case RegContext:
		return "CTX"
	case RegDataLength:
		return "LEN"
	case RegCommand:
		return "CMD"
	case RegKeyBuffer:
		return "KEY_BUF"
	case RegKeyedDataLength:
		return "KEYED_LEN"
	default:
		return fmt.Sprintf("Reg(0x%02x)", uint32(r))
	}
}

// IsValid returns true if r is a defined register offset.
func (r Reg) IsValid() bool {
	return r >= RegStatus && r <= RegKeyedDataLength && r%4 == 0
}

func (r Reg) index() int {
	return int(r-RegStatus) / 4
}

// Status register bits. Both are write-1-to-clear.
const (
	// StatusDone is set when the last command completes.
	StatusDone uint32 = 1 << 9

	// StatusError is set together with StatusDone when the last command
	// was rejected by the engine.
	StatusError uint32 = 1 << 10
)

// RegisterBlock is a memory-mapped 32-bit register file.
type RegisterBlock interface {
	ReadReg(r Reg) uint32
	WriteReg(r Reg, v uint32)
}

// Engine is the hardware surface a controller drives: the register block
// plus the DMA-visible memory the registers point into.
type Engine interface {
	RegisterBlock

	// Memory returns the shared DMA region holding the hardware-visible
	// Context and the staging window.
	Memory() *Memory
}
