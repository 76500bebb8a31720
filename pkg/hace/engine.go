package hace

import (
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// Default engine parameters.
const (
	// DefaultCompletionPolls is the number of status reads after a command
	// before StatusDone is reported.
	DefaultCompletionPolls = 1
)

// SoftEngineConfig configures a SoftEngine.
type SoftEngineConfig struct {
	// CompletionPolls is the number of status reads a command takes to
	// complete. Zero selects DefaultCompletionPolls.
	CompletionPolls int

	// LoggerFactory creates the engine logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c SoftEngineConfig) Validate() error {
	if c.CompletionPolls < 0 {
		return fmt.Errorf("%w: negative completion polls", ErrInvalidConfig)
	}
	return nil
}

// EngineStats counts engine activity.
type EngineStats struct {
	Commands uint64
	Blocks   uint64
	Bytes    uint64
	Faults   uint64
}

// SoftEngine is a register-level model of the hash engine. Writing a
// non-zero word to RegCommand runs one transform over the data described by
// RegSource and RegDataLength, reading the accumulator at RegContext and
// writing it back to RegDestination. Completion is signalled through
// RegStatus after the configured number of polls.
type SoftEngine struct {
	mu sync.Mutex

	mem  *Memory
	regs [regCount]uint32

	completionPolls int
	remaining       int
	busy            bool
	stuck           bool

	// scratch gathers the scatter/gather list into one contiguous run.
	scratch [BufferSize + StagingSize]byte

	stats EngineStats
	log   logging.LeveledLogger
}

// NewSoftEngine creates an engine over a fresh DMA region.
func NewSoftEngine(config SoftEngineConfig) (*SoftEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	polls := config.CompletionPolls
	if polls == 0 {
		polls = DefaultCompletionPolls
	}

	e := &SoftEngine{
		mem:             NewMemory(),
		completionPolls: polls,
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("hace-engine")
	}
	return e, nil
}

// Memory returns the engine's DMA region.
func (e *SoftEngine) Memory() *Memory {
	return e.mem
}

// HardwareContext returns the hardware-visible context mirror.
func (e *SoftEngine) HardwareContext() *Context {
	return e.mem.Context()
}

// SetStuck makes every following command hang: StatusDone is never raised.
// It models a wedged engine for timeout handling.
func (e *SoftEngine) SetStuck(stuck bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stuck = stuck
}

// Stats returns a snapshot of the engine counters.
func (e *SoftEngine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ReadReg reads a register. Reading RegStatus advances an in-flight command.
func (e *SoftEngine) ReadReg(r Reg) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !r.IsValid() {
		return 0
	}
	if r == RegStatus && e.busy && !e.stuck {
		e.remaining--
		if e.remaining <= 0 {
			e.busy = false
			e.regs[RegStatus.index()] |= StatusDone
		}
	}
	return e.regs[r.index()]
}

// WriteReg writes a register. Status bits are write-1-to-clear; a non-zero
// command word starts a transform.
func (e *SoftEngine) WriteReg(r Reg, v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !r.IsValid() {
		return
	}
	switch r {
	case RegStatus:
		e.regs[r.index()] &^= v
	case RegCommand:
		e.regs[r.index()] = v
		if v != 0 {
			e.start(v)
		}
	default:
		e.regs[r.index()] = v
	}
}

func (e *SoftEngine) start(cmd uint32) {
	e.stats.Commands++
	if err := e.run(cmd); err != nil {
		e.stats.Faults++
		e.regs[RegStatus.index()] |= StatusError
		if e.log != nil {
			e.log.Warnf("command 0x%08x rejected: %v", cmd, err)
		}
	}
	e.busy = true
	e.remaining = e.completionPolls
}

func (e *SoftEngine) run(cmd uint32) error {
	algo := AlgorithmFromMethod(cmd)
	if !algo.IsValid() {
		return fmt.Errorf("%w: 0x%08x", ErrUnsupportedMethod, cmd)
	}

	length := int(e.regs[RegDataLength.index()])
	if length%algo.BlockSize() != 0 {
		return fmt.Errorf("%w: %d bytes for %s", ErrPartialBlock, length, algo)
	}

	var data []byte
	var err error
	if cmd&MethodSGEnable != 0 {
		data, err = e.gather(e.regs[RegSource.index()], length)
	} else {
		data, err = e.mem.Resolve(e.regs[RegSource.index()], length)
	}
	if err != nil {
		return err
	}

	in, err := e.mem.Resolve(e.regs[RegContext.index()], algo.StateSize())
	if err != nil {
		return err
	}
	out, err := e.mem.Resolve(e.regs[RegDestination.index()], algo.StateSize())
	if err != nil {
		return err
	}

	var iv [MaxDigestSize]byte
	if cmd&MethodAccumulate == 0 {
		algo.WriteIV(&iv)
		in = iv[:algo.StateSize()]
	}

	switch algo.BlockSize() {
	case 64:
		if algo == AlgorithmSHA1 {
			var h [5]uint32
			loadWords32(h[:], in)
			transformSHA1(&h, data)
			putWords32(out, h[:])
		} else {
			var h [8]uint32
			loadWords32(h[:], in)
			transformSHA256(&h, data)
			putWords32(out, h[:])
		}
	default:
		var h [8]uint64
		loadWords64(h[:], in)
		transformSHA512(&h, data)
		putWords64(out, h[:])
	}

	e.stats.Blocks += uint64(length / algo.BlockSize())
	e.stats.Bytes += uint64(length)
	if e.log != nil {
		e.log.Tracef("%s: %d bytes transformed", algo, length)
	}
	return nil
}

// gather concatenates the scatter/gather list at addr into scratch.
func (e *SoftEngine) gather(addr uint32, length int) ([]byte, error) {
	list, err := e.mem.Descriptors(addr)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, d := range list {
		size := int(d.Length())
		if n+size > len(e.scratch) {
			return nil, fmt.Errorf("%w: list exceeds %d bytes", ErrLengthMismatch, len(e.scratch))
		}
		src, err := e.mem.Resolve(d.Addr, size)
		if err != nil {
			return nil, err
		}
		n += copy(e.scratch[n:], src)
		if d.IsLast() {
			if n != length {
				return nil, fmt.Errorf("%w: list holds %d, want %d", ErrLengthMismatch, n, length)
			}
			return e.scratch[:n], nil
		}
	}
	return nil, fmt.Errorf("%w: list not terminated", ErrLengthMismatch)
}
