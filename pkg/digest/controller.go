package digest

import (
	"fmt"
	"math/bits"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
	"github.com/pion/logging"
)

// DefaultMaxPolls is the default status poll budget per engine command.
const DefaultMaxPolls = 100000

// HMAC pad bytes (RFC 2104).
const (
	ipadByte = 0x36
	opadByte = 0x5c
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// MaxPolls bounds the status reads spent waiting for one command.
	// Zero selects DefaultMaxPolls.
	MaxPolls int

	// LoggerFactory creates the controller logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c ControllerConfig) Validate() error {
	if c.MaxPolls < 0 {
		return fmt.Errorf("%w: negative poll budget", ErrInvalidConfig)
	}
	return nil
}

// controllerState is what moves between a Controller handle and the owned
// contexts that take it over.
type controllerState[P provider.ContextProvider] struct {
	engine   hace.Engine
	provider P
	algo     hace.Algorithm
	maxPolls int

	// borrow is bumped every time the state is borrowed or moved; scoped
	// contexts remember the value they were created under.
	borrow uint64

	log logging.LeveledLogger
}

// Controller drives the hash engine through a context provider.
//
// A Controller is a handle. Moving it into an owned context (Init,
// InitHMAC, Resume) empties the handle; every later call on it returns
// ErrControllerMoved. Finalize, Cancel and Suspend hand back a fresh handle.
type Controller[P provider.ContextProvider] struct {
	st *controllerState[P]
}

// NewController creates a controller over engine, routing every context
// access through p.
func NewController[P provider.ContextProvider](engine hace.Engine, p P, config ControllerConfig) (*Controller[P], error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	polls := config.MaxPolls
	if polls == 0 {
		polls = DefaultMaxPolls
	}

	st := &controllerState[P]{
		engine:   engine,
		provider: p,
		maxPolls: polls,
	}
	if config.LoggerFactory != nil {
		st.log = config.LoggerFactory.NewLogger("hace-digest")
	}
	return &Controller[P]{st: st}, nil
}

// NewSingleController is a convenience for the single-session case: it
// wraps the engine's hardware context in a provider.Single.
func NewSingleController(engine hace.Engine, config ControllerConfig) (*Controller[*provider.Single], error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrInvalidConfig)
	}
	p, err := provider.NewSingle(engine.Memory().Context())
	if err != nil {
		return nil, err
	}
	return NewController(engine, p, config)
}

// IsValid reports whether the handle still holds the controller.
func (c *Controller[P]) IsValid() bool {
	return c != nil && c.st != nil
}

// Provider returns the context provider.
func (c *Controller[P]) Provider() (P, error) {
	st, err := c.state()
	if err != nil {
		var zero P
		return zero, err
	}
	return st.provider, nil
}

// Algorithm returns the algorithm most recently selected by an init.
func (c *Controller[P]) Algorithm() hace.Algorithm {
	if !c.IsValid() {
		return hace.AlgorithmUnknown
	}
	return c.st.algo
}

func (c *Controller[P]) state() (*controllerState[P], error) {
	if !c.IsValid() {
		return nil, ErrControllerMoved
	}
	return c.st, nil
}

// Move transfers the controller to a new handle and empties c. Scoped
// contexts borrowed from c are invalidated.
func (c *Controller[P]) Move() (*Controller[P], error) {
	if _, err := c.state(); err != nil {
		return nil, err
	}
	return &Controller[P]{st: c.move()}, nil
}

// move empties the handle and invalidates any scoped context borrowed from it.
func (c *Controller[P]) move() *controllerState[P] {
	st := c.st
	c.st = nil
	st.borrow++
	return st
}

func (s *controllerState[P]) context() (*hace.Context, error) {
	ctx, err := s.provider.Context()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextAccess, err)
	}
	return ctx, nil
}

// startOperation programs the engine for length bytes of prepared data and
// waits for completion.
func (s *controllerState[P]) startOperation(length uint32) error {
	ctx, err := s.context()
	if err != nil {
		return err
	}

	src := hace.AddrBuffer
	if ctx.Method&hace.MethodSGEnable != 0 {
		src = hace.AddrSG
	}

	e := s.engine
	e.WriteReg(hace.RegStatus, hace.StatusDone|hace.StatusError)
	e.WriteReg(hace.RegSource, src)
	e.WriteReg(hace.RegDestination, hace.AddrDigest)
	e.WriteReg(hace.RegContext, hace.AddrDigest)
	e.WriteReg(hace.RegDataLength, length)
	e.WriteReg(hace.RegCommand, ctx.Method)

	return s.waitDone()
}

func (s *controllerState[P]) waitDone() error {
	for i := 0; i < s.maxPolls; i++ {
		status := s.engine.ReadReg(hace.RegStatus)
		if status&hace.StatusDone == 0 {
			continue
		}
		s.engine.WriteReg(hace.RegStatus, hace.StatusDone|hace.StatusError)
		if status&hace.StatusError != 0 {
			if s.log != nil {
				s.log.Warnf("engine reported an error (status 0x%08x)", status)
			}
			return ErrHardwareFault
		}
		return nil
	}
	if s.log != nil {
		s.log.Warnf("engine did not complete within %d polls", s.maxPolls)
	}
	return fmt.Errorf("%w: %d polls", ErrHardwareTimeout, s.maxPolls)
}

// copyIV seeds the accumulator with the algorithm's initial hash value.
func (s *controllerState[P]) copyIV(ctx *hace.Context, algo hace.Algorithm) {
	algo.WriteIV(&ctx.Digest)
	ctx.IVSize = algo.IVSize()
}

// initContext selects algo and resets the running state. Key material is
// left in place.
func (s *controllerState[P]) initContext(algo hace.Algorithm) error {
	if !algo.IsValid() {
		return fmt.Errorf("%w: %v", ErrAlgorithmMismatch, algo)
	}
	ctx, err := s.context()
	if err != nil {
		return err
	}

	s.algo = algo
	ctx.Reset()
	ctx.Method = algo.HashCommand()
	ctx.BlockSize = uint32(algo.BlockSize())
	s.copyIV(ctx, algo)
	return nil
}

// running returns the hardware context after checking it holds a
// computation of algo.
func (s *controllerState[P]) running(algo hace.Algorithm) (*hace.Context, error) {
	ctx, err := s.context()
	if err != nil {
		return nil, err
	}
	if ctx.BlockSize == 0 {
		return nil, ErrNotInitialized
	}
	if got := ctx.Algorithm(); got != algo {
		return nil, fmt.Errorf("%w: context holds %v, want %v", ErrAlgorithmMismatch, got, algo)
	}
	if ctx.BlockSize != uint32(algo.BlockSize()) {
		return nil, fmt.Errorf("%w: block size %d", ErrNotInitialized, ctx.BlockSize)
	}
	s.algo = algo
	return ctx, nil
}

// update feeds data through the staging window one window at a time.
func (s *controllerState[P]) update(algo hace.Algorithm, data []byte) error {
	staging := s.engine.Memory().Staging()
	for len(data) > 0 {
		n := min(len(data), len(staging))
		if err := s.updateChunk(algo, staging, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// updateChunk buffers chunk, transforming every whole block that becomes
// available. The engine reads buffered bytes from the pending-data buffer
// and the rest from the staging window through two descriptors.
func (s *controllerState[P]) updateChunk(algo hace.Algorithm, staging, chunk []byte) error {
	ctx, err := s.running(algo)
	if err != nil {
		return err
	}

	n := uint32(len(chunk))
	bs := ctx.BlockSize
	bufcnt := ctx.BufferCount
	if bufcnt >= bs {
		return fmt.Errorf("%w: %d bytes buffered", ErrBufferOverflow, bufcnt)
	}

	if bufcnt+n < bs {
		copy(ctx.Buffer[bufcnt:], chunk)
		ctx.BufferCount += n
		addCount(ctx, n)
		return nil
	}

	remaining := (bufcnt + n) % bs
	total := bufcnt + n - remaining
	staged := total - bufcnt
	copy(staging, chunk[:staged])

	i := 0
	if bufcnt != 0 {
		ctx.SG[0] = hace.SGDescriptor{Len: bufcnt, Addr: hace.AddrBuffer}
		i = 1
	}
	ctx.SG[i] = hace.SGDescriptor{Len: staged | hace.SGLast, Addr: hace.AddrStaging}

	if err := s.startOperation(total); err != nil {
		return err
	}

	copy(ctx.Buffer[:], chunk[staged:])
	ctx.BufferCount = remaining
	addCount(ctx, n)
	return nil
}

// addCount adds n to the two-word byte counter.
func addCount(ctx *hace.Context, n uint32) {
	var carry uint64
	ctx.DigestCount[0], carry = bits.Add64(ctx.DigestCount[0], uint64(n), 0)
	ctx.DigestCount[1] += carry
}

// fillPadding appends 0x80, zeros and the big-endian bit length so the
// buffered data ends on a block boundary.
func (s *controllerState[P]) fillPadding(ctx *hace.Context) error {
	bs := ctx.BlockSize
	bufcnt := ctx.BufferCount
	index := bufcnt & (bs - 1)

	var padlen, lenField uint32
	if bs == 64 {
		lenField = 8
		if index < 56 {
			padlen = 56 - index
		} else {
			padlen = 64 + 56 - index
		}
	} else {
		lenField = 16
		if index < 112 {
			padlen = 112 - index
		} else {
			padlen = 128 + 112 - index
		}
	}
	if int(bufcnt+padlen+lenField) > len(ctx.Buffer) {
		return fmt.Errorf("%w: padding %d buffered bytes", ErrBufferOverflow, bufcnt)
	}

	ctx.Buffer[bufcnt] = 0x80
	for i := bufcnt + 1; i < bufcnt+padlen; i++ {
		ctx.Buffer[i] = 0
	}

	tail := ctx.Buffer[bufcnt+padlen:]
	bitsLo := ctx.DigestCount[0] << 3
	if bs == 64 {
		putUint64(tail, bitsLo)
	} else {
		bitsHi := ctx.DigestCount[1]<<3 | ctx.DigestCount[0]>>61
		putUint64(tail, bitsHi)
		putUint64(tail[8:], bitsLo)
	}
	ctx.BufferCount += padlen + lenField
	return nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// finalizeDigest pads the buffered data, runs the last transform and
// returns the digest. The running state is not cleared.
func (s *controllerState[P]) finalizeDigest(algo hace.Algorithm) (Digest, error) {
	ctx, err := s.running(algo)
	if err != nil {
		return Digest{}, err
	}
	if err := s.fillPadding(ctx); err != nil {
		return Digest{}, err
	}

	ctx.SG[0] = hace.SGDescriptor{Len: ctx.BufferCount | hace.SGLast, Addr: hace.AddrBuffer}
	if err := s.startOperation(ctx.BufferCount); err != nil {
		return Digest{}, err
	}
	return newDigest(ctx.Digest[:algo.DigestSize()]), nil
}

// finalize produces the digest and cleans up the context.
func (s *controllerState[P]) finalize(algo hace.Algorithm) (Digest, error) {
	d, err := s.finalizeDigest(algo)
	if err != nil {
		return Digest{}, err
	}
	if err := s.cleanup(); err != nil {
		return Digest{}, err
	}
	return d, nil
}

// cleanup clears the running state and key material and idles the engine.
func (s *controllerState[P]) cleanup() error {
	ctx, err := s.context()
	if err != nil {
		return err
	}
	ctx.Reset()
	ctx.ZeroizeKey()
	ctx.Method = 0
	ctx.BlockSize = 0
	ctx.IVSize = 0
	s.engine.WriteReg(hace.RegCommand, 0)
	return nil
}

// absorbKey stores the HMAC key and derives both pads. Keys longer than the
// block size are first hashed through the engine. The running state is
// re-initialized for algo afterwards.
func (s *controllerState[P]) absorbKey(algo hace.Algorithm, key []byte) error {
	bs := algo.BlockSize()

	var hashed [hace.MaxDigestSize]byte
	if len(key) > bs {
		if err := s.update(algo, key); err != nil {
			return err
		}
		d, err := s.finalizeDigest(algo)
		if err != nil {
			return err
		}
		key = hashed[:d.PutBytes(hashed[:])]
		if err := s.initContext(algo); err != nil {
			return err
		}
	}

	ctx, err := s.context()
	if err != nil {
		return err
	}
	ctx.ZeroizeKey()
	copy(ctx.Key[:], key)
	ctx.KeyLen = uint32(len(key))
	for i := 0; i < bs; i++ {
		ctx.IPad[i] = ctx.Key[i] ^ ipadByte
		ctx.OPad[i] = ctx.Key[i] ^ opadByte
	}
	clear(hashed[:])
	return nil
}

// initHMAC starts H(key^ipad || ...) for algo.
func (s *controllerState[P]) initHMAC(algo hace.Algorithm, key []byte) error {
	if err := s.initContext(algo); err != nil {
		return err
	}
	if err := s.absorbKey(algo, key); err != nil {
		return err
	}

	ctx, err := s.context()
	if err != nil {
		return err
	}
	var ipad [hace.MaxBlockSize]byte
	bs := algo.BlockSize()
	copy(ipad[:bs], ctx.IPad[:bs])
	err = s.update(algo, ipad[:bs])
	clear(ipad[:])
	return err
}

// finalizeHMAC completes the inner hash and runs the outer pass
// H(key^opad || inner) on the same context.
func (s *controllerState[P]) finalizeHMAC(algo hace.Algorithm) (Digest, error) {
	inner, err := s.finalizeDigest(algo)
	if err != nil {
		return Digest{}, err
	}
	if err := s.initContext(algo); err != nil {
		return Digest{}, err
	}

	ctx, err := s.context()
	if err != nil {
		return Digest{}, err
	}
	bs := algo.BlockSize()
	var outer [hace.MaxBlockSize + hace.MaxDigestSize]byte
	copy(outer[:bs], ctx.OPad[:bs])
	n := bs + inner.PutBytes(outer[bs:])

	err = s.update(algo, outer[:n])
	clear(outer[:])
	if err != nil {
		return Digest{}, err
	}
	return s.finalize(algo)
}
