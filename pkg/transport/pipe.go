package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures lossy delivery on a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay added to each datagram.
	DelayMin time.Duration

	// DelayMax is the maximum delay added to each datagram.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// ManualProcess disables background delivery; the caller must call
	// Tick or Process.
	ManualProcess bool

	// ProcessInterval is how often the background processor delivers.
	// Default: 1ms
	ProcessInterval time.Duration
}

// Pipe connects two datagram endpoints in memory. It wraps pion's
// test.Bridge and adds loss simulation.
type Pipe struct {
	bridge    *test.Bridge
	endpoints [2]*PipePacketConn

	mu        sync.RWMutex
	condition NetworkCondition
	rng       *rand.Rand
	closed    bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPipe creates a pipe that delivers datagrams in the background.
func NewPipe() *Pipe {
	return NewPipeWithConfig(PipeConfig{})
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}
	p.endpoints[0] = &PipePacketConn{conn: p.bridge.GetConn0(), local: PipeAddr{ID: 0}, peer: PipeAddr{ID: 1}, pipe: p}
	p.endpoints[1] = &PipePacketConn{conn: p.bridge.GetConn1(), local: PipeAddr{ID: 1}, peer: PipeAddr{ID: 0}, pipe: p}

	if !config.ManualProcess {
		interval := config.ProcessInterval
		if interval == 0 {
			interval = time.Millisecond
		}
		p.wg.Add(1)
		go p.process(interval)
	}
	return p
}

func (p *Pipe) process(interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.bridge.Tick()
		}
	}
}

// Endpoint returns endpoint 0 or 1 as a net.PacketConn.
func (p *Pipe) Endpoint(id int) net.PacketConn {
	if id < 0 || id > 1 {
		return nil
	}
	return p.endpoints[id]
}

// SetCondition configures loss simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Tick delivers one datagram in each direction, if queued.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers every queued datagram.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// shouldDrop applies the drop rate and delay for one datagram.
func (p *Pipe) shouldDrop() bool {
	p.mu.RLock()
	cond := p.condition
	p.mu.RUnlock()

	if cond.DropRate > 0 {
		p.mu.Lock()
		drop := p.rng.Float64() < cond.DropRate
		p.mu.Unlock()
		if drop {
			return true
		}
	}
	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			p.mu.Lock()
			delay += time.Duration(p.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
			p.mu.Unlock()
		}
		time.Sleep(delay)
	}
	return false
}

// PipeAddr names a pipe endpoint.
type PipeAddr struct {
	ID int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// PipePacketConn is one end of a Pipe. Every datagram goes to the other
// end; the destination address is ignored.
type PipePacketConn struct {
	conn  net.Conn
	local PipeAddr
	peer  PipeAddr
	pipe  *Pipe
}

// ReadFrom reads a datagram sent by the other end.
func (c *PipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peer, err
}

// WriteTo sends a datagram to the other end, subject to the pipe's
// network condition.
func (c *PipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	if c.pipe.shouldDrop() {
		return len(b), nil
	}
	return c.conn.Write(b)
}

// Close closes this end.
func (c *PipePacketConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address.
func (c *PipePacketConn) LocalAddr() net.Addr {
	return c.local
}

// SetDeadline sets the read and write deadlines.
func (c *PipePacketConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *PipePacketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

var _ net.PacketConn = (*PipePacketConn)(nil)
