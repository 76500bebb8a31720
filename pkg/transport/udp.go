// Package transport carries digest service frames as datagrams, over UDP
// sockets or over an in-memory Pipe for tests.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultPort is the default digest service port.
const DefaultPort = 5453

// MaxDatagramSize bounds a single datagram in either direction.
const MaxDatagramSize = 4096

// Stats counts datagrams handled by an endpoint.
type Stats struct {
	Received uint64
	Sent     uint64
	Dropped  uint64
}

// UDP is a request/reply datagram endpoint. It wraps a net.PacketConn and
// runs a read loop that passes each datagram to the Handler and writes the
// Handler's reply back to the sender.
type UDP struct {
	conn    net.PacketConn
	handler Handler
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	mu      sync.RWMutex
	started bool
	closed  bool
	stats   Stats
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use, such as one end
	// of a Pipe. If nil, a socket is opened on ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., "127.0.0.1:5453").
	// Ignored if Conn is provided. Default: an ephemeral port.
	ListenAddr string

	// Handler is called for each received datagram.
	// Required.
	Handler Handler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewUDP creates a new UDP transport with the given configuration.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	u := &UDP{
		conn:    config.Conn,
		handler: config.Handler,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("hace-transport")
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	return u, nil
}

// Start begins the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	u.started = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Infof("listening on %s", u.conn.LocalAddr())
	}

	u.wg.Add(1)
	go u.readLoop()

	return nil
}

// Stop closes the transport and waits for the read loop to exit.
func (u *UDP) Stop() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Info("stopping transport")
	}

	close(u.closeCh)

	// Unblock a pending read.
	_ = u.conn.SetReadDeadline(time.Now())
	u.conn.Close()
	u.wg.Wait()

	return nil
}

// Send writes one datagram to addr outside the request/reply cycle.
func (u *UDP) Send(data []byte, addr net.Addr) error {
	u.mu.RLock()
	closed := u.closed
	u.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return u.send(data, addr)
}

func (u *UDP) send(data []byte, addr net.Addr) error {
	if addr == nil {
		return ErrInvalidAddress
	}
	if len(data) > MaxDatagramSize {
		return ErrMessageTooLarge
	}

	if _, err := u.conn.WriteTo(data, addr); err != nil {
		if u.log != nil {
			u.log.Warnf("send to %v failed: %v", addr, err)
		}
		return err
	}

	u.mu.Lock()
	u.stats.Sent++
	u.mu.Unlock()
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Stats returns a snapshot of the datagram counters.
func (u *UDP) Stats() Stats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.stats
}

func (u *UDP) readLoop() {
	defer u.wg.Done()

	// One extra byte detects datagrams longer than MaxDatagramSize.
	buf := make([]byte, MaxDatagramSize+1)

	for {
		select {
		case <-u.closeCh:
			return
		default:
		}

		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				if u.log != nil {
					u.log.Warnf("read error: %v", err)
				}
				continue
			}
		}
		if n == 0 {
			continue
		}

		u.mu.Lock()
		u.stats.Received++
		if n > MaxDatagramSize {
			u.stats.Dropped++
		}
		u.mu.Unlock()
		if n > MaxDatagramSize {
			if u.log != nil {
				u.log.Warnf("dropped oversized datagram from %v", addr)
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if u.log != nil {
			u.log.Tracef("received %d bytes from %v", n, addr)
		}

		reply := u.handler(&ReceivedMessage{Data: data, Addr: addr})
		if reply != nil {
			_ = u.send(reply, addr)
		}
	}
}
