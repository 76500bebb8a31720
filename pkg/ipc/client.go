package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/transport"
	"github.com/pion/logging"
)

// DefaultTimeout bounds one request/reply exchange.
const DefaultTimeout = time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// Conn carries the frames. Required.
	Conn net.PacketConn

	// Server is the server address. Pipe endpoints ignore it.
	Server net.Addr

	// Timeout bounds each exchange. Default: DefaultTimeout
	Timeout time.Duration

	// MaxTransfer is the chunk size Update uses. It must not exceed the
	// server's bound. Default: DefaultMaxTransfer
	MaxTransfer int

	// LoggerFactory creates the client logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Client calls a Server. Calls are serialized; each waits for its reply
// before the next is sent. Requests are not retried: an update that timed
// out may or may not have been applied, so the session should be
// cancelled.
type Client struct {
	mu          sync.Mutex
	conn        net.PacketConn
	server      net.Addr
	timeout     time.Duration
	maxTransfer int
	seq         uint32
	buf         []byte
	log         logging.LeveledLogger
}

// NewClient creates a client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Conn == nil {
		return nil, fmt.Errorf("%w: nil conn", ErrInvalidConfig)
	}
	if config.Timeout < 0 || config.MaxTransfer < 0 {
		return nil, fmt.Errorf("%w: negative timeout or transfer size", ErrInvalidConfig)
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTransfer == 0 {
		config.MaxTransfer = DefaultMaxTransfer
	}

	c := &Client{
		conn:        config.Conn,
		server:      config.Server,
		timeout:     config.Timeout,
		maxTransfer: config.MaxTransfer,
		buf:         make([]byte, transport.MaxDatagramSize),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("hace-ipc-client")
	}
	return c, nil
}

// call sends req and waits for the reply with the same sequence number.
// Replies to earlier, timed-out requests are discarded.
func (c *Client) call(ctx context.Context, req Frame) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	req.Seq = c.seq
	out, err := req.Encode()
	if err != nil {
		return Frame{}, err
	}
	if _, err := c.conn.WriteTo(out, c.server); err != nil {
		return Frame{}, err
	}

	deadline := time.Now().Add(c.timeout)
	ctxBound := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline, ctxBound = d, true
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Frame{}, err
	}

	for {
		n, _, err := c.conn.ReadFrom(c.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			if errors.Is(err, os.ErrDeadlineExceeded) || isTimeout(err) || !time.Now().Before(deadline) {
				if ctxBound {
					return Frame{}, context.DeadlineExceeded
				}
				return Frame{}, fmt.Errorf("%w: %v seq=%d", ErrTimeout, req.Op, req.Seq)
			}
			return Frame{}, err
		}

		var rep Frame
		if err := rep.Decode(c.buf[:n]); err != nil {
			if c.log != nil {
				c.log.Warnf("dropped reply: %v", err)
			}
			continue
		}
		if rep.Seq != req.Seq {
			if c.log != nil {
				c.log.Debugf("dropped stale reply seq=%d", rep.Seq)
			}
			continue
		}
		if rep.Op != req.Op {
			return Frame{}, fmt.Errorf("%w: %v for %v", ErrUnexpectedReply, rep.Op, req.Op)
		}
		rep.Payload = append([]byte(nil), rep.Payload...)
		if rep.Status != StatusOK {
			return rep, rep.Status
		}
		return rep, nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Init starts a digest session and returns its ID.
func (c *Client) Init(ctx context.Context, algo hace.Algorithm) (uint32, error) {
	rep, err := c.call(ctx, Frame{Op: OpInit, Algorithm: algo})
	if err != nil {
		return 0, err
	}
	return rep.Session, nil
}

// InitHMAC starts an HMAC session keyed with key.
func (c *Client) InitHMAC(ctx context.Context, algo hace.Algorithm, key []byte) (uint32, error) {
	rep, err := c.call(ctx, Frame{Op: OpInitHMAC, Algorithm: algo, Payload: key})
	if err != nil {
		return 0, err
	}
	return rep.Session, nil
}

// Update absorbs data into a session, split into MaxTransfer-sized
// requests.
func (c *Client) Update(ctx context.Context, id uint32, data []byte) error {
	for {
		n := min(len(data), c.maxTransfer)
		if _, err := c.call(ctx, Frame{Op: OpUpdate, Session: id, Payload: data[:n]}); err != nil {
			return err
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}

// Finalize finishes a session and returns the digest.
func (c *Client) Finalize(ctx context.Context, algo hace.Algorithm, id uint32) ([]byte, error) {
	rep, err := c.call(ctx, Frame{Op: OpFinalize, Algorithm: algo, Session: id})
	if err != nil {
		return nil, err
	}
	return rep.Payload, nil
}

// Cancel discards a session.
func (c *Client) Cancel(ctx context.Context, id uint32) error {
	_, err := c.call(ctx, Frame{Op: OpCancel, Session: id})
	return err
}

// Digest returns the digest of data. Data that does not fit one request is
// sent through a session.
func (c *Client) Digest(ctx context.Context, algo hace.Algorithm, data []byte) ([]byte, error) {
	if len(data) <= c.maxTransfer {
		rep, err := c.call(ctx, Frame{Op: OpDigest, Algorithm: algo, Payload: data})
		if err != nil {
			return nil, err
		}
		return rep.Payload, nil
	}

	id, err := c.Init(ctx, algo)
	if err != nil {
		return nil, err
	}
	return c.finish(ctx, algo, id, data)
}

// HMAC returns HMAC(key, data). Requests that do not fit one frame are
// sent through a session.
func (c *Client) HMAC(ctx context.Context, algo hace.Algorithm, key, data []byte) ([]byte, error) {
	if 2+len(key)+len(data) <= c.maxTransfer {
		payload, err := EncodeKeyed(key, data)
		if err != nil {
			return nil, err
		}
		rep, err := c.call(ctx, Frame{Op: OpHMAC, Algorithm: algo, Payload: payload})
		if err != nil {
			return nil, err
		}
		return rep.Payload, nil
	}

	id, err := c.InitHMAC(ctx, algo, key)
	if err != nil {
		return nil, err
	}
	return c.finish(ctx, algo, id, data)
}

func (c *Client) finish(ctx context.Context, algo hace.Algorithm, id uint32, data []byte) ([]byte, error) {
	if err := c.Update(ctx, id, data); err != nil {
		_ = c.Cancel(ctx, id)
		return nil, err
	}
	sum, err := c.Finalize(ctx, algo, id)
	if err != nil {
		_ = c.Cancel(ctx, id)
		return nil, err
	}
	return sum, nil
}
