package ipc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/session"
	"github.com/backkem/hace/pkg/transport"
	"github.com/pion/logging"
)

// DefaultMaxTransfer is the default per-request data bound.
const DefaultMaxTransfer = 1024

// ServerConfig configures a Server.
type ServerConfig struct {
	// Manager runs the sessions. Required.
	Manager *session.Manager

	// MaxTransfer bounds the data carried by one request. Larger updates
	// are rejected with StatusTransferTooLarge.
	// Default: DefaultMaxTransfer
	MaxTransfer int

	// LoggerFactory creates the server logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Server dispatches frames to a session manager. Requests are handled one
// at a time.
//
// Sessions stay open until the client finalizes or cancels them; the
// server does not evict idle sessions. Close cancels whatever is left.
type Server struct {
	mu          sync.Mutex
	m           *session.Manager
	sessions    map[uint32]serverSession
	maxTransfer int
	log         logging.LeveledLogger
}

// NewServer creates a server over config.Manager.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Manager == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidConfig)
	}
	if config.MaxTransfer < 0 || config.MaxTransfer > transport.MaxDatagramSize-HeaderSize {
		return nil, fmt.Errorf("%w: max transfer %d", ErrInvalidConfig, config.MaxTransfer)
	}
	if config.MaxTransfer == 0 {
		config.MaxTransfer = DefaultMaxTransfer
	}

	s := &Server{
		m:           config.Manager,
		sessions:    make(map[uint32]serverSession),
		maxTransfer: config.MaxTransfer,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hace-ipc")
	}
	return s, nil
}

// MaxTransfer returns the per-request data bound.
func (s *Server) MaxTransfer() int {
	return s.maxTransfer
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// HandleDatagram decodes a request, handles it and returns the encoded
// reply. Undecodable datagrams get no reply. It is a transport.Handler.
func (s *Server) HandleDatagram(msg *transport.ReceivedMessage) []byte {
	var req Frame
	if err := req.Decode(msg.Data); err != nil {
		if s.log != nil {
			s.log.Warnf("dropped frame from %v: %v", msg.Addr, err)
		}
		return nil
	}
	rep := s.Handle(&req)
	out, err := rep.Encode()
	if err != nil {
		if s.log != nil {
			s.log.Errorf("encode reply: %v", err)
		}
		return nil
	}
	return out
}

// Handle runs one request and returns its reply.
func (s *Server) Handle(req *Frame) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, err := s.dispatch(req)
	if err != nil {
		rep = req.reply(statusOf(err))
		if s.log != nil {
			s.log.Debugf("%v seq=%d session=%d: %v", req.Op, req.Seq, req.Session, err)
		}
	}
	return rep
}

func (s *Server) dispatch(req *Frame) (Frame, error) {
	if req.Status != StatusOK || !req.Op.IsValid() {
		return Frame{}, StatusBadRequest
	}
	if len(req.Payload) > s.maxTransfer {
		return Frame{}, StatusTransferTooLarge
	}

	switch req.Op {
	case OpInit, OpInitHMAC:
		ops, err := algorithmFor(req.Algorithm)
		if err != nil {
			return Frame{}, err
		}
		var key []byte
		if req.Op == OpInitHMAC {
			key = req.Payload
		}
		sess, err := ops.start(s.m, key, req.Op == OpInitHMAC)
		if err != nil {
			return Frame{}, err
		}
		gen := sess.ID().Generation
		s.sessions[gen] = sess
		rep := req.reply(StatusOK)
		rep.Session = gen
		return rep, nil

	case OpUpdate:
		sess, err := s.lookup(req.Session)
		if err != nil {
			return Frame{}, err
		}
		if err := sess.Update(req.Payload); err != nil {
			return Frame{}, err
		}
		return req.reply(StatusOK), nil

	case OpFinalize:
		sess, err := s.lookup(req.Session)
		if err != nil {
			return Frame{}, err
		}
		if sess.Algorithm() != req.Algorithm {
			return Frame{}, StatusAlgorithmMismatch
		}
		sum, err := sess.finalize()
		if err != nil {
			return Frame{}, err
		}
		delete(s.sessions, req.Session)
		rep := req.reply(StatusOK)
		rep.Payload = sum.Bytes()
		return rep, nil

	case OpCancel:
		sess, err := s.lookup(req.Session)
		if err != nil {
			return Frame{}, err
		}
		delete(s.sessions, req.Session)
		if err := sess.cancel(); err != nil && s.log != nil {
			s.log.Warnf("cancel session %d: %v", req.Session, err)
		}
		return req.reply(StatusOK), nil

	case OpDigest:
		ops, err := algorithmFor(req.Algorithm)
		if err != nil {
			return Frame{}, err
		}
		sum, err := ops.oneShot(s.m, req.Payload)
		if err != nil {
			return Frame{}, err
		}
		rep := req.reply(StatusOK)
		rep.Payload = sum.Bytes()
		return rep, nil

	default: // OpHMAC
		ops, err := algorithmFor(req.Algorithm)
		if err != nil {
			return Frame{}, err
		}
		key, data, err := DecodeKeyed(req.Payload)
		if err != nil {
			return Frame{}, StatusBadRequest
		}
		sum, err := ops.mac(s.m, key, data)
		if err != nil {
			return Frame{}, err
		}
		rep := req.reply(StatusOK)
		rep.Payload = sum.Bytes()
		return rep, nil
	}
}

// lookup returns the open session with generation gen. A session the
// manager no longer knows is dropped from the map.
func (s *Server) lookup(gen uint32) (serverSession, error) {
	sess, ok := s.sessions[gen]
	if !ok {
		return nil, StatusInvalidSession
	}
	if !s.m.IsValid(sess.ID()) {
		delete(s.sessions, gen)
		return nil, StatusInvalidSession
	}
	return sess, nil
}

// Close cancels every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for gen, sess := range s.sessions {
		if err := sess.cancel(); err != nil {
			errs = append(errs, err)
		}
		delete(s.sessions, gen)
	}
	return errors.Join(errs...)
}

// statusOf maps an error to the status reported on the wire.
func statusOf(err error) Status {
	var st Status
	switch {
	case errors.As(err, &st):
		return st
	case errors.Is(err, session.ErrTooManySessions):
		return StatusTooManySessions
	case errors.Is(err, session.ErrInvalidSession):
		return StatusInvalidSession
	case errors.Is(err, session.ErrAlgorithmMismatch):
		return StatusAlgorithmMismatch
	case errors.Is(err, session.ErrControllerInUse):
		return StatusBusy
	case errors.Is(err, session.ErrInitFailed):
		return StatusInitFailed
	case errors.Is(err, session.ErrUpdateFailed):
		return StatusUpdateFailed
	case errors.Is(err, session.ErrFinalizeFailed):
		return StatusFinalizeFailed
	default:
		return StatusInternal
	}
}

// serverSession is a session.Digest with its algorithm erased.
type serverSession interface {
	ID() session.ID
	Algorithm() hace.Algorithm
	Update(data []byte) error
	finalize() (digest.Digest, error)
	cancel() error
}

type typedSession[A digest.Algorithm] struct {
	*session.Digest[A]
	m *session.Manager
}

func (t typedSession[A]) finalize() (digest.Digest, error) {
	sum, _, err := session.Finalize(t.m, t.Digest)
	return sum, err
}

func (t typedSession[A]) cancel() error {
	return session.Cancel(t.m, t.Digest)
}

// algorithmOps binds an algorithm number to the generic session calls.
type algorithmOps struct {
	start   func(m *session.Manager, key []byte, keyed bool) (serverSession, error)
	oneShot func(m *session.Manager, data []byte) (digest.Digest, error)
	mac     func(m *session.Manager, key, data []byte) (digest.Digest, error)
}

func opsFor[A digest.Algorithm]() algorithmOps {
	return algorithmOps{
		start: func(m *session.Manager, key []byte, keyed bool) (serverSession, error) {
			var (
				d   *session.Digest[A]
				err error
			)
			if keyed {
				d, err = session.InitHMAC[A](m, key)
			} else {
				d, err = session.Init[A](m)
			}
			if err != nil {
				return nil, err
			}
			return typedSession[A]{Digest: d, m: m}, nil
		},
		oneShot: session.OneShot[A],
		mac:     session.HMACOneShot[A],
	}
}

var algorithms = map[hace.Algorithm]algorithmOps{
	hace.AlgorithmSHA1:       opsFor[digest.SHA1](),
	hace.AlgorithmSHA224:     opsFor[digest.SHA224](),
	hace.AlgorithmSHA256:     opsFor[digest.SHA256](),
	hace.AlgorithmSHA384:     opsFor[digest.SHA384](),
	hace.AlgorithmSHA512:     opsFor[digest.SHA512](),
	hace.AlgorithmSHA512_224: opsFor[digest.SHA512_224](),
	hace.AlgorithmSHA512_256: opsFor[digest.SHA512_256](),
}

func algorithmFor(a hace.Algorithm) (algorithmOps, error) {
	ops, ok := algorithms[a]
	if !ok {
		return algorithmOps{}, StatusUnsupportedAlgorithm
	}
	return ops, nil
}
