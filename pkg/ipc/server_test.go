package ipc

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"testing"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/session"
	"github.com/backkem/hace/pkg/transport"
)

func newTestServer(t *testing.T, maxSessions int) *Server {
	t.Helper()
	e, err := hace.NewSoftEngine(hace.SoftEngineConfig{})
	if err != nil {
		t.Fatalf("NewSoftEngine() error = %v", err)
	}
	m, err := session.New(e, session.ManagerConfig{MaxSessions: maxSessions})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	s, err := NewServer(ServerConfig{Manager: m})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func reference(algo hace.Algorithm) func() hash.Hash {
	switch algo {
	case hace.AlgorithmSHA1:
		return sha1.New
	case hace.AlgorithmSHA224:
		return sha256.New224
	case hace.AlgorithmSHA256:
		return sha256.New
	case hace.AlgorithmSHA384:
		return sha512.New384
	case hace.AlgorithmSHA512:
		return sha512.New
	case hace.AlgorithmSHA512_224:
		return sha512.New512_224
	default:
		return sha512.New512_256
	}
}

func referenceSum(algo hace.Algorithm, data []byte) []byte {
	h := reference(algo)()
	h.Write(data)
	return h.Sum(nil)
}

func referenceMAC(algo hace.Algorithm, key, data []byte) []byte {
	h := hmac.New(reference(algo), key)
	h.Write(data)
	return h.Sum(nil)
}

func message(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}
	return b
}

func mustOK(t *testing.T, rep Frame) Frame {
	t.Helper()
	if rep.Status != StatusOK {
		t.Fatalf("%v status = %v, want OK", rep.Op, rep.Status)
	}
	return rep
}

func TestNewServer_Invalid(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() without a manager succeeded")
	}
	s := newTestServer(t, 0)
	if s.MaxTransfer() != DefaultMaxTransfer {
		t.Errorf("MaxTransfer() = %d, want %d", s.MaxTransfer(), DefaultMaxTransfer)
	}
	if _, err := NewServer(ServerConfig{Manager: s.m, MaxTransfer: transport.MaxDatagramSize}); err == nil {
		t.Error("NewServer() with an oversized MaxTransfer succeeded")
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	rep := mustOK(t, s.Handle(&Frame{Op: OpInit, Algorithm: hace.AlgorithmSHA256, Seq: 7}))
	if rep.Seq != 7 || rep.Op != OpInit {
		t.Errorf("reply = %+v, want seq 7 op Init", rep)
	}
	id := rep.Session
	if id == 0 {
		t.Fatal("Init returned session 0")
	}

	for _, chunk := range []string{"a", "b", "c"} {
		mustOK(t, s.Handle(&Frame{Op: OpUpdate, Session: id, Payload: []byte(chunk)}))
	}

	rep = s.Handle(&Frame{Op: OpFinalize, Algorithm: hace.AlgorithmSHA384, Session: id})
	if rep.Status != StatusAlgorithmMismatch {
		t.Errorf("Finalize with wrong algorithm status = %v, want AlgorithmMismatch", rep.Status)
	}
	if s.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d after mismatch, want 1", s.SessionCount())
	}

	rep = mustOK(t, s.Handle(&Frame{Op: OpFinalize, Algorithm: hace.AlgorithmSHA256, Session: id}))
	if want := referenceSum(hace.AlgorithmSHA256, []byte("abc")); !bytes.Equal(rep.Payload, want) {
		t.Errorf("Finalize payload = %x, want %x", rep.Payload, want)
	}
	if s.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d after Finalize, want 0", s.SessionCount())
	}

	rep = s.Handle(&Frame{Op: OpUpdate, Session: id, Payload: []byte("x")})
	if rep.Status != StatusInvalidSession {
		t.Errorf("Update after Finalize status = %v, want InvalidSession", rep.Status)
	}
}

func TestServer_Errors(t *testing.T) {
	s := newTestServer(t, 0)

	tests := []struct {
		name string
		req  Frame
		want Status
	}{
		{"unknown op", Frame{Op: Op(0x7f)}, StatusBadRequest},
		{"status set on request", Frame{Op: OpInit, Algorithm: hace.AlgorithmSHA256, Status: StatusBusy}, StatusBadRequest},
		{"unsupported algorithm", Frame{Op: OpInit, Algorithm: hace.AlgorithmUnknown}, StatusUnsupportedAlgorithm},
		{"unsupported one-shot", Frame{Op: OpDigest, Algorithm: hace.Algorithm(99)}, StatusUnsupportedAlgorithm},
		{"unknown session", Frame{Op: OpUpdate, Session: 1234}, StatusInvalidSession},
		{"cancel unknown", Frame{Op: OpCancel, Session: 1234}, StatusInvalidSession},
		{"transfer too large", Frame{Op: OpDigest, Algorithm: hace.AlgorithmSHA256, Payload: make([]byte, DefaultMaxTransfer+1)}, StatusTransferTooLarge},
		{"bad keyed payload", Frame{Op: OpHMAC, Algorithm: hace.AlgorithmSHA256, Payload: []byte{0, 9}}, StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Handle(&tt.req).Status; got != tt.want {
				t.Errorf("Handle() status = %v, want %v", got, tt.want)
			}
		})
	}

	id := mustOK(t, s.Handle(&Frame{Op: OpInit, Algorithm: hace.AlgorithmSHA512})).Session
	rep := s.Handle(&Frame{Op: OpUpdate, Session: id, Payload: make([]byte, DefaultMaxTransfer+1)})
	if rep.Status != StatusTransferTooLarge {
		t.Errorf("oversized Update status = %v, want TransferTooLarge", rep.Status)
	}
	mustOK(t, s.Handle(&Frame{Op: OpUpdate, Session: id, Payload: make([]byte, DefaultMaxTransfer)}))
	rep = mustOK(t, s.Handle(&Frame{Op: OpFinalize, Algorithm: hace.AlgorithmSHA512, Session: id}))
	if want := referenceSum(hace.AlgorithmSHA512, make([]byte, DefaultMaxTransfer)); !bytes.Equal(rep.Payload, want) {
		t.Errorf("digest after rejected update = %x, want %x", rep.Payload, want)
	}
}

func TestServer_Exhaustion(t *testing.T) {
	s := newTestServer(t, 2)

	var ids []uint32
	for i := 0; i < 2; i++ {
		ids = append(ids, mustOK(t, s.Handle(&Frame{Op: OpInit, Algorithm: hace.AlgorithmSHA256})).Session)
	}
	if got := s.Handle(&Frame{Op: OpInit, Algorithm: hace.AlgorithmSHA256}).Status; got != StatusTooManySessions {
		t.Errorf("third Init status = %v, want TooManySessions", got)
	}
	if got := s.Handle(&Frame{Op: OpDigest, Algorithm: hace.AlgorithmSHA256}).Status; got != StatusTooManySessions {
		t.Errorf("one-shot on full server status = %v, want TooManySessions", got)
	}

	mustOK(t, s.Handle(&Frame{Op: OpCancel, Session: ids[0]}))
	mustOK(t, s.Handle(&Frame{Op: OpInit, Algorithm: hace.AlgorithmSHA256}))

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.SessionCount() != 0 || s.m.ActiveCount() != 0 {
		t.Errorf("after Close: SessionCount() = %d, ActiveCount() = %d", s.SessionCount(), s.m.ActiveCount())
	}
}

func TestServer_OneShots(t *testing.T) {
	s := newTestServer(t, 0)
	data := message(700)
	key := []byte("server key")

	for algo := range algorithms {
		rep := mustOK(t, s.Handle(&Frame{Op: OpDigest, Algorithm: algo, Payload: data}))
		if want := referenceSum(algo, data); !bytes.Equal(rep.Payload, want) {
			t.Errorf("%v digest = %x, want %x", algo, rep.Payload, want)
		}

		payload, _ := EncodeKeyed(key, data)
		rep = mustOK(t, s.Handle(&Frame{Op: OpHMAC, Algorithm: algo, Payload: payload}))
		if want := referenceMAC(algo, key, data); !bytes.Equal(rep.Payload, want) {
			t.Errorf("%v HMAC = %x, want %x", algo, rep.Payload, want)
		}
	}
}

func TestServer_HandleDatagram(t *testing.T) {
	s := newTestServer(t, 0)

	req, _ := (&Frame{Op: OpDigest, Algorithm: hace.AlgorithmSHA256, Seq: 99, Payload: []byte("abc")}).Encode()
	out := s.HandleDatagram(&transport.ReceivedMessage{Data: req})

	var rep Frame
	if err := rep.Decode(out); err != nil {
		t.Fatalf("Decode(reply) error = %v", err)
	}
	if rep.Seq != 99 || rep.Status != StatusOK {
		t.Errorf("reply = %+v", rep)
	}
	if want := referenceSum(hace.AlgorithmSHA256, []byte("abc")); !bytes.Equal(rep.Payload, want) {
		t.Errorf("reply payload = %x, want %x", rep.Payload, want)
	}

	if out := s.HandleDatagram(&transport.ReceivedMessage{Data: []byte{1, 2, 3}}); out != nil {
		t.Errorf("HandleDatagram(garbage) = %x, want nil", out)
	}
}
