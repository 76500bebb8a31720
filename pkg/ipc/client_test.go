package ipc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/transport"
)

// startPair runs a server on one pipe endpoint and returns a client on the
// other.
func startPair(t *testing.T, maxSessions int) (*Client, *Server) {
	t.Helper()
	srv := newTestServer(t, maxSessions)

	p := transport.NewPipe()
	u, err := transport.NewUDP(transport.UDPConfig{
		Conn:    p.Endpoint(0),
		Handler: srv.HandleDatagram,
	})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		u.Stop()
		p.Close()
	})

	c, err := NewClient(ClientConfig{Conn: p.Endpoint(1)})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, srv
}

func TestNewClient_Invalid(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient() error = %v, want ErrInvalidConfig", err)
	}
	p := transport.NewPipe()
	defer p.Close()
	if _, err := NewClient(ClientConfig{Conn: p.Endpoint(0), Timeout: -time.Second}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient() with negative timeout error = %v, want ErrInvalidConfig", err)
	}
}

func TestClient_Digest(t *testing.T) {
	c, srv := startPair(t, 0)
	ctx := context.Background()

	for algo := range algorithms {
		for _, n := range []int{0, 3, DefaultMaxTransfer, DefaultMaxTransfer + 1, 5000} {
			data := message(n)
			got, err := c.Digest(ctx, algo, data)
			if err != nil {
				t.Fatalf("%v len %d: Digest() error = %v", algo, n, err)
			}
			if want := referenceSum(algo, data); !bytes.Equal(got, want) {
				t.Errorf("%v len %d: Digest() = %x, want %x", algo, n, got, want)
			}
		}
	}
	if srv.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d, want 0", srv.SessionCount())
	}
}

func TestClient_HMAC(t *testing.T) {
	c, _ := startPair(t, 0)
	ctx := context.Background()

	keys := [][]byte{nil, []byte("Jefe"), message(200)}
	for _, key := range keys {
		for _, n := range []int{0, 28, 2000} {
			data := message(n)
			for _, algo := range []hace.Algorithm{hace.AlgorithmSHA256, hace.AlgorithmSHA384, hace.AlgorithmSHA512} {
				got, err := c.HMAC(ctx, algo, key, data)
				if err != nil {
					t.Fatalf("%v key %d len %d: HMAC() error = %v", algo, len(key), n, err)
				}
				if want := referenceMAC(algo, key, data); !bytes.Equal(got, want) {
					t.Errorf("%v key %d len %d: HMAC() = %x, want %x", algo, len(key), n, got, want)
				}
			}
		}
	}
}

func TestClient_InterleavedSessions(t *testing.T) {
	c, _ := startPair(t, 0)
	ctx := context.Background()

	a, err := c.Init(ctx, hace.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b, err := c.InitHMAC(ctx, hace.AlgorithmSHA512, []byte("key"))
	if err != nil {
		t.Fatalf("InitHMAC() error = %v", err)
	}
	if a == b {
		t.Fatalf("sessions share id %d", a)
	}

	msgA, msgB := message(3000), message(1500)
	for i := 0; i < 3; i++ {
		if err := c.Update(ctx, a, msgA[i*1000:(i+1)*1000]); err != nil {
			t.Fatalf("Update(a) error = %v", err)
		}
		if err := c.Update(ctx, b, msgB[i*500:(i+1)*500]); err != nil {
			t.Fatalf("Update(b) error = %v", err)
		}
	}

	sumB, err := c.Finalize(ctx, hace.AlgorithmSHA512, b)
	if err != nil {
		t.Fatalf("Finalize(b) error = %v", err)
	}
	sumA, err := c.Finalize(ctx, hace.AlgorithmSHA256, a)
	if err != nil {
		t.Fatalf("Finalize(a) error = %v", err)
	}
	if want := referenceSum(hace.AlgorithmSHA256, msgA); !bytes.Equal(sumA, want) {
		t.Errorf("session a = %x, want %x", sumA, want)
	}
	if want := referenceMAC(hace.AlgorithmSHA512, []byte("key"), msgB); !bytes.Equal(sumB, want) {
		t.Errorf("session b = %x, want %x", sumB, want)
	}
}

func TestClient_StatusErrors(t *testing.T) {
	c, _ := startPair(t, 1)
	ctx := context.Background()

	if err := c.Update(ctx, 42, []byte("x")); !errors.Is(err, StatusInvalidSession) {
		t.Errorf("Update(unknown) error = %v, want StatusInvalidSession", err)
	}
	if _, err := c.Init(ctx, hace.AlgorithmUnknown); !errors.Is(err, StatusUnsupportedAlgorithm) {
		t.Errorf("Init(unknown algorithm) error = %v, want StatusUnsupportedAlgorithm", err)
	}

	id, err := c.Init(ctx, hace.AlgorithmSHA1)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := c.Init(ctx, hace.AlgorithmSHA1); !errors.Is(err, StatusTooManySessions) {
		t.Errorf("Init() on full server error = %v, want StatusTooManySessions", err)
	}
	if _, err := c.Finalize(ctx, hace.AlgorithmSHA256, id); !errors.Is(err, StatusAlgorithmMismatch) {
		t.Errorf("Finalize(wrong algorithm) error = %v, want StatusAlgorithmMismatch", err)
	}
	if err := c.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := c.Cancel(ctx, id); !errors.Is(err, StatusInvalidSession) {
		t.Errorf("Cancel() twice error = %v, want StatusInvalidSession", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer silent.Close()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer conn.Close()

	c, err := NewClient(ClientConfig{
		Conn:    conn,
		Server:  silent.LocalAddr(),
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	start := time.Now()
	if _, err := c.Digest(context.Background(), hace.AlgorithmSHA256, []byte("abc")); !errors.Is(err, ErrTimeout) {
		t.Errorf("Digest() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Digest() took %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Init(ctx, hace.AlgorithmSHA256); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Init() with expired context error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClient_OverUDP(t *testing.T) {
	srv := newTestServer(t, 0)
	u, err := transport.NewUDP(transport.UDPConfig{
		ListenAddr: "127.0.0.1:0",
		Handler:    srv.HandleDatagram,
	})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer u.Stop()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer conn.Close()

	c, err := NewClient(ClientConfig{Conn: conn, Server: u.LocalAddr()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	got, err := c.Digest(context.Background(), hace.AlgorithmSHA384, message(4000))
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if want := referenceSum(hace.AlgorithmSHA384, message(4000)); !bytes.Equal(got, want) {
		t.Errorf("Digest() = %x, want %x", got, want)
	}
}
