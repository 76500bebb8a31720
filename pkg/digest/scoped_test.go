package digest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
)

func scopedChunks[A Algorithm](c *Controller[*provider.Single], chunks [][]byte) (Digest, error) {
	sc, err := InitScoped[A](c)
	if err != nil {
		return Digest{}, err
	}
	for _, chunk := range chunks {
		if err := sc.Update(chunk); err != nil {
			return Digest{}, err
		}
	}
	return sc.Finalize()
}

var scopedAlgorithms = []struct {
	algo hace.Algorithm
	run  func(*Controller[*provider.Single], [][]byte) (Digest, error)
}{
	{hace.AlgorithmSHA1, scopedChunks[SHA1]},
	{hace.AlgorithmSHA224, scopedChunks[SHA224]},
	{hace.AlgorithmSHA256, scopedChunks[SHA256]},
	{hace.AlgorithmSHA384, scopedChunks[SHA384]},
	{hace.AlgorithmSHA512, scopedChunks[SHA512]},
	{hace.AlgorithmSHA512_224, scopedChunks[SHA512_224]},
	{hace.AlgorithmSHA512_256, scopedChunks[SHA512_256]},
}

func TestScoped_KnownVectors(t *testing.T) {
	c, _ := newSingle(t)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{
			"448bit",
			"abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq",
			"248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Sum[SHA256](c, []byte(tt.msg))
			if err != nil {
				t.Fatalf("Sum() error = %v", err)
			}
			if got := d.String(); got != tt.want {
				t.Errorf("Sum() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScoped_ChunkingIsTransparent(t *testing.T) {
	lengths := []int{0, 1, 55, 56, 63, 64, 65, 111, 112, 127, 128, 129, 255, 256, 1000, 1024, 1025, 3000}
	partitions := [][]int{
		{1 << 20},
		{1},
		{7},
		{64},
		{127, 1},
		{1023},
		{1025},
		{3, 200, 61},
	}

	for _, alg := range scopedAlgorithms {
		t.Run(alg.algo.String(), func(t *testing.T) {
			c, _ := newSingle(t)
			for _, n := range lengths {
				msg := message(n)
				want := referenceSum(alg.algo, msg)
				for _, sizes := range partitions {
					d, err := alg.run(c, split(msg, sizes))
					if err != nil {
						t.Fatalf("len %d sizes %v: error = %v", n, sizes, err)
					}
					if !bytes.Equal(d.Bytes(), want) {
						t.Errorf("len %d sizes %v: digest = %x, want %x", n, sizes, d.Bytes(), want)
					}
				}
			}
		})
	}
}

func TestScoped_EmptyUpdates(t *testing.T) {
	c, _ := newSingle(t)
	sc, err := InitScoped[SHA256](c)
	if err != nil {
		t.Fatalf("InitScoped() error = %v", err)
	}
	for _, chunk := range [][]byte{nil, []byte("a"), {}, []byte("bc"), nil} {
		if err := sc.Update(chunk); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	d, err := sc.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got := d.String(); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("Finalize() = %s", got)
	}
}

func TestScoped_ConsumedAfterFinalize(t *testing.T) {
	c, _ := newSingle(t)
	sc, err := InitScoped[SHA256](c)
	if err != nil {
		t.Fatalf("InitScoped() error = %v", err)
	}
	if _, err := sc.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if err := sc.Update([]byte("x")); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Update() after Finalize() error = %v, want ErrContextConsumed", err)
	}
	if _, err := sc.Finalize(); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Finalize() twice error = %v, want ErrContextConsumed", err)
	}
	if err := sc.Cancel(); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Cancel() after Finalize() error = %v, want ErrContextConsumed", err)
	}
}

func TestScoped_SupersededByNewBorrow(t *testing.T) {
	c, _ := newSingle(t)
	first, err := InitScoped[SHA256](c)
	if err != nil {
		t.Fatalf("InitScoped() error = %v", err)
	}
	second, err := InitScoped[SHA384](c)
	if err != nil {
		t.Fatalf("InitScoped() error = %v", err)
	}

	if err := first.Update([]byte("a")); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Update() on superseded context error = %v, want ErrContextConsumed", err)
	}
	if err := second.Update([]byte("b")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	d, err := second.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if want := referenceSum(hace.AlgorithmSHA384, []byte("b")); !bytes.Equal(d.Bytes(), want) {
		t.Errorf("Finalize() = %x, want %x", d.Bytes(), want)
	}
}

func TestScoped_InvalidatedByMove(t *testing.T) {
	c, _ := newSingle(t)
	sc, err := InitScoped[SHA256](c)
	if err != nil {
		t.Fatalf("InitScoped() error = %v", err)
	}

	owned, err := Init[SHA256](c)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := sc.Update([]byte("a")); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Update() after move error = %v, want ErrContextConsumed", err)
	}
	if _, err := InitScoped[SHA256](c); !errors.Is(err, ErrControllerMoved) {
		t.Errorf("InitScoped() on moved controller error = %v, want ErrControllerMoved", err)
	}

	c2, err := owned.Cancel()
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := sc.Update([]byte("a")); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Update() with a returned controller error = %v, want ErrContextConsumed", err)
	}
	if _, err := Sum[SHA256](c2, nil); err != nil {
		t.Errorf("Sum() on returned controller error = %v", err)
	}
}

func TestScoped_FailedOperationPoisons(t *testing.T) {
	e := newEngine(t)
	c, err := NewSingleController(e, ControllerConfig{MaxPolls: 10})
	if err != nil {
		t.Fatalf("NewSingleController() error = %v", err)
	}
	sc, err := InitScoped[SHA256](c)
	if err != nil {
		t.Fatalf("InitScoped() error = %v", err)
	}
	if err := sc.Update([]byte("abc")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	e.SetStuck(true)
	if _, err := sc.Finalize(); !errors.Is(err, ErrHardwareTimeout) {
		t.Fatalf("Finalize() on stuck engine error = %v, want ErrHardwareTimeout", err)
	}
	e.SetStuck(false)

	if _, err := sc.Finalize(); !errors.Is(err, ErrContextPoisoned) {
		t.Errorf("retried Finalize() error = %v, want ErrContextPoisoned", err)
	}
	if err := sc.Update([]byte("d")); !errors.Is(err, ErrContextPoisoned) {
		t.Errorf("Update() on poisoned context error = %v, want ErrContextPoisoned", err)
	}
	if err := sc.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := Sum[SHA256](c, []byte("abc")); err != nil {
		t.Errorf("Sum() after Cancel() error = %v", err)
	}
}

func TestScoped_RunCancelsUnfinished(t *testing.T) {
	c, e := newSingle(t)

	var kept *ScopedContext[SHA256, *provider.Single]
	err := Scoped(c, func(sc *ScopedContext[SHA256, *provider.Single]) error {
		kept = sc
		return sc.Update([]byte("abc"))
	})
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if err := kept.Update(nil); !errors.Is(err, ErrContextConsumed) {
		t.Errorf("Update() after Scoped() returned error = %v, want ErrContextConsumed", err)
	}
	if ctx := e.HardwareContext(); ctx.BufferCount != 0 || ctx.Method != 0 {
		t.Errorf("context not cleaned up: bufcnt=%d method=0x%x", ctx.BufferCount, ctx.Method)
	}

	var d Digest
	err = Scoped(c, func(sc *ScopedContext[SHA256, *provider.Single]) error {
		if err := sc.Update([]byte("abc")); err != nil {
			return err
		}
		var err error
		d, err = sc.Finalize()
		return err
	})
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if got := d.String(); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("digest = %s", got)
	}
}

func TestScoped_FinalizeCleansUp(t *testing.T) {
	c, e := newSingle(t)
	if _, err := Sum[SHA512](c, message(300)); err != nil {
		t.Fatalf("Sum() error = %v", err)
	}
	ctx := e.HardwareContext()
	if ctx.BufferCount != 0 || ctx.DigestCount != [2]uint64{} {
		t.Errorf("counters not cleared: %d %v", ctx.BufferCount, ctx.DigestCount)
	}
	if ctx.Digest != [hace.MaxDigestSize]byte{} || ctx.Buffer != [hace.BufferSize]byte{} {
		t.Error("accumulator or buffer not cleared")
	}
	if got := e.ReadReg(hace.RegCommand); got != 0 {
		t.Errorf("command register = 0x%x, want 0", got)
	}
}
