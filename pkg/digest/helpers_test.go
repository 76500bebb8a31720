package digest

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"testing"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/provider"
)

func newEngine(t *testing.T) *hace.SoftEngine {
	t.Helper()
	e, err := hace.NewSoftEngine(hace.SoftEngineConfig{})
	if err != nil {
		t.Fatalf("NewSoftEngine() error = %v", err)
	}
	return e
}

func newSingle(t *testing.T) (*Controller[*provider.Single], *hace.SoftEngine) {
	t.Helper()
	e := newEngine(t)
	c, err := NewSingleController(e, ControllerConfig{})
	if err != nil {
		t.Fatalf("NewSingleController() error = %v", err)
	}
	return c, e
}

func newMulti(t *testing.T, config ControllerConfig) (*Controller[*provider.Multi], *provider.Multi, *hace.SoftEngine) {
	t.Helper()
	e := newEngine(t)
	m, err := provider.NewMulti(e.HardwareContext(), provider.MultiConfig{})
	if err != nil {
		t.Fatalf("NewMulti() error = %v", err)
	}
	c, err := NewController(e, m, config)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c, m, e
}

// reference returns the standard library hash for an algorithm.
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
	case hace.AlgorithmSHA512_256:
		return sha512.New512_256
	default:
		return nil
	}
}

func referenceSum(algo hace.Algorithm, data []byte) []byte {
	h := reference(algo)()
	h.Write(data)
	return h.Sum(nil)
}

// message returns n deterministic bytes.
func message(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i>>8)
	}
	return b
}

// split cuts data into chunks of the given sizes, cycling through sizes.
func split(data []byte, sizes []int) [][]byte {
	var out [][]byte
	for i := 0; len(data) > 0; i++ {
		n := min(sizes[i%len(sizes)], len(data))
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
