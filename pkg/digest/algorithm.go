package digest

import "github.com/backkem/hace/pkg/hace"

// Algorithm is implemented by the marker types that select a hash algorithm
// at compile time.
type Algorithm interface {
	Kind() hace.Algorithm
}

// Algorithm markers.
type (
	SHA1       struct{}
	SHA224     struct{}
	SHA256     struct{}
	SHA384     struct{}
	SHA512     struct{}
	SHA512_224 struct{}
	SHA512_256 struct{}
)

func (SHA1) Kind() hace.Algorithm       { return hace.AlgorithmSHA1 }
func (SHA224) Kind() hace.Algorithm     { return hace.AlgorithmSHA224 }
func (SHA256) Kind() hace.Algorithm     { return hace.AlgorithmSHA256 }
func (SHA384) Kind() hace.Algorithm     { return hace.AlgorithmSHA384 }
func (SHA512) Kind() hace.Algorithm     { return hace.AlgorithmSHA512 }
func (SHA512_224) Kind() hace.Algorithm { return hace.AlgorithmSHA512_224 }
func (SHA512_256) Kind() hace.Algorithm { return hace.AlgorithmSHA512_256 }

// KindOf returns the hace algorithm selected by marker A.
func KindOf[A Algorithm]() hace.Algorithm {
	var a A
	return a.Kind()
}
