package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/kdf"
	"github.com/backkem/hace/pkg/session"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

func newSelftestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check the engine against the Go hash implementations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return selftest(o.cfg, o.loggerFactory(cmd.ErrOrStderr()), cmd.OutOrStdout())
		},
	}
}

type selftestAlgorithm struct {
	algo hace.Algorithm
	ref  func() hash.Hash
	sum  func(m *session.Manager, data []byte) (digest.Digest, error)
	mac  func(m *session.Manager, key, data []byte) (digest.Digest, error)
}

var selftestAlgorithms = []selftestAlgorithm{
	{hace.AlgorithmSHA1, sha1.New, session.OneShot[digest.SHA1], session.HMACOneShot[digest.SHA1]},
	{hace.AlgorithmSHA224, sha256.New224, session.OneShot[digest.SHA224], session.HMACOneShot[digest.SHA224]},
	{hace.AlgorithmSHA256, sha256.New, session.OneShot[digest.SHA256], session.HMACOneShot[digest.SHA256]},
	{hace.AlgorithmSHA384, sha512.New384, session.OneShot[digest.SHA384], session.HMACOneShot[digest.SHA384]},
	{hace.AlgorithmSHA512, sha512.New, session.OneShot[digest.SHA512], session.HMACOneShot[digest.SHA512]},
	{hace.AlgorithmSHA512_224, sha512.New512_224, session.OneShot[digest.SHA512_224], session.HMACOneShot[digest.SHA512_224]},
	{hace.AlgorithmSHA512_256, sha512.New512_256, session.OneShot[digest.SHA512_256], session.HMACOneShot[digest.SHA512_256]},
}

// Lengths around the padding boundaries of both block sizes.
var selftestLengths = []int{0, 1, 55, 56, 63, 64, 111, 112, 127, 128, 129, 1000, 4099}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13 + 5)
	}
	return b
}

// selftest runs every check on a fresh engine and reports one line per
// check to w.
func selftest(cfg Config, lf logging.LoggerFactory, w io.Writer) error {
	engine, err := hace.NewSoftEngine(hace.SoftEngineConfig{
		CompletionPolls: cfg.CompletionPolls,
		LoggerFactory:   lf,
	})
	if err != nil {
		return err
	}
	m, err := session.New(engine, session.ManagerConfig{
		MaxSessions:   cfg.MaxSessions,
		MaxPolls:      cfg.MaxPolls,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}

	var failed, total int
	report := func(name string, err error) {
		total++
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", name, err)
			return
		}
		fmt.Fprintf(w, "ok    %s\n", name)
	}

	for _, a := range selftestAlgorithms {
		report(a.algo.String()+" digest", checkDigest(m, a))
		report(a.algo.String()+" hmac", checkHMAC(m, a))
	}
	report("interleaved sessions", checkInterleaved(m))
	report("HKDF-SHA256", checkHKDF(m))
	report("PBKDF2-HMAC-SHA256", checkPBKDF2(m))

	if m.ActiveCount() != 0 {
		failed++
		fmt.Fprintf(w, "FAIL  %d sessions left open\n", m.ActiveCount())
	}
	if failed > 0 {
		return fmt.Errorf("selftest: %d of %d checks failed", failed, total)
	}
	return nil
}

func refSum(newHash func() hash.Hash, data []byte) []byte {
	h := newHash()
	h.Write(data)
	return h.Sum(nil)
}

func refMAC(newHash func() hash.Hash, key, data []byte) []byte {
	h := hmac.New(newHash, key)
	h.Write(data)
	return h.Sum(nil)
}

func checkDigest(m *session.Manager, a selftestAlgorithm) error {
	for _, n := range selftestLengths {
		data := pattern(n)
		got, err := a.sum(m, data)
		if err != nil {
			return fmt.Errorf("len %d: %w", n, err)
		}
		if want := refSum(a.ref, data); !got.Equal(want) {
			return fmt.Errorf("len %d: got %x, want %x", n, got.Bytes(), want)
		}
	}
	return nil
}

func checkHMAC(m *session.Manager, a selftestAlgorithm) error {
	data := pattern(300)
	for _, keyLen := range []int{0, 20, 64, 128, 200} {
		key := pattern(keyLen)
		got, err := a.mac(m, key, data)
		if err != nil {
			return fmt.Errorf("key %d: %w", keyLen, err)
		}
		if want := refMAC(a.ref, key, data); !got.Equal(want) {
			return fmt.Errorf("key %d: got %x, want %x", keyLen, got.Bytes(), want)
		}
	}
	return nil
}

// checkInterleaved runs two sessions of different block sizes with
// alternating updates, which forces a context switch on every update.
func checkInterleaved(m *session.Manager) error {
	a, err := session.Init[digest.SHA256](m)
	if err != nil {
		return err
	}
	b, err := session.InitHMAC[digest.SHA512](m, []byte("selftest"))
	if err != nil {
		_ = session.Cancel(m, a)
		return err
	}

	msg := pattern(1000)
	for i := 0; i < len(msg); i += 100 {
		if err := a.Update(msg[i : i+100]); err != nil {
			return cancelBoth(m, a, b, err)
		}
		if err := b.Update(msg[i : i+100]); err != nil {
			return cancelBoth(m, a, b, err)
		}
	}

	sumA, _, err := session.Finalize(m, a)
	if err != nil {
		return cancelBoth(m, a, b, err)
	}
	sumB, _, err := session.Finalize(m, b)
	if err != nil {
		_ = session.Cancel(m, b)
		return err
	}
	if want := refSum(sha256.New, msg); !sumA.Equal(want) {
		return fmt.Errorf("SHA-256 session: got %x, want %x", sumA.Bytes(), want)
	}
	if want := refMAC(sha512.New, []byte("selftest"), msg); !sumB.Equal(want) {
		return fmt.Errorf("HMAC-SHA-512 session: got %x, want %x", sumB.Bytes(), want)
	}
	return nil
}

func cancelBoth(m *session.Manager, a *session.Digest[digest.SHA256], b *session.Digest[digest.SHA512], err error) error {
	_ = session.Cancel(m, a)
	_ = session.Cancel(m, b)
	return err
}

func checkHKDF(m *session.Manager) error {
	ikm, salt, info := pattern(22), pattern(13), []byte("hace selftest")
	got, err := kdf.HKDFSHA256(m, ikm, salt, info, 42)
	if err != nil {
		return err
	}
	want := make([]byte, 42)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), want); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("got %x, want %x", got, want)
	}
	return nil
}

func checkPBKDF2(m *session.Manager) error {
	password, salt := []byte("password"), []byte("salt")
	got, err := kdf.PBKDF2SHA256(m, password, salt, 64, 40)
	if err != nil {
		return err
	}
	if want := pbkdf2.Key(password, salt, 64, 40, sha256.New); !bytes.Equal(got, want) {
		return fmt.Errorf("got %x, want %x", got, want)
	}
	return nil
}
