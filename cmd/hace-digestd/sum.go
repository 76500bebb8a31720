package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/ipc"
	"github.com/backkem/hace/pkg/transport"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

// readChunk is how much of an input is read before it is sent as updates.
const readChunk = 64 * 1024

// newSumCmd builds "sum", or "hmac" when keyed is set. Output follows the
// sha256sum format.
func newSumCmd(o *options, keyed bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sum [file...]",
		Short: "Print digests of files, or of stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSum(cmd, o, keyed, args)
		},
	}
	if keyed {
		cmd.Use = "hmac [file...]"
		cmd.Short = "Print HMACs of files, or of stdin"
		cmd.Flags().StringP("key", "k", "", "HMAC key, hex encoded")
	}
	f := cmd.Flags()
	f.StringP("algorithm", "a", "sha256", "Hash algorithm")
	f.String("server", "", "Daemon address (default: in-process)")
	f.Duration("timeout", ipc.DefaultTimeout, "Per-request timeout")
	f.Int("max-transfer", ipc.DefaultMaxTransfer, "Update chunk size")
	return cmd
}

func runSum(cmd *cobra.Command, o *options, keyed bool, args []string) error {
	algo, err := parseAlgorithm(o.cfg.Algorithm)
	if err != nil {
		return err
	}
	var key []byte
	if keyed {
		if o.cfg.Key == "" {
			return fmt.Errorf("%w: hmac needs --key", errInvalidConfig)
		}
		if key, err = hex.DecodeString(o.cfg.Key); err != nil {
			return fmt.Errorf("%w: key: %v", errInvalidConfig, err)
		}
	}

	lf := o.loggerFactory(cmd.ErrOrStderr())
	c, closeClient, err := dial(o.cfg, lf)
	if err != nil {
		return err
	}
	defer closeClient()

	if len(args) == 0 {
		args = []string{"-"}
	}
	ctx := cmd.Context()
	var failed int
	for _, name := range args {
		sum, err := sumFile(ctx, c, algo, key, keyed, cmd.InOrStdin(), name)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%x  %s\n", sum, name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(args))
	}
	return nil
}

func sumFile(ctx context.Context, c *ipc.Client, algo hace.Algorithm, key []byte, keyed bool, stdin io.Reader, name string) ([]byte, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return sumReader(ctx, c, algo, key, keyed, r)
}

// sumReader streams r through one session. The session is cancelled if
// reading or any request fails.
func sumReader(ctx context.Context, c *ipc.Client, algo hace.Algorithm, key []byte, keyed bool, r io.Reader) ([]byte, error) {
	var (
		id  uint32
		err error
	)
	if keyed {
		id, err = c.InitHMAC(ctx, algo, key)
	} else {
		id, err = c.Init(ctx, algo)
	}
	if err != nil {
		return nil, err
	}

	buf := make([]byte, readChunk)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if err := c.Update(ctx, id, buf[:n]); err != nil {
				_ = c.Cancel(ctx, id)
				return nil, err
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			_ = c.Cancel(ctx, id)
			return nil, rerr
		}
	}
	return c.Finalize(ctx, algo, id)
}

// dial connects to cfg.Server, or starts an in-process daemon on a pipe
// when no server is configured.
func dial(cfg Config, lf logging.LoggerFactory) (*ipc.Client, func() error, error) {
	clientConfig := ipc.ClientConfig{
		Timeout:       cfg.Timeout,
		MaxTransfer:   cfg.MaxTransfer,
		LoggerFactory: lf,
	}

	if cfg.Server == "" {
		p := transport.NewPipe()
		d, err := newDaemon(cfg, lf, p.Endpoint(0))
		if err != nil {
			p.Close()
			return nil, nil, err
		}
		if err := d.start(); err != nil {
			p.Close()
			return nil, nil, err
		}
		clientConfig.Conn = p.Endpoint(1)
		c, err := ipc.NewClient(clientConfig)
		if err != nil {
			return nil, nil, errors.Join(err, d.stop(), p.Close())
		}
		return c, func() error { return errors.Join(d.stop(), p.Close()) }, nil
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", cfg.Server, err)
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, nil, err
	}
	clientConfig.Conn = conn
	clientConfig.Server = addr
	c, err := ipc.NewClient(clientConfig)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return c, conn.Close, nil
}
