// hace-digestd serves hash engine digest sessions over UDP.
//
// The daemon owns one engine and multiplexes up to eight concurrent digest
// or HMAC sessions onto it. Clients speak the frame protocol in pkg/ipc.
//
// Usage:
//
//	hace-digestd serve [--listen :5453] [--max-sessions 8]
//	hace-digestd sum   [-a sha256] [--server host:port] [file...]
//	hace-digestd hmac  -k <hex key> [-a sha256] [--server host:port] [file...]
//	hace-digestd selftest
//
// Settings are read from flags, HACE_* environment variables and
// hace-digestd.yaml in the working directory or /etc/hace, in that order
// of precedence. Without --server, sum and hmac run an in-process daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
