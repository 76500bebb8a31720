package main

import (
	"fmt"

	"github.com/backkem/hace/pkg/digest"
	"github.com/backkem/hace/pkg/hace"
	"github.com/backkem/hace/pkg/ipc"
	"github.com/backkem/hace/pkg/provider"
	"github.com/backkem/hace/pkg/transport"
	"github.com/spf13/cobra"
)

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve digest sessions over UDP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := newDaemon(o.cfg, o.loggerFactory(cmd.ErrOrStderr()), nil)
			if err != nil {
				return err
			}
			if err := d.start(); err != nil {
				return err
			}
			<-cmd.Context().Done()
			return d.stop()
		},
	}
	f := cmd.Flags()
	f.String("listen", fmt.Sprintf(":%d", transport.DefaultPort), "UDP listen address")
	f.Int("max-sessions", provider.MaxSessions, "Concurrent session limit")
	f.Int("max-transfer", ipc.DefaultMaxTransfer, "Largest update accepted per request")
	f.Int("max-polls", digest.DefaultMaxPolls, "Status polls before an engine command times out")
	f.Int("completion-polls", hace.DefaultCompletionPolls, "Status reads the engine model takes per command")
	return cmd
}
