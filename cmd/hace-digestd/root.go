package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	o := newOptions(viper.New())
	cmd := &cobra.Command{
		Use:           "hace-digestd",
		Short:         "Hash engine digest daemon",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
	}
	cmd.PersistentFlags().String("config", "", "Config file (default: hace-digestd.yaml)")
	cmd.PersistentFlags().String("log-level", defaultLogLevel, "Log level: disabled, error, warn, info, debug, trace")

	cmd.AddCommand(
		newServeCmd(o),
		newSumCmd(o, false),
		newSumCmd(o, true),
		newSelftestCmd(o),
	)
	return cmd
}
