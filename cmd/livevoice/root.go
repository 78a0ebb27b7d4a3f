package main

import (
	"github.com/spf13/cobra"

	"github.com/enesunal-m/livevoice"
)

type rootOptions struct {
	logLevel string
}

func (o *rootOptions) logger() *livevoice.Logger {
	if o.logLevel == "" {
		return livevoice.NewLoggerFromEnv()
	}
	return livevoice.NewLogger(livevoice.ParseLogLevel(o.logLevel))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "livevoice",
		Short:         "Realtime voice sessions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, error or off (default from LIVEVOICE_LOG_LEVEL)")
	cmd.AddCommand(newChatCmd(opts), newMockCmd(opts))
	return cmd
}
