package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/enesunal-m/livevoice/livevoicetest"
)

func newMockCmd(root *rootOptions) *cobra.Command {
	var (
		addr  string
		key   string
		echo  bool
		setup string
	)
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local mock live service",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseSetupMode(setup)
			if err != nil {
				return err
			}
			logger := root.logger()
			hopts := []livevoicetest.Option{livevoicetest.WithSetupMode(mode), livevoicetest.WithLogger(logger)}
			if key != "" {
				hopts = append(hopts, livevoicetest.WithAuthKey(key))
			}
			if echo {
				hopts = append(hopts, livevoicetest.WithEcho())
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           livevoicetest.NewHandler(hopts...),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("mock_listening", map[string]any{"addr": addr, "echo": echo, "setup": setup})
			fmt.Fprintf(cmd.OutOrStdout(), "mock live service on ws://%s/\n", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	f.StringVar(&key, "key", "", "require this auth key")
	f.BoolVar(&echo, "echo", true, "echo text and audio turns back")
	f.StringVar(&setup, "setup", "ack", "setup handling: ack, ignore or reject")
	return cmd
}

func parseSetupMode(s string) (livevoicetest.SetupMode, error) {
	switch s {
	case "ack", "":
		return livevoicetest.SetupAck, nil
	case "ignore":
		return livevoicetest.SetupIgnore, nil
	case "reject":
		return livevoicetest.SetupReject, nil
	}
	return 0, fmt.Errorf("unknown setup mode %q", s)
}
