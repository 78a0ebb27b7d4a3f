// Command live-token-issuer hands live-session credentials to browser and
// mobile clients. Callers may be required to present an OIDC ID token or a
// JWT access token. Configuration comes from an optional TOML file and the
// environment (LIVEVOICE_ENDPOINT, LIVEVOICE_AUTH_KEY, LIVEVOICE_MODEL,
// OIDC_ISSUER, OIDC_AUDIENCE, CORS_ALLOWED_ORIGINS, ALLOW_ANONYMOUS, ADDR, ...).
// It refuses to start without OIDC unless anonymous access is enabled.
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

	"github.com/enesunal-m/livevoice"
	"github.com/enesunal-m/livevoice/internal/issuer"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile, addr string
	cmd := &cobra.Command{
		Use:           "live-token-issuer",
		Short:         "Serve live-session credentials to authenticated callers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := issuer.LoadConfig(cfgFile, os.Getenv)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config and ADDR)")
	return cmd
}

func serve(parent context.Context, cfg issuer.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := livevoice.NewLoggerFromEnv()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	verifier, err := issuer.NewVerifier(initCtx, cfg.OIDC)
	cancel()
	if err != nil {
		return err
	}
	if verifier == nil {
		logger.Warn("anonymous_access_enabled", map[string]any{"allowed_origins": cfg.CORS.AllowedOrigins})
	} else {
		logger.Info("oidc_enabled", map[string]any{"issuer": cfg.OIDC.Issuer, "audience": cfg.OIDC.Audience, "token_type": cfg.OIDC.TokenType})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           issuer.New(cfg, verifier, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("issuer_listening", map[string]any{"addr": cfg.Addr})

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
	logger.Info("issuer_stopped", nil)
	return nil
}
