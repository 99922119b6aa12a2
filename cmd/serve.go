package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/lending/internal/handlers"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lending client as a local JSON API",
		Long: `Starts a local HTTP API on top of the signed-in session.

The API exposes the catalog, eligibility verdicts, request submission and
the request, loan and penalty history. Prometheus metrics are served on
/metrics.`,
		Example: `  # Serve on the configured address (default :8888)
  lending serve

  # Serve on a custom address
  lending serve --addr 127.0.0.1:3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.ServeAddr
			}

			if err := a.restoreSession(); err != nil {
				slog.Warn("Serving without a session", "err", err)
			} else if err := a.handleAuth(a.aggregator.Refresh(cmd.Context())); err != nil {
				slog.Warn("Initial refresh failed", "err", err)
			}

			handler := handlers.New(a.client, servedSession{a}, a.aggregator, a.coordinator, a.registry)
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Lending API available", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8888", "Address to listen on")

	return cmd
}
