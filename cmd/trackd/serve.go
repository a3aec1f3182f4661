package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trackd/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trackd HTTP server",
	Long: `Start the HTTP API and block until SIGINT or SIGTERM.

Examples:
  # Serve with defaults (sqlite store, 127.0.0.1:9480)
  trackd serve

  # Serve with an explicit config file
  trackd serve --config ./config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv, err := httpapi.NewServer(a.registry.Coordinator(), a.logger.Underlying(), &httpapi.Config{
		Host: a.config.Server.Host,
		Port: a.config.Server.Port,
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	a.logger.Info(ctx, "trackd started",
		zap.String("host", a.config.Server.Host),
		zap.Int("port", a.config.Server.Port),
		zap.String("storage", a.config.Storage.Driver),
	)

	select {
	case sig := <-sigCh:
		a.logger.Info(ctx, "received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
