package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/meetscribe/internal/config"
	"github.com/GriffinCanCode/meetscribe/internal/server"
)

const (
	serveReadTimeout = 10 * time.Second
	// POST /api/session/stop answers only after the pipeline drains.
	serveWriteTimeout = 2 * time.Minute
	shutdownTimeout   = 5 * time.Second
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket control API",
		Long: `Serve session control over HTTP, stream events to WebSocket clients
on /ws and expose Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	hub := server.NewHub()
	a, err := newApp(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv := server.New(a.ctrl, hub, a.registry)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  serveReadTimeout,
		WriteTimeout: serveWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("meetscribe server starting", "http", cfg.HTTP.Addr, "provider", cfg.Backend.Provider, "store", cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutting down...")
	// A meeting in progress is stopped and saved before the listener closes.
	a.ctrl.Stop()
	<-a.ctrl.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}
