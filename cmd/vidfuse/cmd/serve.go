package cmd

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

	"github.com/vidfuse/vidfuse/internal/api"
	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/logging"
	"github.com/vidfuse/vidfuse/internal/output"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		host    string
		port    int
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Start the HTTP API server.

Endpoints:
  POST /api/v1/search    fused multi-modal search
  POST /api/v1/weights   dynamic weight routing
  POST /api/v1/videos    ingest a video
  GET  /api/v1/videos    list indexed videos
  GET  /api/v1/status    corpus status
  GET  /health           liveness probe

Configuration edits to .vidfuse.yaml or the user config are picked up
without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, host, port, offline)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port (default from config)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip embedding service)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, host string, port int, offline bool) error {
	logCfg := logging.DefaultConfig()
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	app, err := buildAppWithConfig(ctx, cfg, appOptions{offline: offline})
	if err != nil {
		return err
	}
	defer app.Close()

	srvOpts := []api.Option{api.WithLogger(slog.Default())}
	if app.metrics != nil {
		srvOpts = append(srvOpts, api.WithMetrics(app.metrics))
	}
	srv := api.NewServer(app.engine, app.embedder, app.metadata, cfg, srvOpts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot reload: search tunables follow config edits while the server runs.
	watcher, err := config.NewWatcher(".", func(updated *config.Config) {
		app.engine.SetConfig(engineConfig(updated))
	}, slog.Default())
	if err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
	} else {
		go watcher.Start(ctx)
		defer watcher.Close()
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("🚀", "Serving HTTP API on %s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	out.Status("⏹", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
