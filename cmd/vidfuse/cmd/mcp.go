package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/logging"
	mcpserver "github.com/vidfuse/vidfuse/internal/mcp"
	"github.com/vidfuse/vidfuse/internal/preflight"
)

type mcpOptions struct {
	offline bool
}

func newMCPCmd() *cobra.Command {
	var opts mcpOptions

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search tools over MCP (stdio)",
		Long: `Start the MCP server on stdio for AI assistants.

The protocol owns stdout, so all diagnostics go to the log file.
Use 'vidfuse status' in another terminal for corpus state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (skip embedding service)")
	return cmd
}

func runMCP(ctx context.Context, opts mcpOptions) error {
	// Stdout carries JSON-RPC exclusively from here on. Logging goes to the
	// MCP log file, never to stdout.
	cleanup, err := logging.SetupMCPMode()
	if err == nil {
		defer cleanup()
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	// Stdout is reserved, so preflight runs silently; failures land in the
	// log and 'vidfuse doctor' explains them.
	if preflight.NeedsCheck(cfg.Storage.DataDir) {
		checker := preflight.New(
			preflight.WithOffline(opts.offline),
			preflight.WithOutput(io.Discard),
		)
		results := checker.RunAll(ctx, cfg.Storage.DataDir, cfg.Embeddings.ServiceHost)
		if checker.HasCriticalFailures(results) {
			slog.Error("system check failed, run 'vidfuse doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(cfg.Storage.DataDir); err != nil {
			slog.Warn("failed to record preflight marker", "error", err)
		}
	}

	app, err := buildAppWithConfig(ctx, cfg, appOptions{offline: opts.offline})
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := mcpserver.NewServer(app.engine, app.metadata, app.embedder, app.cfg)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	if app.metrics != nil {
		srv.SetMetrics(app.metrics)
	}
	if err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("failed to register video resources", "error", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx, "stdio")
}
