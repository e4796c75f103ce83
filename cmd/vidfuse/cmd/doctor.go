package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run system checks",
		Long: `Run preflight system checks: disk space, memory, write
permissions, file descriptor limits, and embedding service reachability.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, verbose, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip network-dependent checks")
	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, verbose, offline bool) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, cfg.Storage.DataDir, cfg.Embeddings.ServiceHost)
	checker.PrintResults(results)

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	if err := preflight.MarkPassed(cfg.Storage.DataDir); err != nil {
		return err
	}
	return nil
}
