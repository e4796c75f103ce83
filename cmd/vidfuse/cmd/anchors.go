package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidfuse/vidfuse/internal/output"
	"github.com/vidfuse/vidfuse/internal/search"
)

func newAnchorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchors",
		Short: "Manage dynamic routing anchors",
		Long: `Anchors are per-modality prototype embeddings that the dynamic
router compares queries against. They are bound to the embedding model
that produced them and must be rebuilt after a model change.`,
	}

	cmd.AddCommand(newAnchorsInitCmd())
	cmd.AddCommand(newAnchorsStatusCmd())
	return cmd
}

func newAnchorsInitCmd() *cobra.Command {
	var (
		force   bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Build and persist the anchor set",
		Long: `Embed the modality prototype phrases with the active embedding
model and persist the resulting anchor set.

Examples:
  vidfuse anchors init
  vidfuse anchors init --force   # rebuild even if anchors exist`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnchorsInit(cmd.Context(), cmd, force, offline)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild anchors even if they already exist")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip embedding service)")
	return cmd
}

func runAnchorsInit(ctx context.Context, cmd *cobra.Command, force, offline bool) error {
	app, err := buildApp(ctx, ".", appOptions{offline: offline, noMetrics: true})
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout())
	anchors := app.engine.Anchors()

	if anchors.Initialized() && !force {
		out.Successf("Anchors already initialized for model %s (use --force to rebuild)", anchors.Model())
		return nil
	}

	out.Statusf("⚙️", "Building anchors with model %s", app.embedder.ModelName())
	if force {
		err = anchors.Reinit(ctx, app.embedder)
	} else {
		err = anchors.Init(ctx, app.embedder)
	}
	if err != nil {
		return fmt.Errorf("build anchors: %w", err)
	}

	path := app.cfg.AnchorsPath()
	if err := search.SaveAnchors(path, anchors); err != nil {
		return fmt.Errorf("save anchors: %w", err)
	}
	out.Successf("Anchors saved to %s", path)
	return nil
}

func newAnchorsStatusCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show anchor set status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd.Context(), ".", appOptions{offline: offline, noMetrics: true})
			if err != nil {
				return err
			}
			defer app.Close()

			out := output.New(cmd.OutOrStdout())
			anchors := app.engine.Anchors()
			if !anchors.Initialized() {
				out.Warning("Anchors not initialized. Run 'vidfuse anchors init'.")
				return nil
			}
			out.Successf("Anchors ready (model %s, path %s)", anchors.Model(), app.cfg.AnchorsPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip embedding service)")
	return cmd
}
