package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/vidfuse/vidfuse/internal/output"
)

// corpusStatus is the machine-readable status shape.
type corpusStatus struct {
	Videos       int    `json:"videos"`
	Segments     int    `json:"segments"`
	Backend      string `json:"backend"`
	Dimensions   int    `json:"dimensions"`
	Model        string `json:"model"`
	EmbedderUp   bool   `json:"embedder_up"`
	AnchorsReady bool   `json:"anchors_ready"`
	DataDir      string `json:"data_dir"`
}

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus and stack status",
		Long: `Show the indexed corpus size, active backend, embedding model,
and dynamic routing readiness.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip embedding service)")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput, offline bool) error {
	app, err := buildApp(ctx, ".", appOptions{offline: offline, noMetrics: true})
	if err != nil {
		return err
	}
	defer app.Close()

	segments, err := app.metadata.CountSegments(ctx)
	if err != nil {
		return err
	}
	videos, err := app.metadata.CountVideos(ctx)
	if err != nil {
		return err
	}

	status := corpusStatus{
		Videos:       videos,
		Segments:     segments,
		Backend:      app.backend.Name(),
		Dimensions:   app.backend.Dimensions(),
		Model:        app.embedder.ModelName(),
		EmbedderUp:   app.embedder.Available(ctx),
		AnchorsReady: app.engine.Anchors().Initialized(),
		DataDir:      app.cfg.Storage.DataDir,
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📊", "Corpus: %d videos, %d segments", status.Videos, status.Segments)
	out.Statusf("🗄️", "Backend: %s (%d dimensions)", status.Backend, status.Dimensions)
	out.Statusf("🧠", "Model: %s", status.Model)
	if status.EmbedderUp {
		out.Success("Embedder reachable")
	} else {
		out.Warning("Embedder unreachable (searches will fail to embed queries)")
	}
	if status.AnchorsReady {
		out.Success("Dynamic routing anchors ready")
	} else {
		out.Warning("Anchors not initialized. Run 'vidfuse anchors init' for dynamic routing.")
	}
	return nil
}
