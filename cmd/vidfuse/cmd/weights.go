package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vidfuse/vidfuse/internal/output"
)

func newWeightsCmd() *cobra.Command {
	var (
		temperature float64
		format      string
		offline     bool
	)

	cmd := &cobra.Command{
		Use:   "weights <query>",
		Short: "Show dynamic modality weights for a query",
		Long: `Compute the per-modality weights the dynamic router would use
for a query, without running a search.

Requires initialized anchors (run 'vidfuse anchors init' first).

Examples:
  vidfuse weights "a dog barking at the mailman"
  vidfuse weights "red sports car" --temperature 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeights(cmd.Context(), cmd, strings.Join(args, " "), temperature, format, offline)
		},
	}

	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Softmax temperature (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip embedding service)")

	return cmd
}

func runWeights(ctx context.Context, cmd *cobra.Command, query string, temperature float64, format string, offline bool) error {
	if err := parseFormat(format); err != nil {
		return err
	}

	app, err := buildApp(ctx, ".", appOptions{offline: offline})
	if err != nil {
		return err
	}
	defer app.Close()

	vector, err := app.embedder.EmbedText(ctx, query)
	if err != nil {
		return err
	}
	weights, similarities, err := app.engine.ComputeDynamicWeights(vector, temperature)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"query":               query,
			"weights":             weights,
			"anchor_similarities": similarities,
		})
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("⚖️", "Dynamic weights for: %q", query)
	out.Newline()
	out.Weights(weights, similarities)
	return nil
}
