package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	vferrors "github.com/vidfuse/vidfuse/internal/errors"
	"github.com/vidfuse/vidfuse/internal/output"
	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit       int
	method      string
	modalities  []string
	dynamic     bool
	temperature float64
	format      string // "text", "json"
	offline     bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the video corpus",
		Long: `Search the video corpus across visual, audio, and transcription
embedding spaces.

Per-modality results are fused into one confidence-ranked list using
weighted fusion (default) or reciprocal rank fusion.

Examples:
  vidfuse search "sunset over the ocean"
  vidfuse search "dog barking" --modality audio --limit 5
  vidfuse search "kubernetes tutorial" --method rrf
  vidfuse search "birthday party" --dynamic --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.method, "method", "m", "", "Fusion method: weighted, rrf")
	cmd.Flags().StringSliceVar(&opts.modalities, "modality", nil, "Restrict to modalities (repeatable: visual, audio, transcription)")
	cmd.Flags().BoolVar(&opts.dynamic, "dynamic", false, "Route per-query weights from anchor geometry")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "Softmax temperature for dynamic routing")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (skip embedding service)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if err := parseFormat(opts.format); err != nil {
		return err
	}

	app, err := buildApp(ctx, ".", appOptions{offline: opts.offline})
	if err != nil {
		return err
	}
	defer app.Close()

	searchOpts := search.Options{
		Limit:       opts.limit,
		Method:      search.FusionMethod(opts.method),
		Dynamic:     opts.dynamic,
		Temperature: opts.temperature,
	}
	for _, m := range opts.modalities {
		searchOpts.Modalities = append(searchOpts.Modalities, store.Modality(m))
	}

	resp, err := app.engine.Search(ctx, query, searchOpts)
	if err != nil {
		// JSON consumers get the structured error on stdout; the human
		// rendering still goes to stderr on exit.
		if opts.format == "json" {
			if data, jerr := vferrors.FormatJSON(err); jerr == nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			}
		}
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("🔍", "Results for: %q", query)
	out.Newline()
	out.Results(resp)
	return nil
}

// parseFormat rejects unknown output formats early.
func parseFormat(format string) error {
	switch format {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q (want text or json)", format)
}
