package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vidfuse/vidfuse/internal/embed"
	"github.com/vidfuse/vidfuse/internal/output"
)

func newIngestCmd() *cobra.Command {
	var (
		videoID        string
		segmentSeconds float64
		offline        bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <media-uri>...",
		Short: "Embed and index videos",
		Long: `Segment each video, embed every segment in all modality spaces,
and index the results.

The video ID defaults to the file name without extension.

Examples:
  vidfuse ingest ./videos/beach-day.mp4
  vidfuse ingest s3://bucket/keynote.mp4 --id keynote-2026
  vidfuse ingest ./clips/*.mp4 --segment-seconds 4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if videoID != "" && len(args) > 1 {
				return fmt.Errorf("--id applies to a single video, got %d", len(args))
			}
			return runIngest(cmd.Context(), cmd, args, videoID, segmentSeconds, offline)
		},
	}

	cmd.Flags().StringVar(&videoID, "id", "", "Video ID (default: file name without extension)")
	cmd.Flags().Float64Var(&segmentSeconds, "segment-seconds", 0, "Target segment length in seconds (default from config)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip embedding service)")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, uris []string, videoID string, segmentSeconds float64, offline bool) error {
	app, err := buildApp(ctx, ".", appOptions{offline: offline, noMetrics: true})
	if err != nil {
		return err
	}
	defer app.Close()

	if segmentSeconds <= 0 {
		segmentSeconds = app.cfg.Embeddings.SegmentSeconds
	}

	out := output.New(cmd.OutOrStdout())
	total := 0
	for _, uri := range uris {
		id := videoID
		if id == "" {
			id = defaultVideoID(uri)
		}

		out.Statusf("🎞️", "Embedding %s as %q", uri, id)
		segments, err := app.embedder.EmbedVideo(ctx, embed.VideoRequest{
			VideoID:        id,
			MediaURI:       uri,
			SegmentSeconds: segmentSeconds,
		})
		if err != nil {
			return fmt.Errorf("embed %s: %w", uri, err)
		}
		if err := app.engine.Index(ctx, id, uri, segments); err != nil {
			return fmt.Errorf("index %s: %w", uri, err)
		}
		total += len(segments)
		out.Successf("Indexed %q (%d segments)", id, len(segments))
	}

	if len(uris) > 1 {
		out.Successf("Ingested %d videos, %d segments total", len(uris), total)
	}
	return nil
}

// defaultVideoID derives an ID from the media URI's base name.
func defaultVideoID(uri string) string {
	base := filepath.Base(uri)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
