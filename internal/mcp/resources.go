package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vidfuse/vidfuse/internal/store"
)

// RegisterResources registers indexed videos as MCP resources. This should
// be called after the server is created and before serving.
func (s *Server) RegisterResources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	videos, err := s.metadata.ListVideos(ctx)
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}

	for _, v := range videos {
		s.registerVideoResource(v)
	}

	s.logger.Info("registered resources", "count", len(videos))
	return nil
}

// registerVideoResource registers a single indexed video as an MCP resource.
// Reading it returns the video's segment timeline as JSON.
func (s *Server) registerVideoResource(v *store.VideoSummary) {
	uri := fmt.Sprintf("vidfuse://videos/%s", v.VideoID)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        v.VideoID,
			URI:         uri,
			Description: fmt.Sprintf("%s (%d segments, %.0fs)", v.MediaURI, v.SegmentCount, v.Duration),
			MIMEType:    MimeTypeForMedia(v.MediaURI),
		},
		s.makeVideoHandler(v.VideoID),
	)
}

// videoResource is the JSON body served for a video resource.
type videoResource struct {
	VideoID  string             `json:"video_id"`
	MediaURI string             `json:"media_uri"`
	Segments []videoSegmentInfo `json:"segments"`
}

type videoSegmentInfo struct {
	SegmentID int     `json:"segment_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// makeVideoHandler creates a read handler for one video's segment timeline.
func (s *Server) makeVideoHandler(videoID string) mcp.ResourceHandler {
	uri := fmt.Sprintf("vidfuse://videos/%s", videoID)
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		segments, err := s.metadata.SegmentsByVideo(ctx, videoID)
		if err != nil {
			return nil, MapError(err)
		}
		if len(segments) == 0 {
			return nil, NewInvalidParamsError(fmt.Sprintf("video '%s' not found", videoID))
		}

		body := videoResource{
			VideoID:  videoID,
			MediaURI: segments[0].MediaURI,
			Segments: make([]videoSegmentInfo, 0, len(segments)),
		}
		for _, seg := range segments {
			body.Segments = append(body.Segments, videoSegmentInfo{
				SegmentID: seg.SegmentID,
				StartTime: seg.StartTime,
				EndTime:   seg.EndTime,
			})
		}

		data, err := json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         "vidfuse://query_metrics",
			Description: "Query pattern telemetry for search tuning",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewInvalidParamsError("query metrics not available")
		}

		data, err := json.MarshalIndent(metrics.Snapshot(), "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "vidfuse://query_metrics",
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}
