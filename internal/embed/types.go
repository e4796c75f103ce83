// Package embed generates multi-modal embeddings for video segments and text
// queries. The service embedder talks to a remote embedding API; the static
// embedder provides deterministic offline vectors for tests and air-gapped use.
package embed

import (
	"context"
	"math"
	"time"

	"github.com/vidfuse/vidfuse/internal/store"
)

// Common embedding constants
const (
	// DefaultDimensions is the embedding dimension of the default video
	// embedding model. All modalities share one vector space.
	DefaultDimensions = 512

	// DefaultSegmentSeconds is the default segment length for video embedding.
	DefaultSegmentSeconds = 6.0

	// DefaultWarmTimeout is the timeout for text queries when the service is warm.
	DefaultWarmTimeout = 30 * time.Second

	// DefaultVideoTimeout is the timeout for whole-video embedding jobs, which
	// scale with video length rather than query size.
	DefaultVideoTimeout = 10 * time.Minute

	// ServiceConnectTimeout bounds the initial health check.
	ServiceConnectTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// VideoRequest describes one video to embed.
type VideoRequest struct {
	// VideoID is the caller-assigned identity for the video.
	VideoID string

	// MediaURI locates the video (file path, s3://, https://).
	MediaURI string

	// SegmentSeconds is the target segment length. Zero means the service default.
	SegmentSeconds float64
}

// SegmentEmbedding is the embedding output for one video segment: up to one
// vector per modality. A modality may be absent (e.g. no speech to transcribe).
type SegmentEmbedding struct {
	SegmentID int
	StartTime float64
	EndTime   float64
	Vectors   map[store.Modality][]float32
}

// Embedder generates vector embeddings for text queries and videos.
type Embedder interface {
	// EmbedText generates the query embedding for a text string. The vector
	// lives in the shared space and is searched against every modality index.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedVideo segments a video and generates per-segment, per-modality
	// embeddings. Segments are returned in temporal order.
	EmbedVideo(ctx context.Context, req VideoRequest) ([]SegmentEmbedding, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
