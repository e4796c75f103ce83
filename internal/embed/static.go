package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/vidfuse/vidfuse/internal/store"
)

// Static embedder constants.
const (
	// StaticDimensions is the embedding dimension for the static embedder.
	StaticDimensions = 256

	// staticSegmentSeconds is the synthetic segment length for offline video
	// embedding.
	staticSegmentSeconds = 6.0

	// staticMinSegments / staticMaxSegments bound the synthetic segment count
	// derived from the media URI.
	staticMinSegments = 3
	staticMaxSegments = 8
)

// StaticEmbedder generates embeddings using a hash-based approach.
// Works without external dependencies (no network, no remote service).
// Vectors are deterministic: the same text or media URI always maps to the
// same embedding, which makes the full pipeline testable offline. Semantic
// quality is intentionally sacrificed.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// EmbedText generates a deterministic embedding for a text query.
func (e *StaticEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("text must not be empty")
	}

	vector := make([]float32, StaticDimensions)
	for _, token := range strings.Fields(strings.ToLower(trimmed)) {
		idx := hashToIndex(token, StaticDimensions)
		vector[idx] += 1.0
		// Character trigrams give partial-word overlap a chance to match.
		for i := 0; i+3 <= len(token); i++ {
			vector[hashToIndex(token[i:i+3], StaticDimensions)] += 0.3
		}
	}

	return normalizeVector(vector), nil
}

// EmbedVideo generates deterministic synthetic segments for a video.
// Segment count and vectors derive from the media URI, so re-ingesting the
// same URI reproduces the same corpus.
func (e *StaticEmbedder) EmbedVideo(ctx context.Context, req VideoRequest) ([]SegmentEmbedding, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if req.MediaURI == "" {
		return nil, fmt.Errorf("media URI must not be empty")
	}

	segSeconds := req.SegmentSeconds
	if segSeconds <= 0 {
		segSeconds = staticSegmentSeconds
	}

	span := staticMaxSegments - staticMinSegments + 1
	count := staticMinSegments + int(hashToIndex(req.MediaURI, span))

	segments := make([]SegmentEmbedding, 0, count)
	for i := 0; i < count; i++ {
		vectors := make(map[store.Modality][]float32, len(store.AllModalities()))
		for _, m := range store.AllModalities() {
			seed := fmt.Sprintf("%s|%d|%s", req.MediaURI, i, m)
			vectors[m] = deterministicVector(seed, StaticDimensions)
		}
		segments = append(segments, SegmentEmbedding{
			SegmentID: i,
			StartTime: float64(i) * segSeconds,
			EndTime:   float64(i+1) * segSeconds,
			Vectors:   vectors,
		})
	}

	return segments, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash"
}

// Available always returns true unless closed.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder as closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// hashToIndex maps a string to an index in [0, buckets).
func hashToIndex(s string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(buckets))
}

// deterministicVector generates a unit vector seeded by a string. A simple
// splitmix-style generator keeps the output stable across runs and platforms.
func deterministicVector(seed string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	state := h.Sum64()

	vector := make([]float32, dims)
	for i := range vector {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		// Map to [-1, 1).
		vector[i] = float32(float64(z)/math.MaxUint64)*2 - 1
	}
	return normalizeVector(vector)
}
