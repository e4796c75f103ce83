// Package search implements multi-modal fusion search over video segments.
// Per-modality nearest-neighbor results are normalized onto one score scale
// and merged into a single ranking under a selectable fusion policy, with
// optional dynamic per-query modality weighting.
package search

import (
	"context"
	"time"

	"github.com/vidfuse/vidfuse/internal/store"
)

// FusionMethod selects how per-modality results are combined.
type FusionMethod string

const (
	// MethodWeighted fuses by weighted average of normalized scores.
	MethodWeighted FusionMethod = "weighted"
	// MethodRRF fuses by reciprocal rank.
	MethodRRF FusionMethod = "rrf"
)

// ParseFusionMethod validates a fusion method name, defaulting to weighted.
func ParseFusionMethod(s string) (FusionMethod, bool) {
	switch FusionMethod(s) {
	case MethodWeighted, "":
		return MethodWeighted, true
	case MethodRRF:
		return MethodRRF, true
	}
	return "", false
}

// Weights maps each modality to a non-negative fusion weight. The engine
// renormalizes over only the modalities actually present per identity, so
// weights need not sum to 1.
type Weights map[store.Modality]float64

// DefaultStaticWeights returns the default static weight vector. Visual
// carries most of the signal for typical content queries.
func DefaultStaticWeights() Weights {
	return Weights{
		store.ModalityVisual:        0.8,
		store.ModalityAudio:         0.1,
		store.ModalityTranscription: 0.05,
	}
}

// Clone returns an independent copy of the weights.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for m, v := range w {
		out[m] = v
	}
	return out
}

// NormalizedMatch is a backend match with its raw value replaced by a
// canonical score in [0,1], higher is better. Owned by the query that
// produced it; never cached.
type NormalizedMatch struct {
	VideoID   string
	SegmentID int
	Modality  store.Modality
	Score     float64
	Meta      store.SegmentMeta
}

// Key returns the identity string for deduplication and fusion.
func (m *NormalizedMatch) Key() string {
	return store.SegmentKey(m.VideoID, m.SegmentID)
}

// FusedResult is one identity in the final ranking.
type FusedResult struct {
	// VideoID and SegmentID identify the segment.
	VideoID   string
	SegmentID int

	// FusionScore is the combined score in [0,1].
	FusionScore float64

	// Confidence is the interpretable percentage in [0,100].
	Confidence float64

	// ModalityScores holds the normalized score per modality that actually
	// matched this identity. Absent modalities are absent, never zero.
	ModalityScores map[store.Modality]float64

	// ModalityRanks holds 1-indexed per-modality ranks. Populated only for
	// rank-based fusion.
	ModalityRanks map[store.Modality]int

	// Meta is the echoed segment metadata.
	Meta store.SegmentMeta
}

// Key returns the identity string.
func (r *FusedResult) Key() string {
	return store.SegmentKey(r.VideoID, r.SegmentID)
}

// bestModalityScore returns the highest single-modality score, used as the
// first tie-break after fusion score.
func (r *FusedResult) bestModalityScore() float64 {
	best := 0.0
	for _, s := range r.ModalityScores {
		if s > best {
			best = s
		}
	}
	return best
}

// Options configures one search call.
type Options struct {
	// Modalities restricts the search to a subset of modality spaces.
	// Empty means all three.
	Modalities []store.Modality

	// Limit is the maximum number of fused results (default: 10, max: 100).
	Limit int

	// Method selects the fusion policy (default: weighted).
	Method FusionMethod

	// Weights overrides the engine's static weights. Ignored when Dynamic.
	Weights Weights

	// Dynamic derives per-query weights from anchor geometry instead of
	// static configuration. Requires initialized anchors.
	Dynamic bool

	// Temperature is the softmax temperature for dynamic routing.
	// Zero means the engine default.
	Temperature float64

	// Vector supplies a precomputed query embedding, skipping text embedding.
	Vector []float32
}

// Response is the outcome of one search call.
type Response struct {
	// Results is the fused ranking, best first, truncated to the limit.
	Results []*FusedResult

	// Method is the fusion policy that was applied.
	Method FusionMethod

	// WeightsUsed are the effective weights (static, caller, or routed).
	// Nil for rank-based fusion.
	WeightsUsed Weights

	// Similarities are the query-anchor cosine similarities when dynamic
	// routing was used.
	Similarities map[store.Modality]float64

	// Degraded is true when at least one requested modality was excluded
	// due to a retrieval failure.
	Degraded bool

	// ExcludedModalities lists the modalities excluded from fusion.
	ExcludedModalities []store.Modality

	// Elapsed is the total search duration.
	Elapsed time.Duration
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit is the default number of results (default: 10).
	DefaultLimit int

	// MaxLimit is the maximum allowed results (default: 100).
	MaxLimit int

	// RRFConstant is the reciprocal-rank smoothing constant K (default: 60).
	RRFConstant int

	// CandidateMultiplier scales the per-modality retrieval depth relative
	// to the requested limit, so fusion sees well past the final cutoff
	// (default: 5).
	CandidateMultiplier int

	// RetrievalTimeout bounds each per-modality backend call (default: 5s).
	RetrievalTimeout time.Duration

	// DefaultWeights are the static weights used when the caller supplies
	// none and dynamic routing is off.
	DefaultWeights Weights

	// Temperature is the default softmax temperature for dynamic routing.
	Temperature float64
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:        10,
		MaxLimit:            100,
		RRFConstant:         DefaultRRFConstant,
		CandidateMultiplier: 5,
		RetrievalTimeout:    5 * time.Second,
		DefaultWeights:      DefaultStaticWeights(),
		Temperature:         DefaultTemperature,
	}
}

// Searcher is the caller-facing search interface.
type Searcher interface {
	// Search runs a fused multi-modal query.
	Search(ctx context.Context, query string, opts Options) (*Response, error)

	// ComputeDynamicWeights exposes the router output for observability
	// independent of a full search.
	ComputeDynamicWeights(query []float32, temperature float64) (Weights, map[store.Modality]float64, error)

	// Close releases engine resources.
	Close() error
}
