package search

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/vidfuse/vidfuse/internal/embed"
	"github.com/vidfuse/vidfuse/internal/errors"
	"github.com/vidfuse/vidfuse/internal/store"
)

// DefaultTemperature is the default softmax temperature for dynamic weight
// routing. High on purpose: anchor similarities sit in a narrow band, and a
// low temperature would collapse nearly all weight onto one modality.
const DefaultTemperature = 10.0

// anchorTexts are the prototype phrases embedded once per modality. Query
// similarity against these decides how query intent distributes across the
// embedding spaces.
var anchorTexts = map[store.Modality]string{
	store.ModalityVisual:        "what things look like: objects, scenes, colors, actions, and visual composition",
	store.ModalityAudio:         "what things sound like: music, sound effects, ambient noise, and tone of voice",
	store.ModalityTranscription: "what people say: spoken words, dialogue, narration, and quotes",
}

// AnchorSet holds one anchor embedding per modality. Construction and
// initialization are separate steps so callers control when the embedding
// cost is paid; every read path fails with a precondition error until Init
// has succeeded.
type AnchorSet struct {
	mu          sync.RWMutex
	anchors     map[store.Modality][]float32
	model       string
	initialized bool
}

// NewAnchorSet creates an empty, uninitialized anchor set.
func NewAnchorSet() *AnchorSet {
	return &AnchorSet{anchors: make(map[store.Modality][]float32, 3)}
}

// Init embeds the anchor text for every modality. Idempotent: once
// initialized, further calls return immediately without re-embedding.
// Concurrent callers during the first initialization serialize; exactly one
// performs the work.
func (a *AnchorSet) Init(ctx context.Context, embedder embed.Embedder) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	return a.initLocked(ctx, embedder)
}

// Reinit discards the current anchors and embeds fresh ones. Used after a
// model change, when persisted anchors no longer live in the same space as
// query embeddings.
func (a *AnchorSet) Reinit(ctx context.Context, embedder embed.Embedder) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = false
	a.anchors = make(map[store.Modality][]float32, 3)
	return a.initLocked(ctx, embedder)
}

func (a *AnchorSet) initLocked(ctx context.Context, embedder embed.Embedder) error {
	for _, m := range store.AllModalities() {
		vec, err := embedder.EmbedText(ctx, anchorTexts[m])
		if err != nil {
			return errors.New(errors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("failed to embed %s anchor", m), err)
		}
		a.anchors[m] = vec
	}
	a.model = embedder.ModelName()
	a.initialized = true
	return nil
}

// Restore installs previously persisted anchors without re-embedding.
func (a *AnchorSet) Restore(anchors map[store.Modality][]float32, model string) error {
	for _, m := range store.AllModalities() {
		if len(anchors[m]) == 0 {
			return errors.New(errors.ErrCodeAnchorsCorrupt,
				fmt.Sprintf("persisted anchors missing %s modality", m), nil)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.anchors = anchors
	a.model = model
	a.initialized = true
	return nil
}

// Initialized reports whether anchors are available.
func (a *AnchorSet) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// Model returns the model the anchors were embedded with, or "" before Init.
func (a *AnchorSet) Model() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Anchor returns the anchor embedding for one modality.
func (a *AnchorSet) Anchor(m store.Modality) ([]float32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return nil, errors.AnchorsNotInitialized()
	}
	return a.anchors[m], nil
}

// Snapshot returns a copy of all anchors for persistence.
func (a *AnchorSet) Snapshot() (map[store.Modality][]float32, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return nil, "", errors.AnchorsNotInitialized()
	}
	out := make(map[store.Modality][]float32, len(a.anchors))
	for m, vec := range a.anchors {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		out[m] = cp
	}
	return out, a.model, nil
}

// Router derives per-query modality weights from anchor geometry: cosine
// similarity between the query embedding and each anchor, softened into a
// weight distribution by temperature-scaled softmax.
type Router struct {
	anchors *AnchorSet
}

// NewRouter creates a router over the given anchor set.
func NewRouter(anchors *AnchorSet) *Router {
	return &Router{anchors: anchors}
}

// Route computes dynamic weights for the given query embedding over the
// requested modalities. Returns the weights (summing to 1 across the
// requested set) and the raw query-anchor similarities that produced them.
func (r *Router) Route(query []float32, modalities []store.Modality, temperature float64) (Weights, map[store.Modality]float64, error) {
	if temperature <= 0 {
		return nil, nil, errors.ConfigError(
			fmt.Sprintf("softmax temperature must be positive, got %g", temperature), nil)
	}
	if len(modalities) == 0 {
		modalities = store.AllModalities()
	}

	sims := make(map[store.Modality]float64, len(modalities))
	for _, m := range modalities {
		anchor, err := r.anchors.Anchor(m)
		if err != nil {
			return nil, nil, err
		}
		if len(anchor) != len(query) {
			return nil, nil, errors.DimensionMismatch(len(anchor), len(query))
		}
		sims[m] = cosineSimilarity(query, anchor)
	}

	weights := softmax(sims, modalities, temperature)
	return weights, sims, nil
}

// softmax converts similarities to a weight distribution. The max is
// subtracted before exponentiation for numerical stability; the result is
// unchanged and overflow is impossible.
func softmax(sims map[store.Modality]float64, modalities []store.Modality, temperature float64) Weights {
	maxSim := math.Inf(-1)
	for _, m := range modalities {
		if sims[m] > maxSim {
			maxSim = sims[m]
		}
	}

	weights := make(Weights, len(modalities))
	var sum float64
	for _, m := range modalities {
		w := math.Exp((sims[m] - maxSim) / temperature)
		weights[m] = w
		sum += w
	}
	for m := range weights {
		weights[m] /= sum
	}
	return weights
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Zero-magnitude vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
