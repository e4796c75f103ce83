package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig configures the in-process HNSW backend.
type HNSWConfig struct {
	BackendConfig

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultHNSWConfig returns sensible defaults for the given dimensionality.
func DefaultHNSWConfig(dimensions int) HNSWConfig {
	return HNSWConfig{
		BackendConfig: BackendConfig{
			Dimensions: dimensions,
			Topology:   TopologyMulti,
		},
		M:        16,
		EfSearch: 20,
	}
}

// hnswEntry carries everything Query needs to rebuild a VectorMatch.
type hnswEntry struct {
	videoID   string
	segmentID int
	modality  Modality
	meta      SegmentMeta
}

// HNSWBackend implements VectorBackend with coder/hnsw graphs held in memory.
// In multi topology each modality gets its own graph; in unified topology all
// modalities share one graph and queries filter on the stored modality tag.
type HNSWBackend struct {
	mu     sync.RWMutex
	config HNSWConfig

	graphs  map[Modality]*hnsw.Graph[uint64] // multi topology
	unified *hnsw.Graph[uint64]              // unified topology

	entries map[uint64]hnswEntry
	idMap   map[string]uint64 // modality-qualified key -> internal key
	nextKey uint64

	closed bool
}

var _ VectorBackend = (*HNSWBackend)(nil)

// NewHNSWBackend creates an in-process HNSW backend.
func NewHNSWBackend(cfg HNSWConfig) (*HNSWBackend, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw backend: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Topology == "" {
		cfg.Topology = TopologyMulti
	}

	b := &HNSWBackend{
		config:  cfg,
		entries: make(map[uint64]hnswEntry),
		idMap:   make(map[string]uint64),
	}

	if cfg.Topology == TopologyUnified {
		b.unified = b.newGraph()
	} else {
		b.graphs = make(map[Modality]*hnsw.Graph[uint64], 3)
		for _, m := range AllModalities() {
			b.graphs[m] = b.newGraph()
		}
	}

	return b, nil
}

func (b *HNSWBackend) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = b.config.M
	g.EfSearch = b.config.EfSearch
	g.Ml = 0.25
	return g
}

func (b *HNSWBackend) graphFor(m Modality) *hnsw.Graph[uint64] {
	if b.config.Topology == TopologyUnified {
		return b.unified
	}
	return b.graphs[m]
}

// Upsert inserts or replaces embeddings for the given modality.
// Replacement uses lazy deletion: the old node stays in the graph but loses
// its mapping, so it can no longer surface in results.
func (b *HNSWBackend) Upsert(ctx context.Context, modality Modality, entries []UpsertEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := ParseModality(string(modality)); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("hnsw backend is closed")
	}

	for _, e := range entries {
		if len(e.Vector) != b.config.Dimensions {
			return ErrDimensionMismatch{Expected: b.config.Dimensions, Got: len(e.Vector)}
		}
	}

	graph := b.graphFor(modality)
	for _, e := range entries {
		mapKey := string(modality) + "/" + SegmentKey(e.VideoID, e.SegmentID)
		if oldKey, exists := b.idMap[mapKey]; exists {
			delete(b.entries, oldKey)
			delete(b.idMap, mapKey)
		}

		key := b.nextKey
		b.nextKey++

		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		normalizeVectorInPlace(vec)

		graph.Add(hnsw.MakeNode(key, vec))
		b.idMap[mapKey] = key
		b.entries[key] = hnswEntry{
			videoID:   e.VideoID,
			segmentID: e.SegmentID,
			modality:  modality,
			meta:      e.Meta,
		}
	}

	return nil
}

// Query returns up to topK nearest neighbors within the modality's space.
// Unified topology over-fetches and filters on the modality tag, since the
// shared graph interleaves all three spaces.
func (b *HNSWBackend) Query(ctx context.Context, modality Modality, vector []float32, topK int) ([]*VectorMatch, error) {
	if _, err := ParseModality(string(modality)); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*VectorMatch{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("hnsw backend is closed")
	}
	if len(vector) != b.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: b.config.Dimensions, Got: len(vector)}
	}

	graph := b.graphFor(modality)
	if graph.Len() == 0 {
		return []*VectorMatch{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	fetch := topK
	if b.config.Topology == TopologyUnified {
		// The shared graph holds up to three modalities worth of neighbors.
		fetch = topK * len(AllModalities())
	}

	nodes := graph.Search(query, fetch)

	results := make([]*VectorMatch, 0, topK)
	for _, node := range nodes {
		entry, ok := b.entries[node.Key]
		if !ok {
			continue // lazily deleted
		}
		if entry.modality != modality {
			continue
		}

		// Cosine distance halved so 0 = identical and 1 = opposite, keeping
		// the 1-distance score conversion meaningful.
		distance := float64(graph.Distance(query, node.Value)) / 2.0

		results = append(results, &VectorMatch{
			VideoID:   entry.videoID,
			SegmentID: entry.segmentID,
			Modality:  modality,
			Raw:       distance,
			Meta:      entry.meta,
		})
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// Kind reports that Raw values are distances.
func (b *HNSWBackend) Kind() ScoreKind { return ScoreKindDistance }

// Metric reports the declared distance metric.
func (b *HNSWBackend) Metric() string { return "cosine" }

// Dimensions returns the configured embedding dimension.
func (b *HNSWBackend) Dimensions() int { return b.config.Dimensions }

// Name identifies the backend family.
func (b *HNSWBackend) Name() string { return "hnsw" }

// Count returns the number of live embeddings for a modality.
func (b *HNSWBackend) Count(modality Modality) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	n := 0
	for _, e := range b.entries {
		if e.modality == modality {
			n++
		}
	}
	return n
}

// Close releases the graphs.
func (b *HNSWBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.graphs = nil
	b.unified = nil
	b.entries = nil
	b.idMap = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
