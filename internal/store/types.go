// Package store provides vector backend adapters (in-process HNSW, Redis) and
// segment metadata persistence (SQLite). This is the persistence layer for all
// indexed embeddings.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Modality identifies one of the embedding spaces computed per video segment.
type Modality string

const (
	ModalityVisual        Modality = "visual"
	ModalityAudio         Modality = "audio"
	ModalityTranscription Modality = "transcription"
)

// AllModalities returns every supported modality in canonical order.
func AllModalities() []Modality {
	return []Modality{ModalityVisual, ModalityAudio, ModalityTranscription}
}

// ParseModality validates a modality name.
func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityVisual, ModalityAudio, ModalityTranscription:
		return Modality(s), nil
	}
	return "", fmt.Errorf("unknown modality %q (want visual, audio, or transcription)", s)
}

// ScoreKind declares how a backend expresses similarity in VectorMatch.Raw.
type ScoreKind string

const (
	// ScoreKindDistance means Raw is a distance: 0 = identical, >= 1 = dissimilar.
	ScoreKindDistance ScoreKind = "distance"
	// ScoreKindSimilarity means Raw is already a bounded similarity in [0,1].
	ScoreKindSimilarity ScoreKind = "similarity"
)

// Topology selects how embeddings are laid out across indexes.
type Topology string

const (
	// TopologyMulti keeps one dedicated index per modality.
	TopologyMulti Topology = "multi"
	// TopologyUnified keeps a single shared index with a modality tag per entry.
	TopologyUnified Topology = "unified"
)

// ParseTopology validates a topology name.
func ParseTopology(s string) (Topology, error) {
	switch Topology(s) {
	case TopologyMulti, TopologyUnified:
		return Topology(s), nil
	}
	return "", fmt.Errorf("unknown index topology %q (want multi or unified)", s)
}

// Segment is a time-bounded unit of a video. Immutable once created by ingest.
type Segment struct {
	VideoID   string
	SegmentID int // monotonically assigned within a video
	StartTime float64
	EndTime   float64
	MediaURI  string
	CreatedAt time.Time
}

// VideoSummary is an aggregate view of one indexed video.
type VideoSummary struct {
	VideoID      string  `json:"video_id"`
	SegmentCount int     `json:"segment_count"`
	Duration     float64 `json:"duration_seconds"`
	MediaURI     string  `json:"media_uri"`
}

// SegmentMeta is the media metadata echoed through backend queries so results
// can be presented without a metadata store round trip.
type SegmentMeta struct {
	StartTime float64
	EndTime   float64
	MediaURI  string
}

// UpsertEntry is one (segment, modality) embedding to write into a backend.
type UpsertEntry struct {
	VideoID   string
	SegmentID int
	Vector    []float32
	Meta      SegmentMeta
}

// VectorMatch is the transient result of one backend nearest-neighbor query.
// Raw is backend-native and must be interpreted via the backend's ScoreKind.
type VectorMatch struct {
	VideoID   string
	SegmentID int
	Modality  Modality
	Raw       float64
	Meta      SegmentMeta
}

// Key returns the identity string used for deduplication and tie-breaking.
func (m *VectorMatch) Key() string {
	return SegmentKey(m.VideoID, m.SegmentID)
}

// SegmentKey builds the canonical identity string for a (video, segment) pair.
func SegmentKey(videoID string, segmentID int) string {
	return fmt.Sprintf("%s:%d", videoID, segmentID)
}

// VectorBackend is the uniform capability interface over a vector store.
// The fusion engine is wholly unaware of which adapter produced its inputs.
type VectorBackend interface {
	// Upsert inserts or replaces embeddings for the given modality.
	Upsert(ctx context.Context, modality Modality, entries []UpsertEntry) error

	// Query returns up to topK nearest neighbors for the query vector in the
	// given modality's space, ordered best-first. May return fewer than topK.
	Query(ctx context.Context, modality Modality, vector []float32, topK int) ([]*VectorMatch, error)

	// Kind declares how Raw values returned by Query must be interpreted.
	Kind() ScoreKind

	// Metric names the backend's declared distance metric (e.g. "cosine").
	// Callers use this to reject cross-backend score comparisons that a
	// fixed 1-distance conversion would silently get wrong.
	Metric() string

	// Dimensions returns the fixed embedding dimensionality of the backend.
	Dimensions() int

	// Name identifies the backend family for logging and status output.
	Name() string

	Close() error
}

// BackendConfig is the common configuration shared by backend adapters.
type BackendConfig struct {
	// Dimensions is the embedding dimension shared by all modalities (512 for
	// the default embedding model).
	Dimensions int

	// Topology selects per-modality indexes or one shared tagged index.
	Topology Topology
}

// ErrDimensionMismatch indicates a vector whose length disagrees with the
// backend's configured dimensionality. Never silently truncate or pad.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}

// DedupeBest collapses duplicate identities in a backend result list, keeping
// the entry with the best raw value for the given score kind. Order of the
// surviving entries follows best-raw-first.
func DedupeBest(matches []*VectorMatch, kind ScoreKind) []*VectorMatch {
	if len(matches) == 0 {
		return matches
	}

	better := func(a, b float64) bool {
		if kind == ScoreKindDistance {
			return a < b
		}
		return a > b
	}

	best := make(map[string]*VectorMatch, len(matches))
	for _, m := range matches {
		key := m.Key()
		if cur, ok := best[key]; !ok || better(m.Raw, cur.Raw) {
			best[key] = m
		}
	}

	out := make([]*VectorMatch, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Raw != out[j].Raw {
			return better(out[i].Raw, out[j].Raw)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}
