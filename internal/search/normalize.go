package search

import (
	"github.com/vidfuse/vidfuse/internal/store"
)

// NormalizeRaw maps a backend-native raw value onto the canonical [0,1]
// similarity scale, higher is better.
//
// Distance-based backends assume a calibrated metric where 0 = identical and
// >= 1 = dissimilar, so score = clamp(1 - distance). Similarity-based
// backends pass through clamped. All conversion lives here; call sites must
// never convert ad hoc, since per-call-site conversion is exactly how two
// backends end up with incomparable scores.
func NormalizeRaw(kind store.ScoreKind, raw float64) float64 {
	var score float64
	switch kind {
	case store.ScoreKindDistance:
		score = 1.0 - raw
	default:
		score = raw
	}
	return clamp01(score)
}

// NormalizeMatches converts a backend result list into normalized matches,
// deduplicating identities first (keeping the best raw value) and preserving
// best-first order. An empty input is "no evidence", not an error.
func NormalizeMatches(matches []*store.VectorMatch, kind store.ScoreKind) []*NormalizedMatch {
	deduped := store.DedupeBest(matches, kind)

	out := make([]*NormalizedMatch, 0, len(deduped))
	for _, m := range deduped {
		out = append(out, &NormalizedMatch{
			VideoID:   m.VideoID,
			SegmentID: m.SegmentID,
			Modality:  m.Modality,
			Score:     NormalizeRaw(kind, m.Raw),
			Meta:      m.Meta,
		})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
