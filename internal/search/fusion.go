package search

import (
	"sort"

	"github.com/vidfuse/vidfuse/internal/store"
)

// DefaultRRFConstant is the reciprocal-rank smoothing constant K. Larger
// values flatten the contribution curve so deep ranks still matter.
const DefaultRRFConstant = 60

// Fusion merges per-modality normalized result lists into one ranking.
type Fusion struct {
	k int
}

// NewFusion creates a fusion stage with the given RRF constant. Non-positive
// values fall back to the default.
func NewFusion(k int) *Fusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fusion{k: k}
}

// FuseWeighted combines per-modality lists by weighted average. For each
// identity the weights are renormalized over only the modalities that
// actually returned it, so an identity found in a single low-weight modality
// keeps its raw score rather than being diluted toward zero by spaces that
// never saw it.
func (f *Fusion) FuseWeighted(lists map[store.Modality][]*NormalizedMatch, weights Weights) []*FusedResult {
	byKey := make(map[string]*FusedResult)

	for modality, matches := range lists {
		for _, m := range matches {
			r := f.getOrCreate(byKey, m)
			r.ModalityScores[modality] = m.Score
		}
	}

	results := make([]*FusedResult, 0, len(byKey))
	for _, r := range byKey {
		var weighted, weightSum float64
		for modality, score := range r.ModalityScores {
			w := weights[modality]
			weighted += w * score
			weightSum += w
		}
		if weightSum > 0 {
			r.FusionScore = weighted / weightSum
		}
		r.Confidence = r.FusionScore * 100
		results = append(results, r)
	}

	sortFused(results)
	return results
}

// FuseRRF combines per-modality lists by reciprocal rank: each identity
// scores sum(1/(K+rank_m)) over the modalities where it appeared. A modality
// that did not return the identity contributes nothing. Confidence is the
// score relative to the maximum achievable for the requested modality count,
// rank 1 everywhere.
func (f *Fusion) FuseRRF(lists map[store.Modality][]*NormalizedMatch, requested []store.Modality) []*FusedResult {
	byKey := make(map[string]*FusedResult)

	for modality, matches := range lists {
		for rank, m := range matches {
			r := f.getOrCreate(byKey, m)
			r.ModalityScores[modality] = m.Score
			r.ModalityRanks[modality] = rank + 1
			r.FusionScore += 1.0 / float64(f.k+rank+1)
		}
	}

	maxScore := float64(len(requested)) / float64(f.k+1)
	results := make([]*FusedResult, 0, len(byKey))
	for _, r := range byKey {
		if maxScore > 0 {
			r.Confidence = clamp01(r.FusionScore/maxScore) * 100
		}
		results = append(results, r)
	}

	sortFused(results)
	return results
}

func (f *Fusion) getOrCreate(byKey map[string]*FusedResult, m *NormalizedMatch) *FusedResult {
	key := m.Key()
	r, ok := byKey[key]
	if !ok {
		r = &FusedResult{
			VideoID:        m.VideoID,
			SegmentID:      m.SegmentID,
			ModalityScores: make(map[store.Modality]float64, 3),
			ModalityRanks:  make(map[store.Modality]int, 3),
			Meta:           m.Meta,
		}
		byKey[key] = r
	}
	return r
}

// sortFused orders results best first with a fully deterministic tie-break:
// fusion score, then best single-modality score, then identity key.
func sortFused(results []*FusedResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusionScore != b.FusionScore {
			return a.FusionScore > b.FusionScore
		}
		ab, bb := a.bestModalityScore(), b.bestModalityScore()
		if ab != bb {
			return ab > bb
		}
		return a.Key() < b.Key()
	})
}
