package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModality(t *testing.T) {
	tests := []struct {
		input   string
		want    Modality
		wantErr bool
	}{
		{"visual", ModalityVisual, false},
		{"audio", ModalityAudio, false},
		{"transcription", ModalityTranscription, false},
		{"VISUAL", ModalityVisual, false},
		{"  audio  ", ModalityAudio, false},
		{"text", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseModality(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
		} else {
			require.NoError(t, err, "input %q", tt.input)
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestParseTopology(t *testing.T) {
	got, err := ParseTopology("multi")
	require.NoError(t, err)
	assert.Equal(t, TopologyMulti, got)

	got, err = ParseTopology("unified")
	require.NoError(t, err)
	assert.Equal(t, TopologyUnified, got)

	_, err = ParseTopology("sharded")
	assert.Error(t, err)
}

func TestSegmentKey(t *testing.T) {
	assert.Equal(t, "vid-1:3", SegmentKey("vid-1", 3))
}

func TestDedupeBestDistance(t *testing.T) {
	// With distance scores lower is better.
	matches := []*VectorMatch{
		{VideoID: "a", SegmentID: 1, Raw: 0.4},
		{VideoID: "a", SegmentID: 1, Raw: 0.2},
		{VideoID: "b", SegmentID: 1, Raw: 0.3},
	}

	out := DedupeBest(matches, ScoreKindDistance)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].VideoID)
	assert.Equal(t, 0.2, out[0].Raw)
	assert.Equal(t, "b", out[1].VideoID)
}

func TestDedupeBestSimilarity(t *testing.T) {
	// With similarity scores higher is better.
	matches := []*VectorMatch{
		{VideoID: "a", SegmentID: 1, Raw: 0.4},
		{VideoID: "a", SegmentID: 1, Raw: 0.9},
		{VideoID: "b", SegmentID: 2, Raw: 0.5},
	}

	out := DedupeBest(matches, ScoreKindSimilarity)
	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Raw)
	assert.Equal(t, "b", out[1].VideoID)
}

func TestDedupeBestTieBreak(t *testing.T) {
	// Equal scores fall back to identity ordering for determinism.
	matches := []*VectorMatch{
		{VideoID: "b", SegmentID: 1, Raw: 0.5},
		{VideoID: "a", SegmentID: 2, Raw: 0.5},
	}

	out := DedupeBest(matches, ScoreKindSimilarity)
	require.Len(t, out, 2)
	assert.Equal(t, "a:2", out[0].Key())
	assert.Equal(t, "b:1", out[1].Key())
}

func TestDedupeBestEmpty(t *testing.T) {
	assert.Empty(t, DedupeBest(nil, ScoreKindDistance))
}
