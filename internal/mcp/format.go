package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
)

// FormatSearchResults formats a fused search response as markdown.
func FormatSearchResults(query string, resp *search.Response) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))

	if resp.Degraded {
		sb.WriteString(fmt.Sprintf("> ⚠️ Degraded: excluded modalities: %s\n\n",
			modalityList(resp.ExcludedModalities)))
	}

	if len(resp.Results) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Found %d result", len(resp.Results)))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(fmt.Sprintf(" (%s fusion)\n\n", resp.Method))

	for i, r := range resp.Results {
		formatResult(&sb, i+1, r)
	}

	if len(resp.WeightsUsed) > 0 {
		sb.WriteString("### Weights\n\n")
		formatWeightLines(&sb, resp.WeightsUsed, resp.Similarities)
	}

	return sb.String()
}

// formatResult formats one fused result as a markdown section.
func formatResult(sb *strings.Builder, num int, r *search.FusedResult) {
	fmt.Fprintf(sb, "### %d. %s (segment %d) - %.1f%% confidence\n\n",
		num, r.VideoID, r.SegmentID, r.Confidence)
	fmt.Fprintf(sb, "- **Time:** %.1fs to %.1fs\n", r.Meta.StartTime, r.Meta.EndTime)
	if r.Meta.MediaURI != "" {
		fmt.Fprintf(sb, "- **Media:** %s\n", r.Meta.MediaURI)
	}
	fmt.Fprintf(sb, "- **Matched via:** %s\n\n", matchedVia(r))
}

// matchedVia explains which modality spaces contributed and how strongly.
func matchedVia(r *search.FusedResult) string {
	mods := sortedModalities(r.ModalityScores)
	parts := make([]string, 0, len(mods))
	for _, m := range mods {
		p := fmt.Sprintf("%s (%.2f", m, r.ModalityScores[m])
		if rank, ok := r.ModalityRanks[m]; ok {
			p += fmt.Sprintf(", rank %d", rank)
		}
		parts = append(parts, p+")")
	}
	return strings.Join(parts, ", ")
}

// FormatWeights formats a weight vector and optional anchor similarities
// as markdown.
func FormatWeights(query string, weights search.Weights, similarities map[store.Modality]float64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Modality Weights for \"%s\"\n\n", query))
	formatWeightLines(&sb, weights, similarities)
	return sb.String()
}

func formatWeightLines(sb *strings.Builder, weights search.Weights, similarities map[store.Modality]float64) {
	for _, m := range sortedModalities(weights) {
		line := fmt.Sprintf("- **%s:** %.3f", m, weights[m])
		if sim, ok := similarities[m]; ok {
			line += fmt.Sprintf(" (anchor similarity %.3f)", sim)
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")
}

func sortedModalities[V any](m map[store.Modality]V) []store.Modality {
	mods := make([]store.Modality, 0, len(m))
	for k := range m {
		mods = append(mods, k)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })
	return mods
}

func modalityList(mods []store.Modality) string {
	parts := make([]string, len(mods))
	for i, m := range mods {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
