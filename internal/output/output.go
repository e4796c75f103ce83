// Package output provides consistent CLI output formatting for search
// results, weights, and status messages.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Results renders a fused search response as a ranked list.
func (w *Writer) Results(resp *search.Response) {
	if resp.Degraded {
		w.Warningf("degraded: excluded modalities: %s", joinModalities(resp.ExcludedModalities))
	}

	if len(resp.Results) == 0 {
		w.Status("", "no results")
		return
	}

	for i, r := range resp.Results {
		_, _ = fmt.Fprintf(w.out, "%2d. %s  [%s]  %.1f%%\n",
			i+1, r.VideoID, formatTimeRange(r.Meta.StartTime, r.Meta.EndTime), r.Confidence)
		_, _ = fmt.Fprintf(w.out, "    %s\n", formatModalityScores(r))
	}

	_, _ = fmt.Fprintf(w.out, "\n%d results (%s fusion, %v)\n",
		len(resp.Results), resp.Method, resp.Elapsed.Round(1e6))

	if len(resp.WeightsUsed) > 0 {
		w.Weights(resp.WeightsUsed, resp.Similarities)
	}
}

// Weights renders a weight vector, with anchor similarities when dynamic
// routing produced them.
func (w *Writer) Weights(weights search.Weights, similarities map[store.Modality]float64) {
	mods := make([]store.Modality, 0, len(weights))
	for m := range weights {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })

	_, _ = fmt.Fprintln(w.out, "weights:")
	for _, m := range mods {
		line := fmt.Sprintf("  %-14s %s %.3f", m, weightBar(weights[m], 20), weights[m])
		if sim, ok := similarities[m]; ok {
			line += fmt.Sprintf("  (anchor sim %.3f)", sim)
		}
		_, _ = fmt.Fprintln(w.out, line)
	}
}

// formatModalityScores renders the per-modality evidence for one result.
func formatModalityScores(r *search.FusedResult) string {
	mods := make([]store.Modality, 0, len(r.ModalityScores))
	for m := range r.ModalityScores {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })

	parts := make([]string, 0, len(mods))
	for _, m := range mods {
		p := fmt.Sprintf("%s=%.2f", m, r.ModalityScores[m])
		if rank, ok := r.ModalityRanks[m]; ok {
			p = fmt.Sprintf("%s (#%d)", p, rank)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "  ")
}

// formatTimeRange renders a segment span as mm:ss-mm:ss.
func formatTimeRange(start, end float64) string {
	return formatSeconds(start) + "-" + formatSeconds(end)
}

func formatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	total := int(s)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func joinModalities(mods []store.Modality) string {
	parts := make([]string, len(mods))
	for i, m := range mods {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}

// weightBar renders a proportional text bar for a weight in [0,1].
func weightBar(weight float64, width int) string {
	filled := int(weight * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
