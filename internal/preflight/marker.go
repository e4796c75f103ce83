package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records that system checks passed for this data directory, so
// MCP startup does not re-run them on every session.
const MarkerFile = ".preflight-passed"

// markerStaleAfter bounds how long a passed check is trusted. Disk and limit
// conditions drift, so an old marker forces a fresh run.
const markerStaleAfter = 30 * 24 * time.Hour

// NeedsCheck reports whether system checks should run for dataDir: the marker
// is missing, unreadable, or stale.
func NeedsCheck(dataDir string) bool {
	age, ok := markerAge(dataDir)
	if !ok {
		return true
	}
	return age > markerStaleAfter
}

// MarkPassed writes the marker with the current timestamp.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	stamp := []byte(time.Now().Format(time.RFC3339))
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), stamp, 0644)
}

// ClearMarker removes the marker so the next run re-checks. Missing marker is
// not an error.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago checks passed, or zero when no valid marker
// exists.
func MarkerAge(dataDir string) time.Duration {
	age, ok := markerAge(dataDir)
	if !ok {
		return 0
	}
	return age
}

func markerAge(dataDir string) (time.Duration, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return 0, false
	}
	return time.Since(t), true
}
