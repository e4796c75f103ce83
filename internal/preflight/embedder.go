package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// serviceCheckTimeout bounds the embedding service health probe.
const serviceCheckTimeout = 3 * time.Second

// CheckEmbeddingService checks whether the embedding service is reachable.
// Non-critical: searches fall back to the static embedder when it is not.
func (c *Checker) CheckEmbeddingService(ctx context.Context, host string) CheckResult {
	result := CheckResult{
		Name:     "embedding_service",
		Required: false,
	}

	if c.offline {
		result.Status = StatusPass
		result.Message = "Skipped (offline mode, static embeddings)"
		return result
	}
	if host == "" {
		result.Status = StatusWarn
		result.Message = "No service host configured (static embeddings only)"
		return result
	}

	url := strings.TrimSuffix(host, "/") + "/health"
	ctx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Invalid service host: %v", err)
		return result
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Service unreachable at %s (will use static embeddings)", host)
		result.Details = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Service responded %d at %s", resp.StatusCode, url)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("Service reachable at %s", host)
	return result
}
