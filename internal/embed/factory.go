package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	// ProviderAuto tries the remote service, falling back to static.
	ProviderAuto ProviderType = "auto"
	// ProviderService uses the remote embedding service only.
	ProviderService ProviderType = "service"
	// ProviderStatic uses offline hash-based embeddings only.
	ProviderStatic ProviderType = "static"
)

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// ParseProvider parses a provider name, defaulting to auto.
func ParseProvider(s string) ProviderType {
	switch s {
	case "service":
		return ProviderService
	case "static":
		return ProviderStatic
	default:
		return ProviderAuto
	}
}

// NewEmbedder creates an embedder for the given provider. The result is
// wrapped with query caching unless VIDFUSE_NO_CACHE is set.
func NewEmbedder(ctx context.Context, provider ProviderType, cfg ServiceConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch provider {
	case ProviderStatic:
		inner = NewStaticEmbedder()

	case ProviderService:
		inner, err = NewServiceEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("embedding service required but unavailable: %w", err)
		}

	default: // ProviderAuto
		inner, err = NewServiceEmbedder(ctx, cfg)
		if err != nil {
			slog.Warn("embedding service unavailable, falling back to static embedder",
				slog.String("host", cfg.Host),
				slog.String("error", err.Error()))
			inner = NewStaticEmbedder()
		}
	}

	if isCacheDisabled() {
		return inner, nil
	}
	return NewCachedEmbedderWithDefaults(inner), nil
}

// isCacheDisabled checks the VIDFUSE_NO_CACHE environment variable.
func isCacheDisabled() bool {
	v := os.Getenv("VIDFUSE_NO_CACHE")
	return v == "1" || v == "true"
}
