package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/embed"
	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
	"github.com/vidfuse/vidfuse/internal/telemetry"
)

// app bundles the wired runtime stack behind every command that touches the
// corpus: config, embedder, vector backend, metadata store, engine, metrics.
type app struct {
	cfg      *config.Config
	embedder embed.Embedder
	backend  store.VectorBackend
	metadata *store.SQLiteMetadataStore
	engine   *search.Engine
	metrics  *telemetry.QueryMetrics
}

// appOptions tweaks stack construction per command.
type appOptions struct {
	// offline forces the static embedder regardless of configuration.
	offline bool
	// noMetrics skips telemetry even when enabled in config.
	noMetrics bool
}

// buildApp loads configuration from dir and wires the full stack.
func buildApp(ctx context.Context, dir string, opts appOptions) (*app, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return buildAppWithConfig(ctx, cfg, opts)
}

// buildAppWithConfig wires the stack from an already loaded configuration.
func buildAppWithConfig(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if opts.offline {
		provider = embed.ProviderStatic
	}
	embedder, err := embed.NewEmbedder(ctx, provider, embed.ServiceConfig{
		Host:       cfg.Embeddings.ServiceHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	dimensions := cfg.Embeddings.Dimensions
	if dimensions <= 0 {
		dimensions = embedder.Dimensions()
	}

	backend, err := newBackend(ctx, cfg, dimensions)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	metadata, err := store.NewSQLiteMetadataStore(cfg.MetadataPath())
	if err != nil {
		backend.Close()
		embedder.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		embedder: embedder,
		backend:  backend,
		metadata: metadata,
	}

	engineOpts := []search.EngineOption{
		search.WithConfig(engineConfig(cfg)),
		search.WithMetadata(metadata),
	}

	if anchors := loadAnchors(cfg, embedder); anchors != nil {
		engineOpts = append(engineOpts, search.WithAnchors(anchors))
	}

	if cfg.Telemetry.Enabled && !opts.noMetrics {
		metricsStore, err := telemetry.NewSQLiteMetricsStore(metadata.DB())
		if err != nil {
			slog.Warn("telemetry store unavailable, metrics disabled", "error", err)
		} else {
			mcfg := telemetry.DefaultQueryMetricsConfig()
			mcfg.FlushInterval = cfg.Telemetry.FlushInterval
			a.metrics = telemetry.NewQueryMetricsWithConfig(metricsStore, mcfg)
			engineOpts = append(engineOpts, search.WithMetrics(a.metrics))
		}
	}

	engine, err := search.NewEngine(backend, embedder, engineOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	a.engine = engine
	return a, nil
}

// Close releases the stack in dependency order.
func (a *app) Close() {
	if a.metrics != nil {
		_ = a.metrics.Close()
	}
	if a.engine != nil {
		_ = a.engine.Close()
	} else {
		if a.backend != nil {
			_ = a.backend.Close()
		}
		if a.embedder != nil {
			_ = a.embedder.Close()
		}
	}
	if a.metadata != nil {
		_ = a.metadata.Close()
	}
}

// newBackend creates the configured vector backend.
func newBackend(ctx context.Context, cfg *config.Config, dimensions int) (store.VectorBackend, error) {
	topology, err := store.ParseTopology(cfg.Backend.Topology)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend.Kind {
	case "redis":
		rcfg := store.DefaultRedisConfig(dimensions)
		rcfg.Topology = topology
		rcfg.Addr = cfg.Backend.RedisAddr
		rcfg.Password = cfg.Backend.RedisPassword
		rcfg.DB = cfg.Backend.RedisDB
		backend, err := store.NewRedisBackend(ctx, rcfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis backend: %w", err)
		}
		return backend, nil

	default:
		hcfg := store.DefaultHNSWConfig(dimensions)
		hcfg.Topology = topology
		if cfg.Backend.HNSWM > 0 {
			hcfg.M = cfg.Backend.HNSWM
		}
		if cfg.Backend.HNSWEfSearch > 0 {
			hcfg.EfSearch = cfg.Backend.HNSWEfSearch
		}
		backend, err := store.NewHNSWBackend(hcfg)
		if err != nil {
			return nil, fmt.Errorf("create hnsw backend: %w", err)
		}
		return backend, nil
	}
}

// engineConfig translates file configuration into engine configuration.
func engineConfig(cfg *config.Config) search.EngineConfig {
	ecfg := search.DefaultConfig()
	ecfg.DefaultLimit = cfg.Search.DefaultLimit
	ecfg.MaxLimit = cfg.Search.MaxLimit
	ecfg.RRFConstant = cfg.Search.RRFConstant
	ecfg.CandidateMultiplier = cfg.Search.CandidateMultiplier
	ecfg.RetrievalTimeout = cfg.Search.RetrievalTimeout
	ecfg.Temperature = cfg.Routing.Temperature

	weights := make(search.Weights)
	for name, w := range cfg.Weights() {
		weights[store.Modality(name)] = w
	}
	ecfg.DefaultWeights = weights
	return ecfg
}

// loadAnchors restores a persisted anchor set bound to the active embedding
// model. A missing or stale file means dynamic routing starts uninitialized.
func loadAnchors(cfg *config.Config, embedder embed.Embedder) *search.AnchorSet {
	path := cfg.AnchorsPath()
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	anchors, err := search.LoadAnchors(path, embedder.ModelName())
	if err != nil {
		slog.Warn("ignoring saved anchors", "path", path, "error", err)
		return nil
	}
	return anchors
}
