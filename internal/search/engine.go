package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vidfuse/vidfuse/internal/embed"
	"github.com/vidfuse/vidfuse/internal/errors"
	"github.com/vidfuse/vidfuse/internal/store"
	"github.com/vidfuse/vidfuse/internal/telemetry"
)

// Engine runs fused multi-modal searches over a vector backend. Per-modality
// retrievals run in parallel; a backend failure in one modality degrades the
// response instead of failing it, as long as at least one modality succeeds.
type Engine struct {
	backend  store.VectorBackend
	embedder embed.Embedder
	metadata store.MetadataStore
	anchors  *AnchorSet
	router   *Router

	cfgMu  sync.RWMutex
	fusion *Fusion
	cfg    EngineConfig

	metrics  *telemetry.QueryMetrics
	breakers map[store.Modality]*errors.CircuitBreaker
	logger   *slog.Logger
}

var _ Searcher = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfig overrides the default engine configuration.
func WithConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithMetadata attaches a metadata store, enabling ingest bookkeeping and
// corpus state checks.
func WithMetadata(m store.MetadataStore) EngineOption {
	return func(e *Engine) {
		e.metadata = m
	}
}

// WithMetrics attaches a telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithAnchors installs a pre-initialized anchor set for dynamic routing.
func WithAnchors(a *AnchorSet) EngineOption {
	return func(e *Engine) {
		e.anchors = a
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a search engine over the given backend and embedder.
func NewEngine(backend store.VectorBackend, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if backend == nil {
		return nil, errors.ConfigError("vector backend is required", nil)
	}
	if embedder == nil {
		return nil, errors.ConfigError("embedder is required", nil)
	}

	e := &Engine{
		backend:  backend,
		embedder: embedder,
		anchors:  NewAnchorSet(),
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	// The fixed 1-distance score conversion is only calibrated for cosine.
	// Refusing other metrics up front beats producing quietly wrong scores.
	if backend.Kind() == store.ScoreKindDistance && backend.Metric() != "cosine" {
		return nil, errors.ConfigError(
			fmt.Sprintf("backend %s uses metric %q, only cosine distances can be normalized", backend.Name(), backend.Metric()), nil)
	}

	e.cfg = normalizeConfig(e.cfg)
	e.router = NewRouter(e.anchors)
	e.fusion = NewFusion(e.cfg.RRFConstant)

	e.breakers = make(map[store.Modality]*errors.CircuitBreaker, 3)
	for _, m := range store.AllModalities() {
		e.breakers[m] = errors.NewCircuitBreaker(string(m),
			errors.WithMaxFailures(5),
			errors.WithResetTimeout(30*time.Second))
	}

	return e, nil
}

// normalizeConfig fills zero-valued fields with their defaults.
func normalizeConfig(cfg EngineConfig) EngineConfig {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 5
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = 5 * time.Second
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if len(cfg.DefaultWeights) == 0 {
		cfg.DefaultWeights = DefaultStaticWeights()
	}
	return cfg
}

// SetConfig swaps the engine's tunables while searches are in flight.
// Running searches finish with the configuration they started with.
func (e *Engine) SetConfig(cfg EngineConfig) {
	cfg = normalizeConfig(cfg)
	e.cfgMu.Lock()
	e.cfg = cfg
	e.fusion = NewFusion(cfg.RRFConstant)
	e.cfgMu.Unlock()
}

// snapshot returns the current tunables for one search call.
func (e *Engine) snapshot() (EngineConfig, *Fusion) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg, e.fusion
}

// Anchors returns the engine's anchor set for initialization and persistence.
func (e *Engine) Anchors() *AnchorSet {
	return e.anchors
}

// Backend returns the engine's vector backend for status reporting.
func (e *Engine) Backend() store.VectorBackend {
	return e.backend
}

// Search runs a fused multi-modal query. The text query is embedded once and
// searched against every requested modality space concurrently; the
// per-modality rankings are then normalized and fused.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	cfg, fusion := e.snapshot()

	modalities, limit, method, err := e.validate(query, &opts, cfg)
	if err != nil {
		return nil, err
	}

	vector, err := e.queryVector(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	weights := cfg.DefaultWeights
	if len(opts.Weights) > 0 {
		weights = opts.Weights
	}

	var similarities map[store.Modality]float64
	if opts.Dynamic {
		temperature := opts.Temperature
		if temperature == 0 {
			temperature = cfg.Temperature
		}
		weights, similarities, err = e.router.Route(vector, modalities, temperature)
		if err != nil {
			return nil, err
		}
	}

	lists, excluded, err := e.retrieve(ctx, vector, modalities, limit, cfg)
	if err != nil {
		return nil, err
	}

	var results []*FusedResult
	switch method {
	case MethodRRF:
		results = fusion.FuseRRF(lists, presentModalities(modalities, excluded))
	default:
		results = fusion.FuseWeighted(lists, weights)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	resp := &Response{
		Results:            results,
		Method:             method,
		Similarities:       similarities,
		Degraded:           len(excluded) > 0,
		ExcludedModalities: excluded,
		Elapsed:            time.Since(start),
	}
	if method == MethodWeighted {
		resp.WeightsUsed = weights.Clone()
	}

	e.recordMetrics(query, opts, resp, vector, len(modalities))

	e.logger.Debug("search complete",
		"query_len", len(query),
		"method", string(method),
		"modalities", len(modalities),
		"results", len(results),
		"degraded", resp.Degraded,
		"elapsed_ms", resp.Elapsed.Milliseconds())

	return resp, nil
}

// validate checks the request and resolves defaults.
func (e *Engine) validate(query string, opts *Options, cfg EngineConfig) ([]store.Modality, int, FusionMethod, error) {
	if query == "" && len(opts.Vector) == 0 {
		return nil, 0, "", errors.New(errors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	modalities := opts.Modalities
	if len(modalities) == 0 {
		modalities = store.AllModalities()
	}
	seen := make(map[store.Modality]bool, len(modalities))
	for _, m := range modalities {
		if _, err := store.ParseModality(string(m)); err != nil {
			return nil, 0, "", errors.New(errors.ErrCodeInvalidModality, err.Error(), nil)
		}
		if seen[m] {
			return nil, 0, "", errors.New(errors.ErrCodeInvalidModality,
				fmt.Sprintf("modality %s requested twice", m), nil)
		}
		seen[m] = true
	}

	limit := opts.Limit
	if limit < 0 {
		return nil, 0, "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("limit must be positive, got %d", limit), nil)
	}
	if limit == 0 {
		limit = cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}

	method := opts.Method
	if method == "" {
		method = MethodWeighted
	}
	if _, ok := ParseFusionMethod(string(method)); !ok {
		return nil, 0, "", errors.New(errors.ErrCodeInvalidQuery,
			fmt.Sprintf("unknown fusion method %q (want weighted or rrf)", method), nil)
	}

	if !opts.Dynamic && len(opts.Weights) > 0 {
		// At least one requested modality must carry positive weight, or
		// every fused score would renormalize over an empty weight set.
		var requestedSum float64
		for m, w := range opts.Weights {
			if w < 0 {
				return nil, 0, "", errors.New(errors.ErrCodeInvalidWeights,
					fmt.Sprintf("weight for %s is negative", m), nil)
			}
			if seen[m] {
				requestedSum += w
			}
		}
		if requestedSum == 0 {
			return nil, 0, "", errors.New(errors.ErrCodeInvalidWeights,
				"no requested modality has a positive weight", nil)
		}
	}

	return modalities, limit, method, nil
}

// queryVector resolves the query embedding, either supplied or computed.
func (e *Engine) queryVector(ctx context.Context, query string, opts Options) ([]float32, error) {
	vector := opts.Vector
	if len(vector) == 0 {
		var err error
		vector, err = e.embedder.EmbedText(ctx, query)
		if err != nil {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to embed query", err)
		}
	}
	if len(vector) != e.backend.Dimensions() {
		return nil, errors.DimensionMismatch(e.backend.Dimensions(), len(vector))
	}
	return vector, nil
}

// retrieve runs the per-modality backend queries in parallel. Failed
// modalities are excluded rather than failing the search; only when every
// modality fails does the whole call error.
func (e *Engine) retrieve(ctx context.Context, vector []float32, modalities []store.Modality, limit int, cfg EngineConfig) (map[store.Modality][]*NormalizedMatch, []store.Modality, error) {
	// Retrieve well past the requested limit so fusion can surface
	// identities that rank mid-list in one modality but high overall.
	topK := limit * cfg.CandidateMultiplier

	var mu sync.Mutex
	lists := make(map[store.Modality][]*NormalizedMatch, len(modalities))
	failures := make(map[store.Modality]error, len(modalities))

	g, gctx := errgroup.WithContext(ctx)
	for _, modality := range modalities {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, cfg.RetrievalTimeout)
			defer cancel()

			breaker := e.breakers[modality]
			var matches []*store.VectorMatch
			err := breaker.Execute(func() error {
				var qerr error
				matches, qerr = e.backend.Query(qctx, modality, vector, topK)
				return qerr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[modality] = err
				e.logger.Warn("modality retrieval failed",
					"modality", string(modality),
					"backend", e.backend.Name(),
					"error", err)
				return nil
			}
			lists[modality] = NormalizeMatches(matches, e.backend.Kind())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.SearchFailed("retrieval aborted", err)
	}

	if len(failures) == len(modalities) {
		var cause error
		for _, err := range failures {
			cause = err
			break
		}
		return nil, nil, errors.SearchFailed("all modality retrievals failed", cause)
	}

	var excluded []store.Modality
	for _, m := range modalities {
		if _, failed := failures[m]; failed {
			excluded = append(excluded, m)
		}
	}
	return lists, excluded, nil
}

// presentModalities returns the requested modalities minus the excluded ones,
// preserving order.
func presentModalities(requested, excluded []store.Modality) []store.Modality {
	if len(excluded) == 0 {
		return requested
	}
	skip := make(map[store.Modality]bool, len(excluded))
	for _, m := range excluded {
		skip[m] = true
	}
	out := make([]store.Modality, 0, len(requested))
	for _, m := range requested {
		if !skip[m] {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) recordMetrics(query string, opts Options, resp *Response, vector []float32, modalityCount int) {
	if e.metrics == nil {
		return
	}

	queryType := telemetry.QueryTypeWeighted
	switch {
	case opts.Dynamic:
		queryType = telemetry.QueryTypeDynamic
	case resp.Method == MethodRRF:
		queryType = telemetry.QueryTypeRRF
	}

	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   queryType,
		Modalities:  modalityCount,
		ResultCount: len(resp.Results),
		Degraded:    resp.Degraded,
		Latency:     resp.Elapsed,
		Timestamp:   time.Now(),
	})
	e.metrics.RecordQueryEmbedding(vector)
}

// ComputeDynamicWeights exposes the router for observability: given a query
// embedding, return the weights and anchor similarities that dynamic routing
// would use, without running a search.
func (e *Engine) ComputeDynamicWeights(query []float32, temperature float64) (Weights, map[store.Modality]float64, error) {
	if temperature == 0 {
		cfg, _ := e.snapshot()
		temperature = cfg.Temperature
	}
	return e.router.Route(query, store.AllModalities(), temperature)
}

// InitAnchors embeds the modality anchors if not already done.
func (e *Engine) InitAnchors(ctx context.Context) error {
	return e.anchors.Init(ctx, e.embedder)
}

// Index writes segment embeddings for one video into the backend and records
// segment metadata. Re-indexing a video replaces its segment vectors.
func (e *Engine) Index(ctx context.Context, videoID, mediaURI string, segments []embed.SegmentEmbedding) error {
	if videoID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "video id is empty", nil)
	}
	if len(segments) == 0 {
		return errors.New(errors.ErrCodeIngestFailed,
			fmt.Sprintf("video %s produced no segments", videoID), nil)
	}

	byModality := make(map[store.Modality][]store.UpsertEntry, 3)
	records := make([]*store.Segment, 0, len(segments))
	now := time.Now()

	for _, seg := range segments {
		meta := store.SegmentMeta{
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			MediaURI:  mediaURI,
		}
		for modality, vec := range seg.Vectors {
			if len(vec) != e.backend.Dimensions() {
				return errors.DimensionMismatch(e.backend.Dimensions(), len(vec))
			}
			byModality[modality] = append(byModality[modality], store.UpsertEntry{
				VideoID:   videoID,
				SegmentID: seg.SegmentID,
				Vector:    vec,
				Meta:      meta,
			})
		}
		records = append(records, &store.Segment{
			VideoID:   videoID,
			SegmentID: seg.SegmentID,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			MediaURI:  mediaURI,
			CreatedAt: now,
		})
	}

	for modality, entries := range byModality {
		if err := e.backend.Upsert(ctx, modality, entries); err != nil {
			return errors.New(errors.ErrCodeIngestFailed,
				fmt.Sprintf("failed to index %s embeddings for video %s", modality, videoID), err)
		}
	}

	if e.metadata != nil {
		if err := e.metadata.SaveSegments(ctx, records); err != nil {
			return errors.New(errors.ErrCodeIngestFailed,
				fmt.Sprintf("failed to save segment metadata for video %s", videoID), err)
		}
		if err := e.metadata.SetState(ctx, store.StateKeyCorpusModel, e.embedder.ModelName()); err != nil {
			return errors.New(errors.ErrCodeIngestFailed, "failed to record corpus model", err)
		}
		if err := e.metadata.SetState(ctx, store.StateKeyCorpusDimension, strconv.Itoa(e.backend.Dimensions())); err != nil {
			return errors.New(errors.ErrCodeIngestFailed, "failed to record corpus dimension", err)
		}
	}

	e.logger.Info("video indexed",
		"video_id", videoID,
		"segments", len(segments),
		"modalities", len(byModality))
	return nil
}

// Close releases engine resources. The backend, embedder, and metadata store
// are owned by the caller and closed separately.
func (e *Engine) Close() error {
	if e.metrics != nil {
		return e.metrics.Close()
	}
	return nil
}
