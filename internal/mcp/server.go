package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/embed"
	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
	"github.com/vidfuse/vidfuse/internal/telemetry"
	"github.com/vidfuse/vidfuse/pkg/version"
)

// Server is the MCP server for vidfuse. It bridges AI clients with the
// multi-modal fusion search engine.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	metadata store.MetadataStore
	embedder embed.Embedder
	config   *config.Config
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// SearchInput defines the input schema for the video_search tool.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"the natural-language search query"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	Modalities  []string `json:"modalities,omitempty" jsonschema:"restrict to modality spaces: visual, audio, transcription; default all"`
	Method      string   `json:"method,omitempty" jsonschema:"fusion method: weighted or rrf, default weighted"`
	Dynamic     bool     `json:"dynamic,omitempty" jsonschema:"derive per-query weights from anchor geometry"`
	Temperature float64  `json:"temperature,omitempty" jsonschema:"softmax temperature for dynamic routing"`
}

// SearchOutput defines the output schema for the video_search tool.
type SearchOutput struct {
	Results  []SearchResultOutput `json:"results" jsonschema:"fused ranking, best first"`
	Method   string               `json:"method" jsonschema:"fusion method that was applied"`
	Weights  map[string]float64   `json:"weights,omitempty" jsonschema:"effective modality weights, absent for rrf"`
	Degraded bool                 `json:"degraded,omitempty" jsonschema:"true when a modality was excluded due to retrieval failure"`
	Excluded []string             `json:"excluded_modalities,omitempty" jsonschema:"modalities excluded from fusion"`
}

// SearchResultOutput is one fused segment in the response, with per-modality
// evidence explaining why it matched.
type SearchResultOutput struct {
	VideoID        string             `json:"video_id" jsonschema:"video identifier"`
	SegmentID      int                `json:"segment_id" jsonschema:"segment index within the video"`
	StartTime      float64            `json:"start_time" jsonschema:"segment start in seconds"`
	EndTime        float64            `json:"end_time" jsonschema:"segment end in seconds"`
	MediaURI       string             `json:"media_uri,omitempty" jsonschema:"source media location"`
	FusionScore    float64            `json:"fusion_score" jsonschema:"combined score"`
	Confidence     float64            `json:"confidence" jsonschema:"interpretable confidence percentage, 0-100"`
	ModalityScores map[string]float64 `json:"modality_scores" jsonschema:"normalized score per matching modality"`
	ModalityRanks  map[string]int     `json:"modality_ranks,omitempty" jsonschema:"per-modality rank, rrf only"`
}

// WeightsInput defines the input schema for the compute_weights tool.
type WeightsInput struct {
	Query       string  `json:"query" jsonschema:"the query to route"`
	Temperature float64 `json:"temperature,omitempty" jsonschema:"softmax temperature, default from config"`
}

// WeightsOutput defines the output schema for the compute_weights tool.
type WeightsOutput struct {
	Weights      map[string]float64 `json:"weights" jsonschema:"softmax-normalized modality weights, sum to 1"`
	Similarities map[string]float64 `json:"similarities" jsonschema:"query-anchor cosine similarity per modality"`
}

// StatusInput is the (empty) input schema for the corpus_status tool.
type StatusInput struct{}

// StatusOutput defines the output schema for the corpus_status tool.
type StatusOutput struct {
	Videos       int    `json:"videos" jsonschema:"number of indexed videos"`
	Segments     int    `json:"segments" jsonschema:"number of indexed segments"`
	Backend      string `json:"backend" jsonschema:"vector backend in use"`
	Dimensions   int    `json:"dimensions" jsonschema:"embedding dimension"`
	Model        string `json:"model" jsonschema:"embedding model name"`
	EmbedderUp   bool   `json:"embedder_available" jsonschema:"whether the embedder is reachable"`
	AnchorsReady bool   `json:"anchors_ready" jsonschema:"whether dynamic routing anchors are initialized"`
}

// NewServer creates a new MCP server.
func NewServer(engine *search.Engine, metadata store.MetadataStore, embedder embed.Embedder, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		metadata: metadata,
		embedder: embedder,
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "vidfuse",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// SetMetrics sets the query metrics collector for telemetry.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "vidfuse", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "video_search",
			Description: toolDescSearch,
		},
		{
			Name:        "compute_weights",
			Description: toolDescWeights,
		},
		{
			Name:        "corpus_status",
			Description: toolDescStatus,
		},
	}
}

const (
	toolDescSearch = "Semantic video search across visual, audio, and transcription embedding spaces. " +
		"Describe what you want to see, hear, or what is said; results are fused into one ranking " +
		"with per-modality evidence explaining why each segment matched."
	toolDescWeights = "Compute per-query modality weights from anchor geometry without running a search. " +
		"Use to understand how a query would be routed across visual, audio, and transcription spaces."
	toolDescStatus = "Check corpus size, active embedding model, backend, and whether dynamic routing " +
		"anchors are ready. Use before searching to verify the corpus is ingested."
)

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "video_search":
		return s.handleSearchTool(ctx, args)
	case "compute_weights":
		return s.handleWeightsTool(ctx, args)
	case "corpus_status":
		return s.handleStatusTool(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleSearchTool handles the video_search tool invocation.
// Returns markdown-formatted results.
func (s *Server) handleSearchTool(ctx context.Context, args map[string]any) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	input := SearchInput{Query: query}
	if l, ok := args["limit"].(float64); ok {
		input.Limit = int(l)
	}
	if m, ok := args["method"].(string); ok {
		input.Method = m
	}
	if d, ok := args["dynamic"].(bool); ok {
		input.Dynamic = d
	}
	if t, ok := args["temperature"].(float64); ok {
		input.Temperature = t
	}
	if mods, ok := args["modalities"].([]interface{}); ok {
		for _, m := range mods {
			if str, ok := m.(string); ok {
				input.Modalities = append(input.Modalities, str)
			}
		}
	}

	s.logger.Info("video_search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", input.Limit))

	resp, err := s.engine.Search(ctx, query, s.searchOptions(input))
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("video_search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("video_search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
		slog.Bool("degraded", resp.Degraded))

	return FormatSearchResults(query, resp), nil
}

// handleWeightsTool handles the compute_weights tool invocation.
func (s *Server) handleWeightsTool(ctx context.Context, args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	temperature := 0.0
	if t, ok := args["temperature"].(float64); ok {
		temperature = t
	}

	weights, sims, err := s.computeWeights(ctx, query, temperature)
	if err != nil {
		return "", MapError(err)
	}

	return FormatWeights(query, weights, sims), nil
}

// handleStatusTool handles the corpus_status tool invocation.
func (s *Server) handleStatusTool(ctx context.Context) (*StatusOutput, error) {
	segments, err := s.metadata.CountSegments(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	videos, err := s.metadata.CountVideos(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &StatusOutput{
		Videos:       videos,
		Segments:     segments,
		Backend:      s.engine.Backend().Name(),
		Dimensions:   s.engine.Backend().Dimensions(),
		AnchorsReady: s.engine.Anchors().Initialized(),
	}
	if s.embedder != nil {
		out.Model = s.embedder.ModelName()
		out.EmbedderUp = s.embedder.Available(ctx)
	}
	return out, nil
}

// searchOptions converts tool input to engine options.
func (s *Server) searchOptions(input SearchInput) search.Options {
	opts := search.Options{
		Limit:       clampLimit(input.Limit, s.config.Search.DefaultLimit, 1, s.config.Search.MaxLimit),
		Method:      search.FusionMethod(input.Method),
		Dynamic:     input.Dynamic,
		Temperature: input.Temperature,
	}
	for _, m := range input.Modalities {
		opts.Modalities = append(opts.Modalities, store.Modality(m))
	}
	return opts
}

// computeWeights embeds the query and routes it through the anchor set.
func (s *Server) computeWeights(ctx context.Context, query string, temperature float64) (search.Weights, map[store.Modality]float64, error) {
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return s.engine.ComputeDynamicWeights(vector, temperature)
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "video_search",
		Description: toolDescSearch,
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "compute_weights",
		Description: toolDescWeights,
	}, s.mcpWeightsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "corpus_status",
		Description: toolDescStatus,
	}, s.mcpStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// mcpSearchHandler is the MCP SDK handler for the video_search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	resp, err := s.engine.Search(ctx, input.Query, s.searchOptions(input))
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	return nil, toSearchOutput(resp), nil
}

// mcpWeightsHandler is the MCP SDK handler for the compute_weights tool.
func (s *Server) mcpWeightsHandler(ctx context.Context, _ *mcp.CallToolRequest, input WeightsInput) (
	*mcp.CallToolResult,
	WeightsOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, WeightsOutput{}, NewInvalidParamsError("query parameter is required")
	}

	weights, sims, err := s.computeWeights(ctx, input.Query, input.Temperature)
	if err != nil {
		return nil, WeightsOutput{}, MapError(err)
	}

	out := WeightsOutput{
		Weights:      make(map[string]float64, len(weights)),
		Similarities: make(map[string]float64, len(sims)),
	}
	for m, w := range weights {
		out.Weights[string(m)] = w
	}
	for m, sim := range sims {
		out.Similarities[string(m)] = sim
	}
	return nil, out, nil
}

// mcpStatusHandler is the MCP SDK handler for the corpus_status tool.
func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	out, err := s.handleStatusTool(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, out, nil
}

// toSearchOutput converts an engine response to the tool output schema.
func toSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Results:  make([]SearchResultOutput, 0, len(resp.Results)),
		Method:   string(resp.Method),
		Degraded: resp.Degraded,
	}
	for _, m := range resp.ExcludedModalities {
		out.Excluded = append(out.Excluded, string(m))
	}
	if len(resp.WeightsUsed) > 0 {
		out.Weights = make(map[string]float64, len(resp.WeightsUsed))
		for m, w := range resp.WeightsUsed {
			out.Weights[string(m)] = w
		}
	}

	for _, r := range resp.Results {
		ro := SearchResultOutput{
			VideoID:        r.VideoID,
			SegmentID:      r.SegmentID,
			StartTime:      r.Meta.StartTime,
			EndTime:        r.Meta.EndTime,
			MediaURI:       r.Meta.MediaURI,
			FusionScore:    r.FusionScore,
			Confidence:     r.Confidence,
			ModalityScores: make(map[string]float64, len(r.ModalityScores)),
		}
		for m, score := range r.ModalityScores {
			ro.ModalityScores[string(m)] = score
		}
		if len(r.ModalityRanks) > 0 {
			ro.ModalityRanks = make(map[string]int, len(r.ModalityRanks))
			for m, rank := range r.ModalityRanks {
				ro.ModalityRanks[string(m)] = rank
			}
		}
		out.Results = append(out.Results, ro)
	}
	return out
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server stops when its context is canceled.
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
