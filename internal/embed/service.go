package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	vferrors "github.com/vidfuse/vidfuse/internal/errors"
	"github.com/vidfuse/vidfuse/internal/store"
)

// Service embedder defaults.
const (
	// DefaultServiceHost is the default embedding service address.
	DefaultServiceHost = "http://localhost:8765"

	// DefaultServiceModel is the default multi-modal embedding model.
	DefaultServiceModel = "marengo-embed-2.7"

	// servicePoolSize bounds idle connections to the embedding service.
	servicePoolSize = 4
)

// ServiceConfig configures the HTTP embedding service client.
type ServiceConfig struct {
	// Host is the embedding service base URL.
	Host string

	// Model is the embedding model to request.
	Model string

	// Dimensions is the expected embedding dimension. Zero auto-detects from
	// the service on first use.
	Dimensions int

	// TextTimeout bounds single text embedding requests.
	TextTimeout time.Duration

	// VideoTimeout bounds whole-video embedding requests.
	VideoTimeout time.Duration

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int

	// SkipHealthCheck skips the startup health check (testing only).
	SkipHealthCheck bool
}

// ServiceEmbedder generates embeddings via a remote embedding service's HTTP API.
type ServiceEmbedder struct {
	client    *http.Client
	transport *http.Transport // Store for connection cleanup
	config    ServiceConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

// Verify interface implementation at compile time
var _ Embedder = (*ServiceEmbedder)(nil)

// NewServiceEmbedder creates an embedder backed by the remote embedding service.
func NewServiceEmbedder(ctx context.Context, cfg ServiceConfig) (*ServiceEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultServiceHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultServiceModel
	}
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = DefaultWarmTimeout
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = DefaultVideoTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	// Video embedding jobs hold a connection open for minutes, so keep the
	// pool small and let idle connections die quickly.
	transport := &http.Transport{
		MaxIdleConns:        servicePoolSize,
		MaxIdleConnsPerHost: servicePoolSize,
		MaxConnsPerHost:     servicePoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   false,
	}

	// No client-level timeout: per-request context timeouts differ between
	// text queries and video jobs, and a static client timeout would override
	// them.
	client := &http.Client{
		Transport: transport,
	}

	e := &ServiceEmbedder{
		client:    client,
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, ServiceConnectTimeout)
		defer cancel()

		if !e.Available(checkCtx) {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("embedding service unreachable at %s", cfg.Host)
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// textRequest is the wire format for text embedding requests.
type textRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// textResponse is the wire format for text embedding responses.
type textResponse struct {
	Embedding []float32 `json:"embedding"`
}

// videoRequest is the wire format for video embedding requests.
type videoRequest struct {
	Model          string  `json:"model"`
	MediaURI       string  `json:"media_uri"`
	SegmentSeconds float64 `json:"segment_seconds,omitempty"`
}

// videoResponse is the wire format for video embedding responses.
type videoResponse struct {
	Segments []videoSegment `json:"segments"`
}

type videoSegment struct {
	SegmentID  int                  `json:"segment_id"`
	StartTime  float64              `json:"start_time"`
	EndTime    float64              `json:"end_time"`
	Embeddings map[string][]float32 `json:"embeddings"`
}

// EmbedText generates the query embedding for a text string.
func (e *ServiceEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if text == "" {
		return nil, fmt.Errorf("text must not be empty")
	}

	var result textResponse
	err := vferrors.Retry(ctx, vferrors.RetryConfig{MaxRetries: e.config.MaxRetries, InitialDelay: time.Second, MaxDelay: 16 * time.Second, Multiplier: 2.0, Jitter: true}, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.TextTimeout)
		defer cancel()
		return e.post(reqCtx, "/v1/embeddings/text", textRequest{Model: e.config.Model, Text: text}, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	e.recordDimensions(len(result.Embedding))

	return normalizeVector(result.Embedding), nil
}

// EmbedVideo segments a video and generates per-segment embeddings.
func (e *ServiceEmbedder) EmbedVideo(ctx context.Context, req VideoRequest) ([]SegmentEmbedding, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if req.MediaURI == "" {
		return nil, fmt.Errorf("media URI must not be empty")
	}

	start := time.Now()
	var result videoResponse
	err := vferrors.Retry(ctx, vferrors.RetryConfig{MaxRetries: e.config.MaxRetries, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: true}, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.VideoTimeout)
		defer cancel()
		return e.post(reqCtx, "/v1/embeddings/video", videoRequest{
			Model:          e.config.Model,
			MediaURI:       req.MediaURI,
			SegmentSeconds: req.SegmentSeconds,
		}, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("embed video %s: %w", req.VideoID, err)
	}

	segments := make([]SegmentEmbedding, 0, len(result.Segments))
	for _, seg := range result.Segments {
		vectors := make(map[store.Modality][]float32, len(seg.Embeddings))
		for name, vec := range seg.Embeddings {
			modality, perr := store.ParseModality(name)
			if perr != nil {
				slog.Warn("skipping unknown modality in embedding response",
					slog.String("video_id", req.VideoID),
					slog.String("modality", name))
				continue
			}
			if len(vec) == 0 {
				continue
			}
			e.recordDimensions(len(vec))
			vectors[modality] = normalizeVector(vec)
		}
		if len(vectors) == 0 {
			continue
		}
		segments = append(segments, SegmentEmbedding{
			SegmentID: seg.SegmentID,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Vectors:   vectors,
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].SegmentID < segments[j].SegmentID
	})

	slog.Debug("video embedded",
		slog.String("video_id", req.VideoID),
		slog.Int("segments", len(segments)),
		slog.Duration("elapsed", time.Since(start)))

	return segments, nil
}

// post sends a JSON request and decodes a JSON response.
func (e *ServiceEmbedder) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to embedding service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// recordDimensions remembers the dimension observed from the service when it
// was not configured explicitly.
func (e *ServiceEmbedder) recordDimensions(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 {
		e.dims = n
	}
}

// Dimensions returns the embedding dimension.
func (e *ServiceEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dims == 0 {
		return DefaultDimensions
	}
	return e.dims
}

// ModelName returns the model identifier.
func (e *ServiceEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks service health via GET /health.
func (e *ServiceEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP connections.
func (e *ServiceEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
