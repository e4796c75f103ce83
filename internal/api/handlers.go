package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vidfuse/vidfuse/internal/embed"
	vferrors "github.com/vidfuse/vidfuse/internal/errors"
	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
)

// searchRequest is the body of POST /api/v1/search.
type searchRequest struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty"`
	Modalities  []string `json:"modalities,omitempty"`
	Method      string   `json:"method,omitempty"`
	Dynamic     bool     `json:"dynamic,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
}

// searchResult is one entry in the search response.
type searchResult struct {
	VideoID        string             `json:"video_id"`
	SegmentID      int                `json:"segment_id"`
	StartTime      float64            `json:"start_time"`
	EndTime        float64            `json:"end_time"`
	MediaURI       string             `json:"media_uri,omitempty"`
	FusionScore    float64            `json:"fusion_score"`
	Confidence     float64            `json:"confidence"`
	ModalityScores map[string]float64 `json:"modality_scores"`
	ModalityRanks  map[string]int     `json:"modality_ranks,omitempty"`
}

// searchResponse is the body of a successful search.
type searchResponse struct {
	Query        string             `json:"query"`
	Method       string             `json:"method"`
	Results      []searchResult     `json:"results"`
	Weights      map[string]float64 `json:"weights,omitempty"`
	Similarities map[string]float64 `json:"anchor_similarities,omitempty"`
	Degraded     bool               `json:"degraded,omitempty"`
	Excluded     []string           `json:"excluded_modalities,omitempty"`
	ElapsedMs    int64              `json:"elapsed_ms"`
}

// weightsRequest is the body of POST /api/v1/weights.
type weightsRequest struct {
	Query       string  `json:"query"`
	Temperature float64 `json:"temperature,omitempty"`
}

// weightsResponse is the body of a successful weights call.
type weightsResponse struct {
	Query        string             `json:"query"`
	Weights      map[string]float64 `json:"weights"`
	Similarities map[string]float64 `json:"anchor_similarities"`
	Temperature  float64            `json:"temperature"`
}

// ingestRequest is the body of POST /api/v1/videos.
type ingestRequest struct {
	VideoID        string  `json:"video_id"`
	MediaURI       string  `json:"media_uri"`
	SegmentSeconds float64 `json:"segment_seconds,omitempty"`
}

// ingestResponse is the body of a successful ingest.
type ingestResponse struct {
	VideoID  string `json:"video_id"`
	Segments int    `json:"segments"`
}

// videoResponse is the body of GET /api/v1/videos/{id}.
type videoResponse struct {
	VideoID  string         `json:"video_id"`
	MediaURI string         `json:"media_uri,omitempty"`
	Segments []videoSegment `json:"segments"`
}

type videoSegment struct {
	SegmentID int     `json:"segment_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// statusResponse is the body of GET /api/v1/status.
type statusResponse struct {
	Videos       int    `json:"videos"`
	Segments     int    `json:"segments"`
	Backend      string `json:"backend"`
	Dimensions   int    `json:"dimensions"`
	Model        string `json:"model,omitempty"`
	EmbedderUp   bool   `json:"embedder_up"`
	AnchorsReady bool   `json:"anchors_ready"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.respondError(w, r, http.StatusBadRequest, errors.New("query is required"))
		return
	}

	opts := search.Options{
		Limit:       req.Limit,
		Method:      search.FusionMethod(req.Method),
		Dynamic:     req.Dynamic,
		Temperature: req.Temperature,
	}
	for _, m := range req.Modalities {
		opts.Modalities = append(opts.Modalities, store.Modality(m))
	}

	resp, err := s.engine.Search(r.Context(), query, opts)
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSearchResponse(query, resp))
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.respondError(w, r, http.StatusBadRequest, errors.New("query is required"))
		return
	}

	vector, err := s.embedder.EmbedText(r.Context(), query)
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}
	weights, sims, err := s.engine.ComputeDynamicWeights(vector, req.Temperature)
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = s.config.Routing.Temperature
	}
	s.respondJSON(w, http.StatusOK, weightsResponse{
		Query:        query,
		Weights:      modalityFloats(weights),
		Similarities: modalityFloats(sims),
		Temperature:  temperature,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.VideoID == "" || req.MediaURI == "" {
		s.respondError(w, r, http.StatusBadRequest, errors.New("video_id and media_uri are required"))
		return
	}

	segments, err := s.embedder.EmbedVideo(r.Context(), embed.VideoRequest{
		VideoID:        req.VideoID,
		MediaURI:       req.MediaURI,
		SegmentSeconds: req.SegmentSeconds,
	})
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}
	if err := s.engine.Index(r.Context(), req.VideoID, req.MediaURI, segments); err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}

	s.logger.Info("video ingested", "video_id", req.VideoID, "segments", len(segments))
	s.respondJSON(w, http.StatusCreated, ingestResponse{
		VideoID:  req.VideoID,
		Segments: len(segments),
	})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.metadata.ListVideos(r.Context())
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}
	if videos == nil {
		videos = []*store.VideoSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	segments, err := s.metadata.SegmentsByVideo(r.Context(), videoID)
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}
	if len(segments) == 0 {
		s.respondError(w, r, http.StatusNotFound, fmt.Errorf("video %q not found", videoID))
		return
	}

	resp := videoResponse{VideoID: videoID, MediaURI: segments[0].MediaURI}
	for _, seg := range segments {
		resp.Segments = append(resp.Segments, videoSegment{
			SegmentID: seg.SegmentID,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	segments, err := s.metadata.CountSegments(r.Context())
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}
	videos, err := s.metadata.CountVideos(r.Context())
	if err != nil {
		s.respondError(w, r, httpStatusFor(err), err)
		return
	}

	resp := statusResponse{
		Videos:       videos,
		Segments:     segments,
		Backend:      s.engine.Backend().Name(),
		Dimensions:   s.engine.Backend().Dimensions(),
		AnchorsReady: s.engine.Anchors().Initialized(),
	}
	if s.embedder != nil {
		resp.Model = s.embedder.ModelName()
		resp.EmbedderUp = s.embedder.Available(r.Context())
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.respondError(w, r, http.StatusNotFound, errors.New("telemetry is disabled"))
		return
	}
	s.respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// toSearchResponse converts an engine response to the wire shape.
func toSearchResponse(query string, resp *search.Response) searchResponse {
	out := searchResponse{
		Query:     query,
		Method:    string(resp.Method),
		Results:   make([]searchResult, 0, len(resp.Results)),
		Degraded:  resp.Degraded,
		ElapsedMs: resp.Elapsed.Milliseconds(),
	}
	if len(resp.WeightsUsed) > 0 {
		out.Weights = modalityFloats(resp.WeightsUsed)
	}
	if len(resp.Similarities) > 0 {
		out.Similarities = modalityFloats(resp.Similarities)
	}
	for _, m := range resp.ExcludedModalities {
		out.Excluded = append(out.Excluded, string(m))
	}
	for _, r := range resp.Results {
		sr := searchResult{
			VideoID:        r.VideoID,
			SegmentID:      r.SegmentID,
			StartTime:      r.Meta.StartTime,
			EndTime:        r.Meta.EndTime,
			MediaURI:       r.Meta.MediaURI,
			FusionScore:    r.FusionScore,
			Confidence:     r.Confidence,
			ModalityScores: modalityFloats(r.ModalityScores),
		}
		if len(r.ModalityRanks) > 0 {
			sr.ModalityRanks = make(map[string]int, len(r.ModalityRanks))
			for m, rank := range r.ModalityRanks {
				sr.ModalityRanks[string(m)] = rank
			}
		}
		out.Results = append(out.Results, sr)
	}
	return out
}

func modalityFloats[M ~string](in map[M]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

// httpStatusFor maps domain errors to HTTP status codes. Validation errors
// are the client's fault, backend and embedder outages are upstream, anchors
// not being initialized is a state conflict the client can resolve.
func httpStatusFor(err error) int {
	var fe *vferrors.FuseError
	if errors.As(err, &fe) {
		switch fe.Code {
		case vferrors.ErrCodeAnchorsNotInit:
			return http.StatusConflict
		case vferrors.ErrCodeNetworkTimeout:
			return http.StatusGatewayTimeout
		case vferrors.ErrCodeBackendUnavailable, vferrors.ErrCodeEmbedUnavailable:
			return http.StatusServiceUnavailable
		}
		switch fe.Category {
		case vferrors.CategoryValidation:
			return http.StatusBadRequest
		case vferrors.CategoryBackend:
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var fe *vferrors.FuseError
	if errors.As(err, &fe) {
		resp.Error = fe.Message
		resp.Code = fe.Code
		resp.Suggestion = fe.Suggestion
	}
	if status >= http.StatusInternalServerError {
		args := []any{
			"path", r.URL.Path,
			"status", status,
			"request_id", RequestID(r.Context()),
		}
		for k, v := range vferrors.FormatForLog(err) {
			args = append(args, k, v)
		}
		s.logger.Error("request failed", args...)
		if resp.Code == "" {
			// Do not leak internals for unclassified errors.
			resp.Error = "internal server error"
		}
	}
	s.respondJSON(w, status, resp)
}
