// Package api exposes the pipeline stages over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
)

const maxBodyBytes = 1 << 20

// Pipeline is the set of operations served by the router
type Pipeline interface {
	FetchTrends(ctx context.Context, req models.TrendRequest) (*models.TrendsResponse, error)
	GenerateIdeas(ctx context.Context, req models.IdeasRequest) (*models.IdeasResponse, error)
	GeneratePosts(ctx context.Context, req models.PostsRequest) (*models.PostsResponse, error)
	InvalidateCache(platform string) (int, error)
	RunRefresh() error
	GetMetrics() string
}

// Handler serves the HTTP surface of the pipeline
type Handler struct {
	pipeline Pipeline
	now      func() time.Time

	// set while a manually triggered refresh runs
	refreshing atomic.Bool
}

// NewHandler creates a handler backed by p
func NewHandler(p Pipeline) *Handler {
	return &Handler{pipeline: p, now: time.Now}
}

// Router returns the routes served by h
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.health).Methods("GET")
	router.HandleFunc("/metrics", h.metrics).Methods("GET")

	router.HandleFunc("/trends/fetch", h.fetchTrends).Methods("POST")
	router.HandleFunc("/ideas/generate", h.generateIdeas).Methods("POST")
	router.HandleFunc("/posts/generate", h.generatePosts).Methods("POST")

	router.HandleFunc("/cache/invalidate", h.invalidateCache).Methods("POST")
	router.HandleFunc("/refresh", h.triggerRefresh).Methods("POST")

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.pipeline.GetMetrics()))
}

func (h *Handler) fetchTrends(w http.ResponseWriter, r *http.Request) {
	var req models.TrendRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.pipeline.FetchTrends(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) generateIdeas(w http.ResponseWriter, r *http.Request) {
	var req models.IdeasRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.pipeline.GenerateIdeas(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) generatePosts(w http.ResponseWriter, r *http.Request) {
	var req models.PostsRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.pipeline.GeneratePosts(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type invalidateRequest struct {
	Platform string `json:"platform"`
}

func (h *Handler) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	// An empty body invalidates every platform.
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, err)
		return
	}
	removed, err := h.pipeline.InvalidateCache(req.Platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handler) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.refreshing.CompareAndSwap(false, true) {
		writeError(w, apperrors.ErrRefreshInProgress)
		return
	}
	go func() {
		defer h.refreshing.Store(false)
		if err := h.pipeline.RunRefresh(); err != nil {
			logrus.Errorf("Manual trend refresh failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Trend refresh triggered"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		badRequest(w, err)
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
}

// StatusFor maps a pipeline failure onto an HTTP status code.
func StatusFor(err error) int {
	var backendErr *llm.BackendError
	switch {
	case errors.Is(err, apperrors.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrRefreshInProgress):
		return http.StatusConflict
	case apperrors.IsConfiguration(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &backendErr),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case apperrors.IsExternalService(err), apperrors.IsProtocol(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.Errorf("Request failed with status %d: %v", status, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
