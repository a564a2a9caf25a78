// Package v1handler implements the v1 HTTP API: run submission, run queries
// and result retrieval, with JWT bearer authentication.
package v1handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"popgrid/internal/pipeline"
	"popgrid/pkg/logger"
	"popgrid/pkg/serrors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultLimit is the page size used when a list request does not specify one.
const DefaultLimit = 20

// Deps holds the dependencies of the v1 handler.
type Deps struct {
	// Service executes and answers run requests.
	Service pipeline.Service
}

// Handler serves the v1 API routes.
type Handler struct {
	deps Deps

	// requests counts handled requests per operation and status code.
	requests metric.Int64Counter
}

// New constructs a Handler. meter records per-operation request counts; the
// otel meter provider is wired to the shared Prometheus registry by the
// server.
func New(deps Deps, meter metric.Meter) (*Handler, error) {
	requests, err := meter.Int64Counter("popgrid_api_requests",
		metric.WithDescription("API requests partitioned by operation and status code."))
	if err != nil {
		return nil, err //nolint: wrapcheck
	}

	return &Handler{deps: deps, requests: requests}, nil
}

// Routes returns the v1 route table. Paths are absolute, including the /v1
// prefix, and matched with method-qualified patterns.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", h.instrument("CreateRun", h.CreateRun))
	mux.HandleFunc("GET /v1/runs", h.instrument("ListRuns", h.ListRuns))
	mux.HandleFunc("GET /v1/runs/{id}", h.instrument("GetRun", h.GetRun))
	mux.HandleFunc("GET /v1/runs/{id}/summary", h.instrument("GetRunSummary", h.GetRunSummary))
	mux.HandleFunc("GET /v1/runs/{id}/counts", h.instrument("GetRunCounts", h.GetRunCounts))
	mux.HandleFunc("GET /v1/runs/{id}/indicators", h.instrument("GetRunIndicators", h.GetRunIndicators))

	return mux
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps an endpoint with the per-operation request counter.
func (h *Handler) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		h.requests.Add(r.Context(), 1,
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.Int("status", rec.status)))
	}
}

// errorBody is the JSON error envelope of all v1 endpoints.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(ctx, "could not encode response", zap.Error(err))
	}
}

// writeError maps semantic error kinds to HTTP status codes. Internal details
// are logged but never leaked for 5xx responses.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, serrors.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, serrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, serrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, serrors.ErrConflict):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", zap.Error(err))
		msg = "internal error"
	}

	writeJSON(ctx, w, status, errorBody{Error: msg})
}
