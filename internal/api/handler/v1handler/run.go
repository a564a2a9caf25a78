package v1handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"popgrid/internal/summary"
	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"

	"github.com/google/uuid"
)

// runResponse is the wire form of a run.
type runResponse struct {
	ID          string              `json:"id"`
	Params      domain.RunParams    `json:"params"`
	Status      domain.RunStatus    `json:"status"`
	Metadata    *domain.RunMetadata `json:"metadata,omitempty"`
	ResultRunID *string             `json:"resultRunId,omitempty"`
	CreatedAt   string              `json:"createdAt"`
	UpdatedAt   string              `json:"updatedAt,omitempty"`
}

func runToResponse(run *domain.Run) runResponse {
	out := runResponse{
		ID:        uuid.UUID(run.ID).String(),
		Params:    run.Params,
		Status:    run.Status,
		Metadata:  run.Metadata,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
	}
	if run.ResultRunID != nil {
		s := uuid.UUID(*run.ResultRunID).String()
		out.ResultRunID = &s
	}
	if !run.UpdatedAt.IsZero() {
		out.UpdatedAt = run.UpdatedAt.Format(time.RFC3339)
	}

	return out
}

// createRunRequest is the body of POST /v1/runs. Empty axes default to the
// configured full sets.
type createRunRequest struct {
	Countries []string `json:"countries"`
	AgeGroups []string `json:"ageGroups"`
	Sexes     []string `json:"sexes"`
}

// CreateRun submits a new aggregation run.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, serrors.Wrap(serrors.ErrBadRequest, err, "invalid request body"))

		return
	}

	run, err := h.deps.Service.Enqueue(r.Context(), domain.RunParams{
		Countries: req.Countries,
		AgeGroups: req.AgeGroups,
		Sexes:     req.Sexes,
	})
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	writeJSON(r.Context(), w, http.StatusAccepted, runToResponse(run))
}

// runListResponse is the wire form of a run page.
type runListResponse struct {
	Items      []runResponse `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// ListRuns returns a page of runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := uint(DefaultLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			writeError(r.Context(), w, serrors.With(serrors.ErrBadRequest, "invalid limit %q", raw))

			return
		}
		limit = uint(n)
	}

	runs, next, err := h.deps.Service.Runs(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	items := make([]runResponse, 0, len(runs))
	for i := range runs {
		items = append(items, runToResponse(&runs[i]))
	}
	writeJSON(r.Context(), w, http.StatusOK, runListResponse{Items: items, NextCursor: next})
}

// runID parses the {id} path value.
func runID(r *http.Request) (domain.RunID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return domain.RunID{}, serrors.Wrap(serrors.ErrBadRequest, err, "invalid run id")
	}

	return domain.RunID(id), nil
}

// GetRun returns a single run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	run, err := h.deps.Service.Run(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, runToResponse(run))
}

// GetRunSummary returns the summary table of a completed run, as JSON by
// default or as CSV when the client asks for text/csv.
func (h *Handler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	table, err := h.deps.Service.Summary(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="summary.csv"`)
		if err := summary.WriteCSV(w, table); err != nil {
			writeError(r.Context(), w, err)
		}

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, table)
}

// GetRunCounts returns the raw aggregated counts of a completed run.
func (h *Handler) GetRunCounts(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	counts, err := h.deps.Service.Counts(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, counts)
}

// GetRunIndicators returns the per-district indicator records of a completed
// run. Undefined indicator values render as null.
func (h *Handler) GetRunIndicators(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	records, err := h.deps.Service.Indicators(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, records)
}
