package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/pkg/run"
)

// loadRun fetches a run snapshot through the LRU cache.
func (h *Handler) loadRun(ctx context.Context, runID string) (*run.Snapshot, error) {
	if snap := h.cache.Get(runID); snap != nil {
		return snap, nil
	}

	snap, err := h.runs.FetchRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	h.cache.Put(runID, snap)
	return snap, nil
}

// loadRunOr404 loads a run and writes the error response on failure.
func (h *Handler) loadRunOr404(w http.ResponseWriter, ctx context.Context, runID string) (*run.Snapshot, bool) {
	snap, err := h.loadRun(ctx, runID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found: "+runID)
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load run: "+err.Error())
		}
		return nil, false
	}
	return snap, true
}

// handleGetRun handles GET /api/v1/runs/{runID}: it returns the full
// archived snapshot, pages and all.
func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadRunOr404(w, r.Context(), r.PathValue("runID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleGetReport handles GET /api/v1/runs/{runID}/report: it serves the
// markdown report rendered when the run was archived.
func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")

	report, err := h.runs.FetchReport(r.Context(), runID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found: "+runID)
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load report: "+err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}
