package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pagepulse/pagepulse/internal/archive"
)

type rescoreRequest struct {
	Product string `json:"product"` // optional filter
}

// handleRescore handles POST /api/v1/rescore: it replays archived runs
// through the current scoring config and rewrites blobs and index rows in
// place. An empty body (or empty product) rescores every product.
func (h *Handler) handleRescore(w http.ResponseWriter, r *http.Request) {
	var req rescoreRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := h.runs.Rescore(r.Context(), h.kpi(), req.Product)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown product: "+req.Product)
			return
		}
		writeError(w, http.StatusInternalServerError, "rescore failed: "+err.Error())
		return
	}

	// Every cached snapshot may now carry stale scores.
	h.cache.Clear()
	writeJSON(w, http.StatusOK, res)
}
