package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pagepulse/pagepulse/pkg/run"
)

// maxIngestBody caps decoded request bodies at 10 MiB.
const maxIngestBody = 10 << 20

type ingestResponse struct {
	RunID      string `json:"run_id"`
	Product    string `json:"product"`
	Score100   int    `json:"score100"`
	Grade      string `json:"grade"`
	StorageRef string `json:"storage_ref"`
}

// handleIngestRun handles POST /api/v1/runs: it accepts a full run snapshot
// (optionally gzip-compressed), archives it and returns the stored row's
// identity. Collectors usually push here straight from CI.
func (h *Handler) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = io.LimitReader(r.Body, maxIngestBody)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid gzip body: "+err.Error())
			return
		}
		defer gz.Close()
		body = gz
	}

	var snap run.Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid run snapshot JSON: "+err.Error())
		return
	}

	row, err := h.runs.StoreRun(r.Context(), &snap)
	if err != nil {
		var integrity *run.IntegrityError
		if errors.As(err, &integrity) {
			writeError(w, http.StatusBadRequest, integrity.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to archive run: "+err.Error())
		return
	}

	h.cache.Put(snap.ID, &snap)

	if h.notifier != nil {
		if err := h.notifier.RunArchived(r.Context(), &snap); err != nil {
			h.logger.Warn("run notification failed", "run_id", snap.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		RunID:      row.ID,
		Product:    run.Slug(snap.Product),
		Score100:   row.Score,
		Grade:      row.Grade,
		StorageRef: row.StorageRef,
	})
}
