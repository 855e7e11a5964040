package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

type productResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type runRowResponse struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	TakenAt    string  `json:"taken_at"`
	Score100   int     `json:"score100"`
	Grade      string  `json:"grade"`
	Score5     float64 `json:"score5"`
	PageCount  int     `json:"page_count"`
	StorageRef string  `json:"storage_ref"`
	CreatedAt  string  `json:"created_at"`
	RescoredAt string  `json:"rescored_at,omitempty"`
}

type historyResponse struct {
	Series *trend.Series       `json:"series"`
	Movers *trend.MoversResult `json:"movers,omitempty"`
}

func toProductResponse(p archive.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toRunRowResponse(row archive.RunRow) runRowResponse {
	resp := runRowResponse{
		ID:         row.ID,
		ProductID:  row.ProductID,
		TakenAt:    row.TakenAt.UTC().Format(time.RFC3339),
		Score100:   row.Score,
		Grade:      row.Grade,
		Score5:     row.Score5,
		PageCount:  row.PageCount,
		StorageRef: row.StorageRef,
		CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
	}
	if row.RescoredAt != nil {
		resp.RescoredAt = row.RescoredAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.index.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products: "+err.Error())
		return
	}

	result := make([]productResponse, 0, len(products))
	for _, p := range products {
		result = append(result, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, result)
}

// lookupProduct resolves the {product} path value against the index. On
// failure it writes the error response and returns nil.
func (h *Handler) lookupProduct(w http.ResponseWriter, r *http.Request) *archive.Product {
	name := r.PathValue("product")
	p, err := h.index.GetProduct(r.Context(), name)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown product: "+name)
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load product: "+err.Error())
		}
		return nil
	}
	return p
}

func parseLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	p := h.lookupProduct(w, r)
	if p == nil {
		return
	}

	rows, err := h.index.ListRuns(r.Context(), p.ID, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs: "+err.Error())
		return
	}

	result := make([]runRowResponse, 0, len(rows))
	for _, row := range rows {
		result = append(result, toRunRowResponse(row))
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHistory handles GET /api/v1/products/{product}/history: it folds the
// archived runs into a score series plus the biggest page movers over the
// window. A product with no loadable runs gets an empty series, not an error.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p := h.lookupProduct(w, r)
	if p == nil {
		return
	}

	ctx := r.Context()
	rows, err := h.index.ListRuns(ctx, p.ID, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs: "+err.Error())
		return
	}

	snaps := make([]*run.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := h.loadRun(ctx, row.ID)
		if err != nil {
			h.logger.Warn("skipping unreadable run", "run_id", row.ID, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}

	series, err := trend.BuildSeries(snaps)
	if err != nil {
		if errors.Is(err, run.ErrInsufficientHistory) {
			empty := &trend.Series{Product: p.DisplayName, Points: []trend.Point{}}
			writeJSON(w, http.StatusOK, historyResponse{Series: empty})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to build history: "+err.Error())
		return
	}

	resp := historyResponse{Series: series}
	if movers, err := trend.TopMovers(snaps, 0); err == nil {
		resp.Movers = movers
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDiff handles GET /api/v1/products/{product}/diff?base=&head=.
// Without explicit run IDs it compares the two most recent archived runs.
func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	p := h.lookupProduct(w, r)
	if p == nil {
		return
	}

	ctx := r.Context()
	baseID := r.URL.Query().Get("base")
	headID := r.URL.Query().Get("head")

	if baseID == "" || headID == "" {
		rows, err := h.index.ListRuns(ctx, p.ID, 2)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list runs: "+err.Error())
			return
		}
		if headID == "" {
			if len(rows) < 1 {
				writeError(w, http.StatusNotFound, "no runs archived for product "+p.Name)
				return
			}
			headID = rows[0].ID
		}
		if baseID == "" {
			if len(rows) < 2 {
				writeError(w, http.StatusNotFound, "need at least two archived runs to diff")
				return
			}
			baseID = rows[1].ID
		}
	}

	base, ok := h.loadRunOr404(w, ctx, baseID)
	if !ok {
		return
	}
	head, ok := h.loadRunOr404(w, ctx, headID)
	if !ok {
		return
	}

	res, err := diff.Compute(base, head)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateProductRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("product")

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	p, err := h.index.SetDisplayName(r.Context(), name, req.DisplayName)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown product: "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update product: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("product")

	if err := h.index.DeleteProduct(r.Context(), name); err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown product: "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete product: "+err.Error())
		return
	}

	// Run rows went with the product; cached snapshots must go too.
	h.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
