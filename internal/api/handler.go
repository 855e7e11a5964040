// Package api implements the hosted Pagepulse REST API.
// It provides ingest and read endpoints backed by Postgres and blob storage.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/internal/ingest"
	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/run"
)

// ProductIndex is the slice of the archive the API reads and writes.
type ProductIndex interface {
	GetProduct(ctx context.Context, name string) (*archive.Product, error)
	ListProducts(ctx context.Context) ([]archive.Product, error)
	GetRun(ctx context.Context, runID string) (*archive.RunRow, error)
	ListRuns(ctx context.Context, productID string, limit int) ([]archive.RunRow, error)
	SetDisplayName(ctx context.Context, name, displayName string) (*archive.Product, error)
	DeleteProduct(ctx context.Context, name string) error
}

// RunStore archives and retrieves full run snapshots.
type RunStore interface {
	StoreRun(ctx context.Context, snap *run.Snapshot) (*archive.RunRow, error)
	FetchRun(ctx context.Context, runID string) (*run.Snapshot, error)
	FetchReport(ctx context.Context, runID string) ([]byte, error)
	Rescore(ctx context.Context, cfg *kpi.Config, product string) (*ingest.RescoreResult, error)
}

// Notifier pushes summaries of archived runs to an external receiver.
type Notifier interface {
	RunArchived(ctx context.Context, snap *run.Snapshot) error
}

// Handler is the top-level API handler for the hosted Pagepulse service.
type Handler struct {
	index    ProductIndex
	runs     RunStore
	cache    *RunCache
	kpi      func() *kpi.Config
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler creates a new API handler. kpiConfig supplies the current
// scoring config (it may change under hot reload); nil means defaults.
// notifier may be nil to disable outbound notifications.
func NewHandler(index ProductIndex, runs RunStore, cache *RunCache, kpiConfig func() *kpi.Config, notifier Notifier, logger *slog.Logger) *Handler {
	if cache == nil {
		cache = NewRunCacheFromEnv()
	}
	if kpiConfig == nil {
		kpiConfig = kpi.Default
	}
	return &Handler{
		index:    index,
		runs:     runs,
		cache:    cache,
		kpi:      kpiConfig,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Write endpoints
	mux.HandleFunc("POST /api/v1/runs", h.handleIngestRun)
	mux.HandleFunc("POST /api/v1/rescore", h.handleRescore)
	mux.HandleFunc("PATCH /api/v1/products/{product}", h.handleUpdateProduct)
	mux.HandleFunc("DELETE /api/v1/products/{product}", h.handleDeleteProduct)

	// Read endpoints
	mux.HandleFunc("GET /api/v1/products", h.handleListProducts)
	mux.HandleFunc("GET /api/v1/products/{product}/runs", h.handleListRuns)
	mux.HandleFunc("GET /api/v1/products/{product}/history", h.handleHistory)
	mux.HandleFunc("GET /api/v1/products/{product}/diff", h.handleDiff)
	mux.HandleFunc("GET /api/v1/runs/{runID}", h.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{runID}/report", h.handleGetReport)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
