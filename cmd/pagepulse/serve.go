package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

func newServeCmd() *cobra.Command {
	var (
		storeDir string
		port     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local run history over HTTP",
		Long: `Starts a read-only API on localhost backed by the local history store.
Point a dashboard at it to browse products, runs, trends, and diffs
without a hosted archive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(storeDir, port)
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", "", "History store root (default: history_dir from .pagepulse.yml)")
	cmd.Flags().StringVar(&port, "port", "7700", "Port to serve on")

	return cmd
}

func runServe(storeDir, port string) error {
	cfg := loadProjectConfig()
	dir := firstNonEmpty(storeDir, cfg.StoreDir())

	srv := &localServer{store: run.NewStore(dir)}
	handler := localCORS(srv.routes())

	fmt.Fprintf(os.Stderr, "Pagepulse local API\n")
	fmt.Fprintf(os.Stderr, "  Store:      %s\n", dir)
	fmt.Fprintf(os.Stderr, "  Listening:  http://localhost:%s\n", port)

	return http.ListenAndServe(":"+port, handler)
}

// localServer reads straight from the history store on every request.
// Runs are small and local, so there is no cache to go stale when the
// CLI writes a new run mid-session.
type localServer struct {
	store *run.Store
}

func (s *localServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/products", s.handleProducts)
	mux.HandleFunc("GET /api/v1/products/{product}/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/products/{product}/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/products/{product}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/products/{product}/diff", s.handleDiff)
	return mux
}

func (s *localServer) handleProducts(w http.ResponseWriter, r *http.Request) {
	slugs, err := s.store.Products()
	if err != nil {
		writeLocalJSON(w, []any{})
		return
	}

	type productInfo struct {
		Slug    string    `json:"slug"`
		Product string    `json:"product"`
		Score   int       `json:"score100"`
		Grade   string    `json:"grade"`
		TakenAt time.Time `json:"taken_at"`
		Runs    int       `json:"runs"`
	}

	products := make([]productInfo, 0, len(slugs))
	for _, slug := range slugs {
		latest, err := s.store.Latest(slug)
		if err != nil {
			continue
		}
		paths, _ := s.store.List(slug)
		products = append(products, productInfo{
			Slug:    slug,
			Product: latest.Product,
			Score:   latest.Score100,
			Grade:   latest.Grade,
			TakenAt: latest.TakenAt,
			Runs:    len(paths),
		})
	}
	writeLocalJSON(w, products)
}

func (s *localServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	paths, err := s.store.List(r.PathValue("product"))
	if err != nil {
		writeLocalJSON(w, []any{})
		return
	}

	type runInfo struct {
		ID      string    `json:"id"`
		TakenAt time.Time `json:"taken_at"`
		Score   int       `json:"score100"`
		Grade   string    `json:"grade"`
		Score5  float64   `json:"score5"`
		Pages   int       `json:"pages"`
	}

	runs := make([]runInfo, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- { // newest first
		snap, err := run.Load(paths[i])
		if err != nil {
			continue
		}
		runs = append(runs, runInfo{
			ID:      snap.ID,
			TakenAt: snap.TakenAt,
			Score:   snap.Score100,
			Grade:   snap.Grade,
			Score5:  snap.Score5,
			Pages:   len(snap.Pages),
		})
	}
	writeLocalJSON(w, runs)
}

func (s *localServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Latest(r.PathValue("product"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeLocalJSON(w, snap)
}

func (s *localServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	snaps, err := s.store.History(r.PathValue("product"), limit)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	series, err := trend.BuildSeries(snaps)
	if errors.Is(err, run.ErrInsufficientHistory) {
		writeLocalJSON(w, map[string]any{"series": nil, "movers": nil})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var mv *trend.MoversResult
	if len(snaps) >= 2 {
		mv, _ = trend.TopMovers(snaps, 0)
	}
	writeLocalJSON(w, map[string]any{"series": series, "movers": mv})
}

func (s *localServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	base, head, err := s.store.LatestPair(r.PathValue("product"))
	if errors.Is(err, run.ErrInsufficientHistory) {
		http.Error(w, "need at least two runs to diff", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res, err := diff.Compute(base, head)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeLocalJSON(w, res)
}

func writeLocalJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// localCORS allows browser dashboards on other ports to read the API.
func localCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
