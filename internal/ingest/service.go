// Package ingest orchestrates the hosted Pagepulse pipeline: validate
// incoming run snapshots, persist their blobs, index them in the
// archive, and rescore stored history under a new KPI config.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/internal/blob"
	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/score"
	"github.com/pagepulse/pagepulse/pkg/surface"
)

// Service orchestrates run archival and rescoring.
type Service struct {
	index   *archive.Service
	storage blob.Client
	logger  *slog.Logger
}

// NewService creates a new ingest Service.
func NewService(index *archive.Service, storage blob.Client, logger *slog.Logger) *Service {
	return &Service{
		index:   index,
		storage: storage,
		logger:  logger,
	}
}

// StoreRun validates and archives one run snapshot: blob first, then
// the index row, then a rendered markdown report. A report failure is
// logged, not fatal; the run is archived either way.
func (s *Service) StoreRun(ctx context.Context, snap *run.Snapshot) (*archive.RunRow, error) {
	if err := run.Validate(snap); err != nil {
		return nil, err
	}

	product, err := s.index.EnsureProduct(ctx, run.Slug(snap.Product), snap.Product)
	if err != nil {
		return nil, fmt.Errorf("ensure product: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	if err := s.storage.PutRun(ctx, product.Name, snap.ID, data); err != nil {
		return nil, fmt.Errorf("put run blob: %w", err)
	}

	row, err := s.index.InsertRun(ctx, &archive.RunRow{
		ID:         snap.ID,
		ProductID:  product.ID,
		TakenAt:    snap.TakenAt,
		Score:      snap.Score100,
		Grade:      snap.Grade,
		Score5:     snap.Score5,
		PageCount:  len(snap.Pages),
		StorageRef: blob.RunRef(product.Name, snap.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("index run: %w", err)
	}

	s.storeReport(ctx, product.Name, snap)

	s.logger.Info("run archived",
		"product", product.Name, "run", snap.ID, "score", snap.Score100, "grade", snap.Grade)
	return row, nil
}

func (s *Service) storeReport(ctx context.Context, productKey string, snap *run.Snapshot) {
	var buf bytes.Buffer
	md := &surface.MarkdownRenderer{}
	if err := md.RenderRun(&buf, snap); err != nil {
		s.logger.Warn("render report", "run", snap.ID, "error", err)
		return
	}
	if err := s.storage.PutReport(ctx, productKey, snap.ID, buf.Bytes()); err != nil {
		s.logger.Warn("store report", "run", snap.ID, "error", err)
	}
}

// FetchRun loads a run's full snapshot from blob storage.
func (s *Service) FetchRun(ctx context.Context, runID string) (*run.Snapshot, error) {
	row, err := s.index.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.GetRun(ctx, productKey(row.StorageRef), row.ID)
	if err != nil {
		return nil, fmt.Errorf("load run blob: %w", err)
	}

	var snap run.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	return &snap, nil
}

// FetchReport loads a run's rendered markdown report.
func (s *Service) FetchReport(ctx context.Context, runID string) ([]byte, error) {
	row, err := s.index.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.GetReport(ctx, productKey(row.StorageRef), row.ID)
	if err != nil {
		// Report rendering is best-effort at archive time, so a missing
		// blob means the report was never written, not that data is lost.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("report for run %s: %w", runID, archive.ErrNotFound)
		}
		return nil, fmt.Errorf("load report blob: %w", err)
	}
	return data, nil
}

// RescoreResult summarizes a rescore pass.
type RescoreResult struct {
	Products int `json:"products"`
	Runs     int `json:"runs"`
}

// Rescore recomputes every archived run's scores under cfg, rewriting
// blobs and index rows in place. Run IDs and timestamps are preserved;
// only the scored fields change. An empty product rescores everything.
func (s *Service) Rescore(ctx context.Context, cfg *kpi.Config, product string) (*RescoreResult, error) {
	var products []archive.Product
	if product != "" {
		p, err := s.index.GetProduct(ctx, product)
		if err != nil {
			return nil, err
		}
		products = []archive.Product{*p}
	} else {
		var err error
		products, err = s.index.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
	}

	res := &RescoreResult{}
	for _, p := range products {
		rows, err := s.index.ListRuns(ctx, p.ID, 0)
		if err != nil {
			return nil, err
		}

		touched := false
		for _, row := range rows {
			if err := s.rescoreRun(ctx, cfg, p, row); err != nil {
				s.logger.Warn("rescore run", "product", p.Name, "run", row.ID, "error", err)
				continue
			}
			res.Runs++
			touched = true
		}
		if touched {
			res.Products++
		}
	}

	s.logger.Info("rescore finished", "products", res.Products, "runs", res.Runs)
	return res, nil
}

func (s *Service) rescoreRun(ctx context.Context, cfg *kpi.Config, p archive.Product, row archive.RunRow) error {
	snap, err := s.FetchRun(ctx, row.ID)
	if err != nil {
		return err
	}

	rescored := rescoreSnapshot(snap, cfg)

	data, err := json.Marshal(rescored)
	if err != nil {
		return fmt.Errorf("marshal rescored run: %w", err)
	}
	if err := s.storage.PutRun(ctx, p.Name, rescored.ID, data); err != nil {
		return fmt.Errorf("put rescored blob: %w", err)
	}
	if err := s.index.UpdateRunScore(ctx, rescored.ID, rescored.Score100, rescored.Grade, rescored.Score5); err != nil {
		return err
	}

	s.storeReport(ctx, p.Name, rescored)
	return nil
}

// rescoreSnapshot rebuilds a snapshot's page and product scores under
// cfg from the stored raw metrics, preserving the run's identity and
// timing. Page weights carry over unchanged.
func rescoreSnapshot(snap *run.Snapshot, cfg *kpi.Config) *run.Snapshot {
	var acc run.Accumulator
	for _, page := range snap.Pages {
		r := score.Compute(page.Metrics, cfg)
		acc = acc.Add(run.PageEntry{
			Name:          page.Name,
			URL:           page.URL,
			Score:         r.Score,
			Grade:         r.Grade,
			Weight:        page.Weight,
			Metrics:       page.Metrics,
			SubScores:     r.SubScores,
			Contributions: r.Contributions,
			Ceiling:       r.Ceiling,
			ScaleFactor:   r.ScaleFactor,
		})
	}

	rescored := acc.Finalize(snap.Product, cfg, snap.TakenAt)
	rescored.ID = snap.ID
	return rescored
}

// productKey extracts the product segment of a storage ref.
func productKey(ref string) string {
	if i := strings.IndexByte(ref, '/'); i > 0 {
		return ref[:i]
	}
	return ref
}
