package surface

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

// CSVRenderer writes one row per page, page diff, or history point for
// spreadsheet import.
type CSVRenderer struct{}

func (r *CSVRenderer) RenderRun(w io.Writer, snap *run.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"product", "taken_at", "page", "url", "score", "grade", "weight", "ceiling"}); err != nil {
		return err
	}
	for _, p := range snap.Pages {
		rec := []string{
			snap.Product,
			snap.TakenAt.Format(time.RFC3339),
			p.Name,
			p.URL,
			strconv.Itoa(p.Score),
			p.Grade,
			fmt.Sprintf("%.2f", p.Weight),
			strconv.Itoa(p.Ceiling),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r *CSVRenderer) RenderDiff(w io.Writer, res *diff.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"page", "base_score", "head_score", "delta", "status"}); err != nil {
		return err
	}
	for _, p := range res.Pages {
		status := "matched"
		if p.New {
			status = "new"
		}
		if p.Removed {
			status = "removed"
		}
		rec := []string{
			p.Key,
			csvScore(p.BaseScore),
			csvScore(p.HeadScore),
			strconv.Itoa(p.Delta),
			status,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r *CSVRenderer) RenderHistory(w io.Writer, series *trend.Series, movers *trend.MoversResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"taken_at", "score100", "grade", "delta", "pages"}); err != nil {
		return err
	}
	for _, p := range series.Points {
		rec := []string{
			p.TakenAt.Format(time.RFC3339),
			strconv.Itoa(p.Score100),
			p.Grade,
			strconv.Itoa(p.Delta),
			strconv.Itoa(p.Pages),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvScore(score *int) string {
	if score == nil {
		return ""
	}
	return strconv.Itoa(*score)
}
