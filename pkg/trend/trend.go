// Package trend aggregates stored runs into score histories and
// per-page movement summaries. Used by both the local CLI and the
// hosted platform API.
package trend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pagepulse/pagepulse/pkg/run"
)

// defaultMoverLimit bounds each direction of a movers query when the
// caller does not say otherwise.
const defaultMoverLimit = 5

// Point is one run in a product's score history.
type Point struct {
	RunID    string    `json:"run_id"`
	TakenAt  time.Time `json:"taken_at"`
	Score100 int       `json:"score100"`
	Grade    string    `json:"grade"`
	Score5   float64   `json:"score5"`
	Pages    int       `json:"pages"`
	Delta    int       `json:"delta"` // versus the previous point, 0 for the first
}

// Series is a product's chronological score history with summary
// statistics over the window.
type Series struct {
	Product string  `json:"product"`
	Points  []Point `json:"points"`
	Best    int     `json:"best"`
	Worst   int     `json:"worst"`
	Mean    float64 `json:"mean"` // one decimal place
}

// BuildSeries folds runs into a history series. Input order does not
// matter; points come out sorted by capture time. An empty window
// reports ErrInsufficientHistory.
func BuildSeries(snaps []*run.Snapshot) (*Series, error) {
	if len(snaps) == 0 {
		return nil, fmt.Errorf("building series: %w", run.ErrInsufficientHistory)
	}

	ordered := make([]*run.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TakenAt.Before(ordered[j].TakenAt)
	})

	s := &Series{
		Product: ordered[0].Product,
		Points:  make([]Point, 0, len(ordered)),
		Best:    ordered[0].Score100,
		Worst:   ordered[0].Score100,
	}

	var sum float64
	for i, snap := range ordered {
		p := Point{
			RunID:    snap.ID,
			TakenAt:  snap.TakenAt,
			Score100: snap.Score100,
			Grade:    snap.Grade,
			Score5:   snap.Score5,
			Pages:    len(snap.Pages),
		}
		if i > 0 {
			p.Delta = snap.Score100 - ordered[i-1].Score100
		}
		s.Points = append(s.Points, p)

		if snap.Score100 > s.Best {
			s.Best = snap.Score100
		}
		if snap.Score100 < s.Worst {
			s.Worst = snap.Score100
		}
		sum += float64(snap.Score100)
	}
	s.Mean = math.Round(sum/float64(len(ordered))*10) / 10

	return s, nil
}

// PageMover is one page's score movement between the endpoints of a
// history window.
type PageMover struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	First int    `json:"first"`
	Last  int    `json:"last"`
	Delta int    `json:"delta"`
}

// MoversResult lists the pages that moved most between the first and
// last run of a window, split by direction.
type MoversResult struct {
	Product   string      `json:"product"`
	FromID    string      `json:"from_id"`
	ToID      string      `json:"to_id"`
	Improving []PageMover `json:"improving,omitempty"`
	Declining []PageMover `json:"declining,omitempty"`
}

// TopMovers compares pages between the oldest and newest run of the
// window. Only pages present at both endpoints qualify; unchanged
// pages are omitted. limit <= 0 keeps defaultMoverLimit per direction.
func TopMovers(snaps []*run.Snapshot, limit int) (*MoversResult, error) {
	if len(snaps) < 2 {
		return nil, fmt.Errorf("finding movers: %w", run.ErrInsufficientHistory)
	}
	if limit <= 0 {
		limit = defaultMoverLimit
	}

	ordered := make([]*run.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TakenAt.Before(ordered[j].TakenAt)
	})
	first, last := ordered[0], ordered[len(ordered)-1]

	firstIdx := first.PageIndex()
	var movers []PageMover
	for key, lp := range last.PageIndex() {
		fp, ok := firstIdx[key]
		if !ok {
			continue
		}
		delta := lp.Score - fp.Score
		if delta == 0 {
			continue
		}
		name := lp.Name
		if name == "" {
			name = lp.URL
		}
		movers = append(movers, PageMover{
			Key:   key,
			Name:  name,
			First: fp.Score,
			Last:  lp.Score,
			Delta: delta,
		})
	}

	sort.Slice(movers, func(i, j int) bool {
		di, dj := abs(movers[i].Delta), abs(movers[j].Delta)
		if di != dj {
			return di > dj
		}
		return movers[i].Key < movers[j].Key
	})

	res := &MoversResult{
		Product: last.Product,
		FromID:  first.ID,
		ToID:    last.ID,
	}
	for _, m := range movers {
		if m.Delta > 0 && len(res.Improving) < limit {
			res.Improving = append(res.Improving, m)
		}
		if m.Delta < 0 && len(res.Declining) < limit {
			res.Declining = append(res.Declining, m)
		}
	}
	return res, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
