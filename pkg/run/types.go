// Package run defines the persisted scorecard model for Pagepulse.
// A run captures one product's scored pages at a point in time.
// Runs are immutable once finalized.
package run

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/score"
)

// FormatVersion is the run file format understood by this build.
const FormatVersion = 1

// Snapshot is a complete scored run for one product. The KPI
// configuration in force at scoring time is echoed into the snapshot
// so a run file is self-describing; echoed ceiling conditions are
// archival text and are not recompiled on load.
type Snapshot struct {
	FormatVersion int       `json:"format_version"`
	ID            string    `json:"id"`
	Product       string    `json:"product"`
	TakenAt       time.Time `json:"taken_at"`

	Score100 int     `json:"score100"`
	Grade    string  `json:"grade"` // A through G
	Score5   float64 `json:"score5"`

	Weights    map[string]float64      `json:"weights,omitempty"`
	Thresholds map[string]metrics.Band `json:"thresholds,omitempty"`
	Ceilings   []kpi.CeilingRule       `json:"ceilings,omitempty"`

	Pages []PageEntry `json:"pages"`
}

// PageEntry is one scored page within a run. Weight is the effective
// page weight used for the product aggregate.
type PageEntry struct {
	Name   string  `json:"name"`
	URL    string  `json:"url,omitempty"`
	Score  int     `json:"score"`
	Grade  string  `json:"grade"`
	Weight float64 `json:"weight"`

	Metrics       metrics.Record     `json:"metrics"`
	SubScores     map[string]int     `json:"sub_scores,omitempty"`
	Contributions map[string]float64 `json:"contributions,omitempty"`
	Ceiling       int                `json:"ceiling"`
	ScaleFactor   float64            `json:"scale_factor"`
}

// Key returns the page's identity for cross-run matching: the
// lowercased name, or the lowercased URL when the name is empty.
func (p PageEntry) Key() string {
	if p.Name != "" {
		return strings.ToLower(p.Name)
	}
	return strings.ToLower(p.URL)
}

// PageIndex maps identity keys to page entries. When two pages share a
// key the first occurrence wins.
func (s *Snapshot) PageIndex() map[string]PageEntry {
	idx := make(map[string]PageEntry, len(s.Pages))
	for _, p := range s.Pages {
		key := p.Key()
		if _, ok := idx[key]; !ok {
			idx[key] = p
		}
	}
	return idx
}

// Page looks up a page entry by identity key.
func (s *Snapshot) Page(key string) (PageEntry, bool) {
	for _, p := range s.Pages {
		if p.Key() == key {
			return p, true
		}
	}
	return PageEntry{}, false
}

// Accumulator collects scored pages on their way into a snapshot. It
// has value semantics so each worker can fold into its own accumulator
// and the results can be merged afterwards; ordering of Add and Merge
// calls never changes the finalized snapshot.
type Accumulator struct {
	pages []PageEntry
}

// Add folds one scored page into the accumulator.
func (a Accumulator) Add(p PageEntry) Accumulator {
	pages := make([]PageEntry, 0, len(a.pages)+1)
	pages = append(pages, a.pages...)
	a.pages = append(pages, p)
	return a
}

// Merge combines two accumulators.
func (a Accumulator) Merge(b Accumulator) Accumulator {
	pages := make([]PageEntry, 0, len(a.pages)+len(b.pages))
	pages = append(pages, a.pages...)
	pages = append(pages, b.pages...)
	return Accumulator{pages: pages}
}

// Len reports how many pages have been accumulated.
func (a Accumulator) Len() int {
	return len(a.pages)
}

// Finalize produces the immutable snapshot: pages sorted by name then
// URL, the product score computed as the page-weight-weighted mean of
// page scores. Echoed weights are the resolved effective weights;
// echoed thresholds list only the configured overrides.
func (a Accumulator) Finalize(product string, cfg *kpi.Config, takenAt time.Time) *Snapshot {
	if cfg == nil {
		cfg = kpi.Default()
	}

	pages := make([]PageEntry, len(a.pages))
	copy(pages, a.pages)
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Name != pages[j].Name {
			return pages[i].Name < pages[j].Name
		}
		return pages[i].URL < pages[j].URL
	})

	score100 := aggregateScore(pages)

	return &Snapshot{
		FormatVersion: FormatVersion,
		ID:            uuid.NewString(),
		Product:       product,
		TakenAt:       takenAt.UTC(),
		Score100:      score100,
		Grade:         score.GradeFromScore(score100),
		Score5:        score.Score5(score100),
		Weights:       score.ResolveWeights(cfg.Weights, metrics.Catalog()),
		Thresholds:    cfg.Thresholds,
		Ceilings:      cfg.Ceilings,
		Pages:         pages,
	}
}

// aggregateScore is the weighted mean of page scores, rounded to the
// nearest point. A run with no pages scores 0.
func aggregateScore(pages []PageEntry) int {
	var weighted, total float64
	for _, p := range pages {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		weighted += float64(p.Score) * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(weighted / total))
}
