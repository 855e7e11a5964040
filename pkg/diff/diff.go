// Package diff compares two scored runs and explains what moved:
// per-page score deltas, the metric contributions that drove the
// product-level change, and noteworthy raw metric swings.
package diff

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/run"
)

// topMovers is how many contribution deltas each direction reports.
const topMovers = 5

// Result is the complete comparison of a base and head run.
type Result struct {
	Product string `json:"product"`

	BaseID      string    `json:"base_id"`
	HeadID      string    `json:"head_id"`
	BaseTakenAt time.Time `json:"base_taken_at"`
	HeadTakenAt time.Time `json:"head_taken_at"`

	BaseScore int    `json:"base_score"`
	HeadScore int    `json:"head_score"`
	Delta     int    `json:"delta"`
	BaseGrade string `json:"base_grade"`
	HeadGrade string `json:"head_grade"`

	Pages        []PageDiff          `json:"pages"`
	Regressions  []ContributionDelta `json:"regressions,omitempty"`
	Improvements []ContributionDelta `json:"improvements,omitempty"`
	Noteworthy   []NoteworthyChange  `json:"noteworthy,omitempty"`
}

// PageDiff is one row of the page comparison table. Pages are matched
// across runs by identity key; a page present on only one side is
// marked new or removed and its delta is the full score gained or
// lost.
type PageDiff struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	BaseScore *int   `json:"base_score,omitempty"`
	HeadScore *int   `json:"head_score,omitempty"`
	Delta     int    `json:"delta"`
	BaseGrade string `json:"base_grade,omitempty"`
	HeadGrade string `json:"head_grade,omitempty"`
	New       bool   `json:"new,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

// ContributionDelta is the change in one metric's stored contribution
// on one matched page, rounded to whole points.
type ContributionDelta struct {
	Page   string  `json:"page"`
	Metric string  `json:"metric"`
	Base   float64 `json:"base"`
	Head   float64 `json:"head"`
	Delta  int     `json:"delta"`
}

// NoteworthyChange is a raw metric swing on a matched page at least as
// large as the metric's noteworthy threshold.
type NoteworthyChange struct {
	Page      string  `json:"page"`
	Metric    string  `json:"metric"`
	Base      float64 `json:"base"`
	Head      float64 `json:"head"`
	Delta     float64 `json:"delta"`
	Threshold float64 `json:"threshold"`
}

// Compute compares two runs of the same product. It is pure: identical
// inputs always produce an identical result, and diffing a run against
// itself yields all-zero deltas with no movers.
func Compute(base, head *run.Snapshot) (*Result, error) {
	if base == nil || head == nil {
		return nil, fmt.Errorf("base and head runs are required")
	}
	if base.Product != head.Product {
		return nil, fmt.Errorf("cannot diff runs of different products: %q vs %q", base.Product, head.Product)
	}

	res := &Result{
		Product:     head.Product,
		BaseID:      base.ID,
		HeadID:      head.ID,
		BaseTakenAt: base.TakenAt,
		HeadTakenAt: head.TakenAt,
		BaseScore:   base.Score100,
		HeadScore:   head.Score100,
		Delta:       head.Score100 - base.Score100,
		BaseGrade:   base.Grade,
		HeadGrade:   head.Grade,
	}

	baseIdx := base.PageIndex()
	headIdx := head.PageIndex()

	// Page table over the union of identity keys.
	for key, hp := range headIdx {
		if bp, ok := baseIdx[key]; ok {
			res.Pages = append(res.Pages, matchedRow(key, bp, hp))
		} else {
			res.Pages = append(res.Pages, newRow(key, hp))
		}
	}
	for key, bp := range baseIdx {
		if _, ok := headIdx[key]; !ok {
			res.Pages = append(res.Pages, removedRow(key, bp))
		}
	}
	sort.Slice(res.Pages, func(i, j int) bool {
		if res.Pages[i].Delta != res.Pages[j].Delta {
			return res.Pages[i].Delta < res.Pages[j].Delta
		}
		return res.Pages[i].Key < res.Pages[j].Key
	})

	movers := contributionDeltas(baseIdx, headIdx)
	res.Regressions, res.Improvements = splitMovers(movers)
	res.Noteworthy = noteworthyChanges(baseIdx, headIdx)

	return res, nil
}

func matchedRow(key string, bp, hp run.PageEntry) PageDiff {
	bs, hs := bp.Score, hp.Score
	return PageDiff{
		Key:       key,
		Name:      displayName(hp),
		BaseScore: &bs,
		HeadScore: &hs,
		Delta:     hs - bs,
		BaseGrade: bp.Grade,
		HeadGrade: hp.Grade,
	}
}

func newRow(key string, hp run.PageEntry) PageDiff {
	hs := hp.Score
	return PageDiff{
		Key:       key,
		Name:      displayName(hp),
		HeadScore: &hs,
		Delta:     hs,
		HeadGrade: hp.Grade,
		New:       true,
	}
}

func removedRow(key string, bp run.PageEntry) PageDiff {
	bs := bp.Score
	return PageDiff{
		Key:       key,
		Name:      displayName(bp),
		BaseScore: &bs,
		Delta:     -bs,
		BaseGrade: bp.Grade,
		Removed:   true,
	}
}

func displayName(p run.PageEntry) string {
	if p.Name != "" {
		return p.Name
	}
	return p.URL
}

// contributionDeltas collects non-zero contribution movements on
// matched pages, ranked by magnitude (ties by page then metric).
func contributionDeltas(baseIdx, headIdx map[string]run.PageEntry) []ContributionDelta {
	var movers []ContributionDelta
	for key, hp := range headIdx {
		bp, ok := baseIdx[key]
		if !ok {
			continue
		}
		for _, metric := range unionMetrics(bp.Contributions, hp.Contributions) {
			b := bp.Contributions[metric]
			h := hp.Contributions[metric]
			d := int(math.Round(h - b))
			if d == 0 {
				continue
			}
			movers = append(movers, ContributionDelta{
				Page:   key,
				Metric: metric,
				Base:   b,
				Head:   h,
				Delta:  d,
			})
		}
	}

	sort.Slice(movers, func(i, j int) bool {
		di, dj := abs(movers[i].Delta), abs(movers[j].Delta)
		if di != dj {
			return di > dj
		}
		if movers[i].Page != movers[j].Page {
			return movers[i].Page < movers[j].Page
		}
		return movers[i].Metric < movers[j].Metric
	})
	return movers
}

// splitMovers takes the ranked movers and keeps the top negative and
// top positive deltas separately.
func splitMovers(movers []ContributionDelta) (regressions, improvements []ContributionDelta) {
	for _, m := range movers {
		if m.Delta < 0 && len(regressions) < topMovers {
			regressions = append(regressions, m)
		}
		if m.Delta > 0 && len(improvements) < topMovers {
			improvements = append(improvements, m)
		}
	}
	return regressions, improvements
}

// noteworthyChanges flags raw numeric metric swings on matched pages
// that meet the metric's noteworthy threshold. A metric absent on
// either side is skipped rather than read as zero.
func noteworthyChanges(baseIdx, headIdx map[string]run.PageEntry) []NoteworthyChange {
	tracked := metrics.Tracked()

	var changes []NoteworthyChange
	for key, hp := range headIdx {
		bp, ok := baseIdx[key]
		if !ok {
			continue
		}
		for metric, threshold := range tracked {
			bv, ok := bp.Metrics.Lookup(metric)
			if !ok {
				continue
			}
			hv, ok := hp.Metrics.Lookup(metric)
			if !ok {
				continue
			}
			b, okb := bv.AsNumber()
			h, okh := hv.AsNumber()
			if !okb || !okh {
				continue
			}
			d := h - b
			if d == 0 || math.Abs(d) < threshold {
				continue
			}
			changes = append(changes, NoteworthyChange{
				Page:      key,
				Metric:    metric,
				Base:      b,
				Head:      h,
				Delta:     d,
				Threshold: threshold,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		di, dj := math.Abs(changes[i].Delta), math.Abs(changes[j].Delta)
		if di != dj {
			return di > dj
		}
		if changes[i].Page != changes[j].Page {
			return changes[i].Page < changes[j].Page
		}
		return changes[i].Metric < changes[j].Metric
	})
	return changes
}

func unionMetrics(a, b map[string]float64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
