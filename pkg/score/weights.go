package score

import (
	"math"

	"github.com/pagepulse/pagepulse/pkg/metrics"
)

// ResolveWeights merges configured weight overrides with the catalog
// defaults and rescales the result so the weights sum to exactly 1.
// Metrics absent from raw keep their default weight; negative or NaN
// overrides are treated as 0. A configuration that zeroes every weight
// resolves to all-zero weights rather than dividing by zero.
func ResolveWeights(raw map[string]float64, defs []metrics.Def) map[string]float64 {
	resolved := make(map[string]float64, len(defs))

	var sum float64
	for _, d := range defs {
		w, ok := raw[d.Key]
		if !ok {
			w = d.Weight
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		resolved[d.Key] = w
		sum += w
	}
	if sum == 0 {
		return resolved
	}
	for k, w := range resolved {
		resolved[k] = w / sum
	}
	return resolved
}
