// Package score implements the composite page-quality scoring engine:
// threshold normalization, weight resolution, conditional score
// ceilings, and letter grading. Every function here is pure; identical
// inputs always produce identical results.
package score

import "github.com/pagepulse/pagepulse/pkg/metrics"

// Normalize maps a raw numeric value onto the 5-tier sub-score scale
// {100, 75, 50, 25, 0} using the metric's 4-point threshold band.
//
// For lowerBetter metrics the first cut-point is the best-case roof;
// for higherBetter the comparisons are mirrored and the last cut-point
// is the best-case floor. Values outside the band fall into the worst
// tier; negative values compare as-is (for lowerBetter they land in
// the best tier).
func Normalize(value float64, band metrics.Band, dir metrics.Direction) int {
	if dir == metrics.HigherBetter {
		switch {
		case value >= band[3]:
			return 100
		case value >= band[2]:
			return 75
		case value >= band[1]:
			return 50
		case value >= band[0]:
			return 25
		default:
			return 0
		}
	}

	switch {
	case value <= band[0]:
		return 100
	case value <= band[1]:
		return 75
	case value <= band[2]:
		return 50
	case value <= band[3]:
		return 25
	default:
		return 0
	}
}

// NormalizeBool is the distinct two-value path for boolean metrics:
// 100 when the measured state is favorable, 40 otherwise. Booleans
// deliberately stay off the numeric tier grid.
func NormalizeBool(favorable bool) int {
	if favorable {
		return 100
	}
	return 40
}
