package score

import (
	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/metrics"
)

// EffectiveCeiling evaluates every conditional ceiling rule against a
// page's metric record and returns the lowest cap that matched, along
// with the scale factor applied to stored contributions. With no
// matching rule the ceiling is 100 and the scale factor 1. Rule caps
// are clamped into [0, 100]; a rule whose condition cannot be decided
// (missing metric, type mismatch) does not match.
func EffectiveCeiling(rec metrics.Record, ceilings []kpi.CeilingRule) (int, float64) {
	ceiling := 100
	for _, rule := range ceilings {
		if !rule.Matches(rec) {
			continue
		}
		limit := rule.MaxScore
		if limit < 0 {
			limit = 0
		}
		if limit > 100 {
			limit = 100
		}
		if limit < ceiling {
			ceiling = limit
		}
	}
	scale := 1.0
	if ceiling < 100 {
		scale = float64(ceiling) / 100
	}
	return ceiling, scale
}
