package score

import (
	"math"

	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/metrics"
)

// Result is the complete scoring outcome for a single page.
type Result struct {
	Score         int                `json:"score"`
	Grade         string             `json:"grade"` // A through G
	Ceiling       int                `json:"ceiling"`
	ScaleFactor   float64            `json:"scale_factor"`
	SubScores     map[string]int     `json:"sub_scores"`
	Weights       map[string]float64 `json:"weights"`
	Contributions map[string]float64 `json:"contributions"`
	Missing       []string           `json:"missing,omitempty"` // catalog metrics absent from the record
}

// Compute scores one page's metric record against a KPI configuration.
// A nil config scores against the built-in defaults.
//
// Each catalog metric is normalized to a sub-score, weighted, and
// summed; the rounded sum is clamped into [0, ceiling] where the
// ceiling comes from the lowest matching conditional rule. Stored
// contributions are scaled by ceiling/100 so they always sum to the
// capped maximum. Missing metrics score as zero-valued (false for
// booleans) and are reported in Missing rather than failing the run.
func Compute(rec metrics.Record, cfg *kpi.Config) *Result {
	if cfg == nil {
		cfg = kpi.Default()
	}
	defs := metrics.Catalog()

	res := &Result{
		SubScores:     make(map[string]int, len(defs)),
		Contributions: make(map[string]float64, len(defs)),
	}
	res.Weights = ResolveWeights(cfg.Weights, defs)

	var total float64
	for _, d := range defs {
		sub := subScore(rec, d, cfg, res)
		res.SubScores[d.Key] = sub
		total += float64(sub) * res.Weights[d.Key]
	}

	res.Ceiling, res.ScaleFactor = EffectiveCeiling(rec, cfg.Ceilings)
	for _, d := range defs {
		res.Contributions[d.Key] = float64(res.SubScores[d.Key]) * res.Weights[d.Key] * res.ScaleFactor
	}

	// Round the raw weighted sum first, then apply the cap.
	final := int(math.Round(total))
	if final < 0 {
		final = 0
	}
	if final > res.Ceiling {
		final = res.Ceiling
	}
	res.Score = final
	res.Grade = GradeFromScore(final)
	return res
}

// subScore normalizes one metric, recording it in Missing when the
// record has no value for it.
func subScore(rec metrics.Record, d metrics.Def, cfg *kpi.Config, res *Result) int {
	v, ok := rec.Lookup(d.Key)
	if !ok {
		res.Missing = append(res.Missing, d.Key)
		if d.Boolean {
			return NormalizeBool(d.Unfavorable) // absent flag reads as false
		}
		return Normalize(0, cfg.Band(d), d.Direction)
	}

	if d.Boolean {
		flag, _ := v.AsBool()
		return NormalizeBool(flag != d.Unfavorable)
	}
	num, _ := v.AsNumber()
	return Normalize(num, cfg.Band(d), d.Direction)
}
