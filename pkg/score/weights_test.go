package score_test

import (
	"math"
	"testing"

	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/score"
)

func TestResolveWeights_Defaults(t *testing.T) {
	defs := metrics.Catalog()
	resolved := score.ResolveWeights(nil, defs)

	if len(resolved) != len(defs) {
		t.Fatalf("expected %d weights, got %d", len(defs), len(resolved))
	}

	var sum float64
	for _, d := range defs {
		w, ok := resolved[d.Key]
		if !ok {
			t.Fatalf("missing resolved weight for %s", d.Key)
		}
		if math.Abs(w-d.Weight) > 1e-9 {
			t.Errorf("weight for %s = %v, want default %v", d.Key, w, d.Weight)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("resolved weights sum to %v, want 1", sum)
	}
}

func TestResolveWeights_OverrideKeepsRatio(t *testing.T) {
	raw := map[string]float64{
		"requests":   0.4,
		"transferKB": 0.25,
	}
	resolved := score.ResolveWeights(raw, metrics.Catalog())

	var sum float64
	for _, w := range resolved {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("resolved weights sum to %v, want 1", sum)
	}

	ratio := resolved["requests"] / resolved["transferKB"]
	if math.Abs(ratio-1.6) > 1e-9 {
		t.Errorf("requests/transferKB ratio = %v, want 1.6", ratio)
	}
}

func TestResolveWeights_NegativeAndNaNBecomeZero(t *testing.T) {
	raw := map[string]float64{
		"requests":   -3,
		"transferKB": math.NaN(),
	}
	resolved := score.ResolveWeights(raw, metrics.Catalog())

	if resolved["requests"] != 0 {
		t.Errorf("negative override resolved to %v, want 0", resolved["requests"])
	}
	if resolved["transferKB"] != 0 {
		t.Errorf("NaN override resolved to %v, want 0", resolved["transferKB"])
	}
}

func TestResolveWeights_AllZero(t *testing.T) {
	raw := make(map[string]float64)
	for _, d := range metrics.Catalog() {
		raw[d.Key] = 0
	}
	resolved := score.ResolveWeights(raw, metrics.Catalog())

	for key, w := range resolved {
		if w != 0 {
			t.Errorf("weight for %s = %v, want 0", key, w)
		}
	}
}
