package score_test

import (
	"testing"

	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/score"
)

func parseCeilings(t *testing.T, yaml string) []kpi.CeilingRule {
	t.Helper()
	cfg, err := kpi.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return cfg.Ceilings
}

func TestEffectiveCeiling_NoRules(t *testing.T) {
	rec := metrics.Record{"errors": metrics.Number(10)}

	ceiling, scale := score.EffectiveCeiling(rec, nil)
	if ceiling != 100 {
		t.Errorf("ceiling = %d, want 100", ceiling)
	}
	if scale != 1 {
		t.Errorf("scale = %v, want 1", scale)
	}
}

func TestEffectiveCeiling_LowestMatchWins(t *testing.T) {
	rules := parseCeilings(t, `
score_ceilings:
  - if: "errors > 5"
    max_score: 50
  - if: "requests > 100"
    max_score: 80
  - if: "transferKB > 9000"
    max_score: 10
`)
	rec := metrics.Record{
		"errors":   metrics.Number(6),
		"requests": metrics.Number(150),
	}

	ceiling, scale := score.EffectiveCeiling(rec, rules)
	if ceiling != 50 {
		t.Errorf("ceiling = %d, want 50", ceiling)
	}
	if scale != 0.5 {
		t.Errorf("scale = %v, want 0.5", scale)
	}
}

func TestEffectiveCeiling_UndecidableRuleDoesNotMatch(t *testing.T) {
	rules := parseCeilings(t, `
score_ceilings:
  - if: "errors > 5"
    max_score: 40
`)
	// errors is absent, so the condition cannot be decided.
	rec := metrics.Record{"requests": metrics.Number(10)}

	ceiling, scale := score.EffectiveCeiling(rec, rules)
	if ceiling != 100 {
		t.Errorf("ceiling = %d, want 100", ceiling)
	}
	if scale != 1 {
		t.Errorf("scale = %v, want 1", scale)
	}
}

func TestEffectiveCeiling_CapClamped(t *testing.T) {
	rules := parseCeilings(t, `
score_ceilings:
  - if: "errors > 5"
    max_score: -20
`)
	rec := metrics.Record{"errors": metrics.Number(6)}

	ceiling, scale := score.EffectiveCeiling(rec, rules)
	if ceiling != 0 {
		t.Errorf("ceiling = %d, want 0", ceiling)
	}
	if scale != 0 {
		t.Errorf("scale = %v, want 0", scale)
	}
}
