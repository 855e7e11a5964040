// Package kpi loads and validates the scoring configuration: metric
// weights, threshold bands, and conditional score ceilings. All
// validation happens at load time so a malformed configuration aborts
// startup instead of silently mis-scoring.
package kpi

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/rules"
)

// ErrConfig is wrapped by every configuration-validation failure.
var ErrConfig = errors.New("invalid kpi config")

// CeilingRule caps the composite score when its condition matches the
// metrics record. The condition is compiled once at load time.
type CeilingRule struct {
	If       string `json:"if"`
	MaxScore int    `json:"max_score"`

	cond rules.Expr
}

// Matches evaluates the compiled condition against a record. A rule
// whose condition cannot be decided (missing metric, type mismatch) is
// non-matching; this never errors and never panics.
func (r CeilingRule) Matches(rec metrics.Record) bool {
	if r.cond == nil {
		return false
	}
	ok, err := r.cond.Eval(rec)
	if err != nil {
		return false
	}
	return ok
}

// MetricNames returns the metric keys the condition references, for
// static inspection. Nil for an uncompiled rule.
func (r CeilingRule) MetricNames() []string {
	if r.cond == nil {
		return nil
	}
	return rules.MetricNames(r.cond)
}

// Config is a validated KPI configuration. Maps hold only the keys the
// file configured; catalog defaults fill the rest at scoring time.
type Config struct {
	Weights    map[string]float64      `json:"weights"`
	Thresholds map[string]metrics.Band `json:"thresholds"`
	Ceilings   []CeilingRule           `json:"score_ceilings"`
}

// fileConfig is the raw YAML shape. Bands arrive as open slices so a
// wrong-length band is caught by validation instead of being silently
// zero-padded.
type fileConfig struct {
	Weights    map[string]float64   `yaml:"weights"`
	Thresholds map[string][]float64 `yaml:"thresholds"`
	Ceilings   []struct {
		If       string `yaml:"if"`
		MaxScore int    `yaml:"max_score"`
	} `yaml:"score_ceilings"`
}

// Default returns the catalog-derived configuration: default weights
// and bands, no ceiling rules.
func Default() *Config {
	cfg := &Config{
		Weights:    make(map[string]float64),
		Thresholds: make(map[string]metrics.Band),
	}
	for _, d := range metrics.Catalog() {
		cfg.Weights[d.Key] = d.Weight
		if !d.Boolean {
			cfg.Thresholds[d.Key] = d.Band
		}
	}
	return cfg
}

// Load reads and validates a KPI configuration file. An empty path
// returns Default(). Any validation failure wraps ErrConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading kpi config: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated Config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := &Config{
		Weights:    make(map[string]float64, len(raw.Weights)),
		Thresholds: make(map[string]metrics.Band, len(raw.Thresholds)),
	}

	for key, w := range raw.Weights {
		if _, ok := metrics.DefByKey(key); !ok {
			return nil, fmt.Errorf("%w: weights: unknown metric %q", ErrConfig, key)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, fmt.Errorf("%w: weights[%s]: must be a non-negative number, got %v", ErrConfig, key, w)
		}
		cfg.Weights[key] = w
	}

	for key, pts := range raw.Thresholds {
		def, ok := metrics.DefByKey(key)
		if !ok {
			return nil, fmt.Errorf("%w: thresholds: unknown metric %q", ErrConfig, key)
		}
		if def.Boolean {
			return nil, fmt.Errorf("%w: thresholds[%s]: boolean metrics take no band", ErrConfig, key)
		}
		if len(pts) != 4 {
			return nil, fmt.Errorf("%w: thresholds[%s]: need exactly 4 cut-points, got %d", ErrConfig, key, len(pts))
		}
		band := metrics.Band{pts[0], pts[1], pts[2], pts[3]}
		if !band.Valid() {
			return nil, fmt.Errorf("%w: thresholds[%s]: cut-points must be non-decreasing, got %v", ErrConfig, key, pts)
		}
		cfg.Thresholds[key] = band
	}

	for i, rc := range raw.Ceilings {
		if rc.If == "" {
			return nil, fmt.Errorf("%w: score_ceilings[%d]: empty condition", ErrConfig, i)
		}
		cond, err := rules.Parse(rc.If)
		if err != nil {
			return nil, fmt.Errorf("%w: score_ceilings[%d] %q: %v", ErrConfig, i, rc.If, err)
		}
		cfg.Ceilings = append(cfg.Ceilings, CeilingRule{
			If:       rc.If,
			MaxScore: rc.MaxScore,
			cond:     cond,
		})
	}

	return cfg, nil
}

// Band returns the configured band for a metric, falling back to the
// catalog default.
func (c *Config) Band(def metrics.Def) metrics.Band {
	if band, ok := c.Thresholds[def.Key]; ok {
		return band
	}
	return def.Band
}
