package metrics

// Direction states which end of a threshold band is favorable.
type Direction int

const (
	LowerBetter Direction = iota
	HigherBetter
)

// Band is the ordered 4-point threshold band defining the 5 score tiers
// for one numeric metric.
type Band [4]float64

// Valid reports whether the cut-points are non-decreasing.
func (b Band) Valid() bool {
	return b[0] <= b[1] && b[1] <= b[2] && b[2] <= b[3]
}

// Def describes one scorable metric: identity, direction, and the
// defaults applied when the KPI configuration leaves it out.
type Def struct {
	Key   string
	Label string

	Direction Direction
	// Boolean metrics bypass the threshold band entirely; Unfavorable
	// is the raw value that scores low.
	Boolean     bool
	Unfavorable bool

	Band   Band
	Weight float64
	// Noteworthy is the run-to-run delta magnitude at which a raw-value
	// change is reported by the diff engine. Zero means untracked.
	Noteworthy float64
}

// Catalog returns the full set of scorable metrics with their default
// bands, weights, and noteworthy-change thresholds. Default weights sum
// to exactly 1.
func Catalog() []Def {
	return []Def{
		{Key: "requests", Label: "Requests", Direction: LowerBetter,
			Band: Band{27, 50, 80, 120}, Weight: 0.15, Noteworthy: 5},
		{Key: "transferKB", Label: "Transfer size (KB)", Direction: LowerBetter,
			Band: Band{500, 1000, 2500, 5000}, Weight: 0.15, Noteworthy: 250},
		{Key: "domSize", Label: "DOM elements", Direction: LowerBetter,
			Band: Band{800, 1500, 3000, 5000}, Weight: 0.10, Noteworthy: 200},
		{Key: "errors", Label: "Errors", Direction: LowerBetter,
			Band: Band{0, 1, 3, 5}, Weight: 0.10, Noteworthy: 1},
		{Key: "redirects", Label: "Redirects", Direction: LowerBetter,
			Band: Band{0, 1, 2, 4}, Weight: 0.05, Noteworthy: 1},
		{Key: "thirdPartyRequests", Label: "Third-party requests", Direction: LowerBetter,
			Band: Band{5, 15, 30, 60}, Weight: 0.10, Noteworthy: 5},
		{Key: "imagesOversized", Label: "Oversized images", Direction: LowerBetter,
			Band: Band{0, 2, 5, 10}, Weight: 0.05, Noteworthy: 2},
		{Key: "cookieKB", Label: "Cookie volume (KB)", Direction: LowerBetter,
			Band: Band{1, 2, 4, 8}, Weight: 0.05, Noteworthy: 2},
		{Key: "cacheHitPct", Label: "Cache hit rate (%)", Direction: HigherBetter,
			Band: Band{10, 35, 60, 85}, Weight: 0.10, Noteworthy: 10},
		{Key: "http2Pct", Label: "HTTP/2+ requests (%)", Direction: HigherBetter,
			Band: Band{25, 50, 75, 95}, Weight: 0.05, Noteworthy: 10},
		{Key: "hstsMissing", Label: "HSTS missing", Boolean: true, Unfavorable: true,
			Weight: 0.05},
		{Key: "fontsExternal", Label: "External fonts", Boolean: true, Unfavorable: true,
			Weight: 0.05},
	}
}

// DefByKey looks up a catalog entry.
func DefByKey(key string) (Def, bool) {
	for _, d := range Catalog() {
		if d.Key == key {
			return d, true
		}
	}
	return Def{}, false
}

// Keys returns the catalog metric keys in catalog order.
func Keys() []string {
	defs := Catalog()
	keys := make([]string, len(defs))
	for i, d := range defs {
		keys[i] = d.Key
	}
	return keys
}

// Tracked returns the metrics the diff engine watches for noteworthy
// raw-value changes, with their significance thresholds.
func Tracked() map[string]float64 {
	out := make(map[string]float64)
	for _, d := range Catalog() {
		if d.Noteworthy > 0 {
			out[d.Key] = d.Noteworthy
		}
	}
	return out
}
