// Package carbon estimates the network transfer footprint of a scored
// run. The factors are the commonly cited averages for fixed-line
// transmission energy and global grid intensity; the output is an
// order-of-magnitude signal, not an audit.
package carbon

import "github.com/pagepulse/pagepulse/pkg/run"

// Conversion factors.
const (
	KWhPerGB       = 0.81
	GramsCO2PerKWh = 442
)

// Estimate is the transfer footprint of one run.
type Estimate struct {
	TransferKB float64 `json:"transfer_kb"`
	KWh        float64 `json:"kwh"`
	GramsCO2   float64 `json:"grams_co2"`
}

// FromKB converts kilobytes transferred into energy and CO2e.
func FromKB(kb float64) Estimate {
	if kb < 0 {
		kb = 0
	}
	kwh := kb / (1024 * 1024) * KWhPerGB
	return Estimate{
		TransferKB: kb,
		KWh:        kwh,
		GramsCO2:   kwh * GramsCO2PerKWh,
	}
}

// ForRun sums transfer sizes across a run's pages. Pages without a
// numeric transferKB metric contribute nothing.
func ForRun(snap *run.Snapshot) Estimate {
	var kb float64
	for _, p := range snap.Pages {
		v, ok := p.Metrics.Lookup("transferKB")
		if !ok {
			continue
		}
		if n, ok := v.AsNumber(); ok && n > 0 {
			kb += n
		}
	}
	return FromKB(kb)
}
