package metrics

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// promPrefix is the family-name prefix collectors are expected to use
// when exposing page measurements; bare catalog keys are also accepted.
const promPrefix = "pagepulse_"

// ParsePromText reads a Prometheus text exposition and folds the known
// metric families into a Record. Families that do not map onto a catalog
// key are skipped. Families with multiple samples (label splits) are
// summed. Boolean catalog metrics read a 0/1 gauge: any non-zero sample
// means true.
func ParsePromText(r io.Reader) (Record, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}

	rec := make(Record)
	for name, mf := range mfs {
		key := strings.TrimPrefix(name, promPrefix)
		def, ok := DefByKey(key)
		if !ok {
			continue
		}
		total := sumFamily(mf)
		if def.Boolean {
			rec[key] = Bool(total != 0)
		} else {
			rec[key] = Number(total)
		}
	}
	return rec, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a family.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
