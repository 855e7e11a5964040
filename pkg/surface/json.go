package surface

import (
	"encoding/json"
	"io"

	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

// JSONRenderer marshals results to indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) RenderRun(w io.Writer, snap *run.Snapshot) error {
	return encodeJSON(w, snap)
}

func (r *JSONRenderer) RenderDiff(w io.Writer, res *diff.Result) error {
	return encodeJSON(w, res)
}

func (r *JSONRenderer) RenderHistory(w io.Writer, series *trend.Series, movers *trend.MoversResult) error {
	payload := struct {
		Series *trend.Series       `json:"series"`
		Movers *trend.MoversResult `json:"movers,omitempty"`
	}{Series: series, Movers: movers}
	return encodeJSON(w, payload)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
