// Package surface defines output rendering for Pagepulse results.
// Implementations handle different output targets: terminal, Markdown,
// CSV, JSON.
package surface

import (
	"fmt"
	"io"

	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

// Renderer produces formatted output for each result kind. Every
// format renders every kind so commands can treat --format uniformly.
type Renderer interface {
	// RenderRun writes one scored run.
	RenderRun(w io.Writer, snap *run.Snapshot) error
	// RenderDiff writes a base/head comparison.
	RenderDiff(w io.Writer, res *diff.Result) error
	// RenderHistory writes a score history; movers may be nil when the
	// window is too small to compare endpoints.
	RenderHistory(w io.Writer, series *trend.Series, movers *trend.MoversResult) error
}

// ForFormat returns the renderer for a format name.
func ForFormat(name string) (Renderer, error) {
	switch name {
	case "terminal", "":
		return &TerminalRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "csv":
		return &CSVRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want terminal, markdown, csv, or json)", name)
	}
}
