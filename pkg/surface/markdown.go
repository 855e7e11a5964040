package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/pagepulse/pagepulse/pkg/carbon"
	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

// MarkdownRenderer produces Markdown suitable for pull request
// comments and chat posts.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) RenderRun(w io.Writer, snap *run.Snapshot) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Pagepulse: %s scored %d/100 (Grade %s)\n\n",
		snap.Product, snap.Score100, snap.Grade))
	sb.WriteString(fmt.Sprintf("Captured %s across %d pages.\n\n",
		snap.TakenAt.Format("2006-01-02 15:04 MST"), len(snap.Pages)))

	if len(snap.Pages) > 0 {
		sb.WriteString("| Page | Score | Grade | Weight |\n")
		sb.WriteString("|------|------:|-------|-------:|\n")
		for _, p := range snap.Pages {
			name := p.Name
			if name == "" {
				name = p.URL
			}
			cell := fmt.Sprintf("%d", p.Score)
			if p.Ceiling < 100 {
				cell = fmt.Sprintf("%d (capped at %d)", p.Score, p.Ceiling)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.1f |\n", name, cell, p.Grade, p.Weight))
		}
	}

	if est := carbon.ForRun(snap); est.TransferKB > 0 {
		sb.WriteString(fmt.Sprintf("\n_Transfer footprint: %.1f MB, ~%.1f g CO2e per full visit._\n",
			est.TransferKB/1024, est.GramsCO2))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (r *MarkdownRenderer) RenderDiff(w io.Writer, res *diff.Result) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Pagepulse diff: %s %d -> %d (%s)\n\n",
		res.Product, res.BaseScore, res.HeadScore, signed(res.Delta)))
	sb.WriteString(fmt.Sprintf("Grade %s -> %s\n\n", res.BaseGrade, res.HeadGrade))

	if len(res.Pages) > 0 {
		sb.WriteString("| Page | Base | Head | Delta | |\n")
		sb.WriteString("|------|-----:|-----:|------:|---|\n")
		for _, p := range res.Pages {
			note := ""
			if p.New {
				note = "new"
			}
			if p.Removed {
				note = "removed"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				p.Name, scoreCell(p.BaseScore), scoreCell(p.HeadScore), signed(p.Delta), note))
		}
		sb.WriteString("\n")
	}

	if len(res.Regressions) > 0 {
		sb.WriteString("### Top regressions\n\n")
		for _, m := range res.Regressions {
			sb.WriteString(fmt.Sprintf("- **%s** %s (%s)\n", m.Page, m.Metric, signed(m.Delta)))
		}
		sb.WriteString("\n")
	}
	if len(res.Improvements) > 0 {
		sb.WriteString("### Top improvements\n\n")
		for _, m := range res.Improvements {
			sb.WriteString(fmt.Sprintf("- **%s** %s (%s)\n", m.Page, m.Metric, signed(m.Delta)))
		}
		sb.WriteString("\n")
	}
	if len(res.Noteworthy) > 0 {
		sb.WriteString("### Noteworthy metric changes\n\n")
		for _, n := range res.Noteworthy {
			sb.WriteString(fmt.Sprintf("- **%s** %s %g -> %g (%+g, threshold %g)\n",
				n.Page, n.Metric, n.Base, n.Head, n.Delta, n.Threshold))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (r *MarkdownRenderer) RenderHistory(w io.Writer, series *trend.Series, movers *trend.MoversResult) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Pagepulse history: %s\n\n", series.Product))
	sb.WriteString(fmt.Sprintf("%d runs, best %d, worst %d, mean %.1f.\n\n",
		len(series.Points), series.Best, series.Worst, series.Mean))

	sb.WriteString("| Captured | Score | Grade | Delta | Pages |\n")
	sb.WriteString("|----------|------:|-------|------:|------:|\n")
	for _, p := range series.Points {
		delta := ""
		if p.Delta != 0 {
			delta = signed(p.Delta)
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %d |\n",
			p.TakenAt.Format("2006-01-02 15:04"), p.Score100, p.Grade, delta, p.Pages))
	}
	sb.WriteString("\n")

	if movers != nil {
		if len(movers.Improving) > 0 {
			sb.WriteString("### Improving pages\n\n")
			for _, m := range movers.Improving {
				sb.WriteString(fmt.Sprintf("- **%s** %d -> %d (%s)\n", m.Name, m.First, m.Last, signed(m.Delta)))
			}
			sb.WriteString("\n")
		}
		if len(movers.Declining) > 0 {
			sb.WriteString("### Declining pages\n\n")
			for _, m := range movers.Declining {
				sb.WriteString(fmt.Sprintf("- **%s** %d -> %d (%s)\n", m.Name, m.First, m.Last, signed(m.Delta)))
			}
			sb.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
