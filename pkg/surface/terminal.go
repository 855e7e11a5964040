package surface

import (
	"fmt"
	"io"
	"os"

	"github.com/pagepulse/pagepulse/pkg/carbon"
	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

// TerminalRenderer renders results as colored terminal output.
type TerminalRenderer struct{}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func gradeColor(grade string) string {
	if noColor() {
		return ""
	}
	switch grade {
	case "A", "B":
		return colorGreen
	case "C", "D":
		return colorYellow
	case "E", "F", "G":
		return colorRed
	default:
		return ""
	}
}

func deltaColor(delta int) string {
	if noColor() || delta == 0 {
		return ""
	}
	if delta > 0 {
		return colorGreen
	}
	return colorRed
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

// signed formats a delta with an explicit sign.
func signed(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}

func (r *TerminalRenderer) RenderRun(w io.Writer, snap *run.Snapshot) error {
	gc := gradeColor(snap.Grade)

	// Header
	fmt.Fprintf(w, "%s\n\n",
		bold(fmt.Sprintf("Pagepulse: %s scored %d/100 (%.1f/5), Grade %s",
			snap.Product, snap.Score100, snap.Score5, colored(snap.Grade, gc))))
	fmt.Fprintf(w, "Captured: %s  Pages: %d\n\n",
		snap.TakenAt.Format("2006-01-02 15:04:05 MST"), len(snap.Pages))

	if len(snap.Pages) == 0 {
		fmt.Fprintln(w, "No pages in this run.")
		return nil
	}

	fmt.Fprintf(w, "  %-30s %6s  %5s  %6s\n", "PAGE", "SCORE", "GRADE", "WEIGHT")
	for _, p := range snap.Pages {
		name := p.Name
		if name == "" {
			name = p.URL
		}
		fmt.Fprintf(w, "  %-30s %6d  %5s  %6.1f",
			truncate(name, 30), p.Score, colored(p.Grade, gradeColor(p.Grade)), p.Weight)
		if p.Ceiling < 100 {
			fmt.Fprintf(w, "  %s", dim(fmt.Sprintf("capped at %d", p.Ceiling)))
		}
		fmt.Fprintln(w)
	}

	if est := carbon.ForRun(snap); est.TransferKB > 0 {
		fmt.Fprintf(w, "\n%s\n", dim(fmt.Sprintf(
			"Transfer footprint: %.1f MB, ~%.1f g CO2e per full visit",
			est.TransferKB/1024, est.GramsCO2)))
	}

	return nil
}

func (r *TerminalRenderer) RenderDiff(w io.Writer, res *diff.Result) error {
	// Header
	fmt.Fprintf(w, "%s\n\n",
		bold(fmt.Sprintf("Pagepulse diff: %s %d -> %d (%s), Grade %s -> %s",
			res.Product, res.BaseScore, res.HeadScore,
			colored(signed(res.Delta), deltaColor(res.Delta)),
			res.BaseGrade, colored(res.HeadGrade, gradeColor(res.HeadGrade)))))

	// Page table
	if len(res.Pages) > 0 {
		fmt.Fprintf(w, "  %-30s %5s  %5s  %6s\n", "PAGE", "BASE", "HEAD", "DELTA")
		for _, p := range res.Pages {
			fmt.Fprintf(w, "  %-30s %5s  %5s  %6s",
				truncate(p.Name, 30), scoreCell(p.BaseScore), scoreCell(p.HeadScore),
				colored(signed(p.Delta), deltaColor(p.Delta)))
			switch {
			case p.New:
				fmt.Fprintf(w, "  %s", dim("new"))
			case p.Removed:
				fmt.Fprintf(w, "  %s", dim("removed"))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if len(res.Regressions) > 0 {
		fmt.Fprintln(w, "Top regressions:")
		for _, m := range res.Regressions {
			fmt.Fprintf(w, "  (%s) %s %s\n",
				colored(signed(m.Delta), colorRed), bold(m.Page), m.Metric)
		}
		fmt.Fprintln(w)
	}
	if len(res.Improvements) > 0 {
		fmt.Fprintln(w, "Top improvements:")
		for _, m := range res.Improvements {
			fmt.Fprintf(w, "  (%s) %s %s\n",
				colored(signed(m.Delta), colorGreen), bold(m.Page), m.Metric)
		}
		fmt.Fprintln(w)
	}

	if len(res.Noteworthy) > 0 {
		fmt.Fprintln(w, "Noteworthy metric changes:")
		for _, n := range res.Noteworthy {
			fmt.Fprintf(w, "  %s %s %g -> %g (%+g, threshold %g)\n",
				bold(n.Page), n.Metric, n.Base, n.Head, n.Delta, n.Threshold)
		}
		fmt.Fprintln(w)
	}

	if len(res.Regressions)+len(res.Improvements)+len(res.Noteworthy) == 0 {
		fmt.Fprintln(w, "No notable changes.")
	}

	return nil
}

func (r *TerminalRenderer) RenderHistory(w io.Writer, series *trend.Series, movers *trend.MoversResult) error {
	fmt.Fprintf(w, "%s\n\n",
		bold(fmt.Sprintf("Pagepulse history: %s (%d runs, best %d, worst %d, mean %.1f)",
			series.Product, len(series.Points), series.Best, series.Worst, series.Mean)))

	fmt.Fprintf(w, "  %-20s %6s  %5s  %6s  %5s\n", "CAPTURED", "SCORE", "GRADE", "DELTA", "PAGES")
	for _, p := range series.Points {
		delta := ""
		if p.Delta != 0 {
			delta = signed(p.Delta)
		}
		fmt.Fprintf(w, "  %-20s %6d  %5s  %6s  %5d\n",
			p.TakenAt.Format("2006-01-02 15:04"), p.Score100,
			colored(p.Grade, gradeColor(p.Grade)),
			colored(delta, deltaColor(p.Delta)), p.Pages)
	}
	fmt.Fprintln(w)

	if movers == nil {
		return nil
	}
	if len(movers.Improving) > 0 {
		fmt.Fprintln(w, "Improving pages:")
		for _, m := range movers.Improving {
			fmt.Fprintf(w, "  %s %d -> %d (%s)\n",
				bold(m.Name), m.First, m.Last, colored(signed(m.Delta), colorGreen))
		}
		fmt.Fprintln(w)
	}
	if len(movers.Declining) > 0 {
		fmt.Fprintln(w, "Declining pages:")
		for _, m := range movers.Declining {
			fmt.Fprintf(w, "  %s %d -> %d (%s)\n",
				bold(m.Name), m.First, m.Last, colored(signed(m.Delta), colorRed))
		}
		fmt.Fprintln(w)
	}

	return nil
}

func scoreCell(score *int) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *score)
}

// truncate shortens a string to width runes with an ellipsis.
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
