package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagepulse/pagepulse/pkg/config"
	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/score"
	"github.com/pagepulse/pagepulse/pkg/surface"
)

func newScoreCmd() *cobra.Command {
	var (
		input     string
		harFiles  []string
		promFile  string
		product   string
		kpiPath   string
		outputFmt string
		outPath   string
		workers   int
		failUnder int
		noSave    bool
		pushURL   string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score collected page measurements into a graded run",
		Long: `Scores every measured page against the KPI configuration, aggregates
the pages into a product score, and records the run in the local
history. Pages come from a collector JSON file, HAR captures, or both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), scoreOpts{
				input:     input,
				harFiles:  harFiles,
				promFile:  promFile,
				product:   product,
				kpiPath:   kpiPath,
				outputFmt: outputFmt,
				outPath:   outPath,
				workers:   workers,
				failUnder: failUnder,
				noSave:    noSave,
				pushURL:   pushURL,
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Collector pages JSON file (default: pages from .pagepulse.yml)")
	cmd.Flags().StringSliceVar(&harFiles, "har", nil, "HAR capture scored as one page (repeatable)")
	cmd.Flags().StringVar(&promFile, "prom", "", "Prometheus text file merged into every page as site-wide metrics")
	cmd.Flags().StringVar(&product, "product", "", "Product name (default: product from .pagepulse.yml)")
	cmd.Flags().StringVar(&kpiPath, "kpi", "", "KPI configuration file (default: built-in thresholds)")
	cmd.Flags().StringVar(&outputFmt, "format", "", "Output format: terminal, markdown, csv, or json")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the rendered scorecard to a file instead of stdout")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent page scorers")
	cmd.Flags().IntVar(&failUnder, "fail-under", 0, "Exit non-zero when the product score is below this")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Skip recording the run in the local history")
	cmd.Flags().StringVar(&pushURL, "push-url", "", "Hosted archive to push the run to (default: push.url from .pagepulse.yml)")

	return cmd
}

type scoreOpts struct {
	input     string
	harFiles  []string
	promFile  string
	product   string
	kpiPath   string
	outputFmt string
	outPath   string
	workers   int
	failUnder int
	noSave    bool
	pushURL   string
}

func runScore(ctx context.Context, opts scoreOpts) error {
	cfg := loadProjectConfig()

	product := firstNonEmpty(opts.product, cfg.Product)
	if product == "" {
		return fmt.Errorf("no product name: pass --product or set product in .pagepulse.yml")
	}

	fmt.Fprintf(os.Stderr, "Step 1/4: Loading KPI configuration...\n")
	kpiPath := firstNonEmpty(opts.kpiPath, cfg.KPIConfig)
	kpiCfg, err := kpi.Load(kpiPath)
	if err != nil {
		return fmt.Errorf("loading KPI configuration: %w", err)
	}
	if kpiPath == "" {
		fmt.Fprintf(os.Stderr, "  Using built-in defaults\n")
	}

	fmt.Fprintf(os.Stderr, "Step 2/4: Collecting pages...\n")
	pages, err := collectPages(firstNonEmpty(opts.input, cfg.Pages), opts.harFiles, opts.promFile)
	if err != nil {
		return err
	}

	workers := opts.workers
	if workers < 1 {
		workers = 1
	}
	workers = minInt(workers, len(pages))
	fmt.Fprintf(os.Stderr, "Step 3/4: Scoring %d pages with %d workers...\n", len(pages), workers)

	acc, warnings := scorePages(pages, kpiCfg, workers)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  Warning: %s\n", w)
	}

	snap := acc.Finalize(product, kpiCfg, time.Now().UTC())
	fmt.Fprintf(os.Stderr, "  Product score: %d (%s)\n", snap.Score100, snap.Grade)

	fmt.Fprintf(os.Stderr, "Step 4/4: Writing scorecard...\n")
	if !opts.noSave {
		saveRun(cfg, snap)
	}
	writeReportCopy(cfg, snap)

	renderer, err := surface.ForFormat(firstNonEmpty(opts.outputFmt, cfg.Format))
	if err != nil {
		return err
	}
	if err := renderTo(opts.outPath, func(w io.Writer) error {
		return renderer.RenderRun(w, snap)
	}); err != nil {
		return fmt.Errorf("rendering scorecard: %w", err)
	}

	if pushURL := firstNonEmpty(opts.pushURL, cfg.Push.URL); pushURL != "" {
		fmt.Fprintf(os.Stderr, "Pushing run to %s...\n", pushURL)
		token := firstNonEmpty(os.Getenv("PAGEPULSE_TOKEN"), cfg.Push.Token)
		timeout := time.Duration(cfg.Push.Timeout) * time.Second
		if err := pushRun(ctx, pushURL, token, timeout, snap); err != nil {
			fmt.Fprintf(os.Stderr, "  Warning: push failed: %v\n", err)
		}
	}

	failUnder := opts.failUnder
	if failUnder == 0 {
		failUnder = cfg.FailUnder
	}
	if failUnder > 0 && snap.Score100 < failUnder {
		return fmt.Errorf("score %d is below fail-under %d", snap.Score100, failUnder)
	}

	return nil
}

// collectPages gathers pages from the collector JSON file and any HAR
// captures. A Prometheus text file contributes site-wide metrics that
// fill the gaps in every page; page-level measurements always win.
func collectPages(input string, harFiles []string, promFile string) ([]metrics.Page, error) {
	var pages []metrics.Page

	if input != "" {
		loaded, err := metrics.LoadPages(input)
		if err != nil {
			return nil, err
		}
		pages = append(pages, loaded...)
	}

	for _, path := range harFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading HAR %s: %w", path, err)
		}
		page, err := metrics.FromHAR(data)
		if err != nil {
			return nil, fmt.Errorf("HAR %s: %w", path, err)
		}
		pages = append(pages, page)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("nothing to score: pass --input or --har")
	}

	if promFile != "" {
		f, err := os.Open(promFile)
		if err != nil {
			return nil, fmt.Errorf("reading prometheus file: %w", err)
		}
		defer f.Close()
		rec, err := metrics.ParsePromText(f)
		if err != nil {
			return nil, err
		}
		for i := range pages {
			for key, v := range rec {
				if _, ok := pages[i].Metrics.Lookup(key); !ok {
					pages[i].Metrics[key] = v
				}
			}
		}
	}

	return pages, nil
}

// scorePages scores pages concurrently. Each worker folds into its own
// accumulator; the accumulators are merged once the pool drains, so
// scheduling order never changes the result. Returned warnings describe
// pages with metrics missing from their records, sorted for stable
// output.
func scorePages(pages []metrics.Page, cfg *kpi.Config, workers int) (run.Accumulator, []string) {
	accs := make([]run.Accumulator, workers)
	warns := make([][]string, workers)

	jobs := make(chan metrics.Page)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for p := range jobs {
				res := score.Compute(p.Metrics, cfg)
				accs[w] = accs[w].Add(pageEntry(p, res))
				if len(res.Missing) > 0 {
					warns[w] = append(warns[w], fmt.Sprintf("page %q missing metrics: %s",
						pageName(p), strings.Join(res.Missing, ", ")))
				}
			}
		}(w)
	}
	for _, p := range pages {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	var acc run.Accumulator
	for _, a := range accs {
		acc = acc.Merge(a)
	}
	var all []string
	for _, w := range warns {
		all = append(all, w...)
	}
	sort.Strings(all)
	return acc, all
}

func pageEntry(p metrics.Page, res *score.Result) run.PageEntry {
	return run.PageEntry{
		Name:          p.Name,
		URL:           p.URL,
		Score:         res.Score,
		Grade:         res.Grade,
		Weight:        p.EffectiveWeight(),
		Metrics:       p.Metrics,
		SubScores:     res.SubScores,
		Contributions: res.Contributions,
		Ceiling:       res.Ceiling,
		ScaleFactor:   res.ScaleFactor,
	}
}

func pageName(p metrics.Page) string {
	if p.Name != "" {
		return p.Name
	}
	return p.URL
}

// saveRun records the snapshot in the local history store.
func saveRun(cfg *config.Config, snap *run.Snapshot) {
	store := run.NewStore(cfg.StoreDir())
	path, err := store.Save(snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Warning: failed to save run: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "  Run saved: %s\n", path)
}

// writeReportCopy drops a markdown scorecard into the configured report
// directory, when there is one.
func writeReportCopy(cfg *config.Config, snap *run.Snapshot) {
	if cfg.ReportDir == "" {
		return
	}
	dir := filepath.Join(cfg.ReportDir, run.Slug(snap.Product))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "  Warning: failed to create report dir: %v\n", err)
		return
	}

	path := filepath.Join(dir, snap.ID+".md")
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Warning: failed to write report: %v\n", err)
		return
	}
	defer f.Close()

	renderer := &surface.MarkdownRenderer{}
	if err := renderer.RenderRun(f, snap); err != nil {
		fmt.Fprintf(os.Stderr, "  Warning: failed to render report: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "  Report saved: %s\n", path)
}

// pushRun uploads a finished run to a hosted archive. The body is
// gzipped.
func pushRun(ctx context.Context, baseURL, token string, timeout time.Duration, snap *run.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return fmt.Errorf("compressing run: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing run: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/api/v1/runs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("archive returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// renderTo runs render against the given file, or stdout when path is
// empty.
func renderTo(path string, render func(io.Writer) error) error {
	if path == "" {
		return render(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return render(f)
}

// loadProjectConfig finds and reads .pagepulse.yml, falling back to
// defaults when it is missing or unreadable.
func loadProjectConfig() *config.Config {
	cwd, err := os.Getwd()
	if err != nil {
		return config.DefaultConfig()
	}
	cfgFile := config.FindConfigFile(cwd)
	if cfgFile == "" {
		return config.DefaultConfig()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return config.DefaultConfig()
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
