package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/run"
)

func TestScoreCmdFlags(t *testing.T) {
	cmd := newScoreCmd()
	f := cmd.Flags()

	workers, _ := f.GetInt("workers")
	if workers != 4 {
		t.Errorf("default workers = %d, want 4", workers)
	}
	failUnder, _ := f.GetInt("fail-under")
	if failUnder != 0 {
		t.Errorf("default fail-under = %d, want 0", failUnder)
	}

	for _, flag := range []string{"input", "har", "prom", "product", "kpi", "format", "out", "workers", "fail-under", "no-save", "push-url"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestDiffCmdFlags(t *testing.T) {
	cmd := newDiffCmd()
	f := cmd.Flags()

	for _, flag := range []string{"product", "format", "out"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestHistoryCmdFlags(t *testing.T) {
	cmd := newHistoryCmd()
	f := cmd.Flags()

	limit, _ := f.GetInt("limit")
	if limit != 10 {
		t.Errorf("default limit = %d, want 10", limit)
	}
	movers, _ := f.GetInt("movers")
	if movers != 5 {
		t.Errorf("default movers = %d, want 5", movers)
	}

	for _, flag := range []string{"product", "limit", "movers", "format", "out"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestValidateCmdFlags(t *testing.T) {
	cmd := newValidateCmd()
	f := cmd.Flags()

	for _, flag := range []string{"kpi", "product"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestServeCmdFlags(t *testing.T) {
	cmd := newServeCmd()
	f := cmd.Flags()

	port, _ := f.GetString("port")
	if port != "7700" {
		t.Errorf("default port = %q, want 7700", port)
	}

	for _, flag := range []string{"store", "port"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

const checkoutHAR = `{
  "log": {
    "pages": [{"id": "page_1", "title": "Checkout"}],
    "entries": [
      {
        "request": {"url": "https://shop.example/checkout", "headers": []},
        "response": {
          "status": 200,
          "httpVersion": "h2",
          "headersSize": 250,
          "bodySize": 4096,
          "headers": [{"name": "Strict-Transport-Security", "value": "max-age=63072000"}],
          "content": {"size": 4096, "mimeType": "text/html"}
        }
      }
    ]
  }
}`

func TestCollectPages(t *testing.T) {
	dir := t.TempDir()

	pagesPath := filepath.Join(dir, "pages.json")
	pagesJSON := `[{"name": "Home", "url": "https://shop.example/", "metrics": {"requests": 20}}]`
	if err := os.WriteFile(pagesPath, []byte(pagesJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	harPath := filepath.Join(dir, "checkout.har")
	if err := os.WriteFile(harPath, []byte(checkoutHAR), 0o644); err != nil {
		t.Fatal(err)
	}

	promPath := filepath.Join(dir, "site.prom")
	promText := "pagepulse_cacheHitPct 72\npagepulse_requests 999\ngo_goroutines 12\n"
	if err := os.WriteFile(promPath, []byte(promText), 0o644); err != nil {
		t.Fatal(err)
	}

	pages, err := collectPages(pagesPath, []string{harPath}, promPath)
	if err != nil {
		t.Fatalf("collectPages() error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}

	// Page-level measurements win over the prometheus merge.
	if got := numberMetric(t, pages[0], "requests"); got != 20 {
		t.Errorf("home requests = %v, want 20", got)
	}
	// Site-wide metrics fill the gaps on every page.
	if got := numberMetric(t, pages[0], "cacheHitPct"); got != 72 {
		t.Errorf("home cacheHitPct = %v, want 72", got)
	}
	if got := numberMetric(t, pages[1], "cacheHitPct"); got != 72 {
		t.Errorf("checkout cacheHitPct = %v, want 72", got)
	}

	if pages[1].Name != "Checkout" {
		t.Errorf("HAR page name = %q, want Checkout", pages[1].Name)
	}
	if got := numberMetric(t, pages[1], "requests"); got != 1 {
		t.Errorf("checkout requests = %v, want 1 (from the HAR, not prometheus)", got)
	}
}

func TestCollectPagesNothingToScore(t *testing.T) {
	if _, err := collectPages("", nil, ""); err == nil {
		t.Fatal("expected an error with no inputs")
	}
}

func numberMetric(t *testing.T, p metrics.Page, key string) float64 {
	t.Helper()
	v, ok := p.Metrics.Lookup(key)
	if !ok {
		t.Fatalf("page %q has no metric %q", p.Name, key)
	}
	n, ok := v.AsNumber()
	if !ok {
		t.Fatalf("page %q metric %q is not a number", p.Name, key)
	}
	return n
}

func TestScorePagesDeterministic(t *testing.T) {
	var pages []metrics.Page
	for _, name := range []string{"home", "docs", "pricing", "blog", "careers"} {
		pages = append(pages, metrics.Page{
			Name: name,
			URL:  "https://shop.example/" + name,
			Metrics: metrics.Record{
				"requests":   metrics.Number(float64(20 + len(name))),
				"transferKB": metrics.Number(800),
				"errors":     metrics.Number(0),
			},
		})
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	serial, _ := scorePages(pages, nil, 1)
	parallel, _ := scorePages(pages, nil, 3)

	want := serial.Finalize("shop", nil, at)
	got := parallel.Finalize("shop", nil, at)

	if got.Score100 != want.Score100 {
		t.Errorf("parallel Score100 = %d, want %d", got.Score100, want.Score100)
	}
	if len(got.Pages) != len(want.Pages) {
		t.Fatalf("page counts differ: %d vs %d", len(got.Pages), len(want.Pages))
	}
	for i := range got.Pages {
		if got.Pages[i].Name != want.Pages[i].Name || got.Pages[i].Score != want.Pages[i].Score {
			t.Errorf("page %d = %s/%d, want %s/%d", i,
				got.Pages[i].Name, got.Pages[i].Score, want.Pages[i].Name, want.Pages[i].Score)
		}
	}
}

func TestScorePagesReportsMissingMetrics(t *testing.T) {
	pages := []metrics.Page{{
		Name:    "sparse",
		Metrics: metrics.Record{"requests": metrics.Number(10)},
	}}

	acc, warnings := scorePages(pages, nil, 1)
	if acc.Len() != 1 {
		t.Fatalf("accumulated %d pages, want 1", acc.Len())
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], `page "sparse"`) || !strings.Contains(warnings[0], "transferKB") {
		t.Errorf("warning %q should name the page and a missing metric", warnings[0])
	}
}

func newSeededServer(t *testing.T) *localServer {
	t.Helper()
	store := run.NewStore(t.TempDir())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, sc := range []int{60, 75} {
		var acc run.Accumulator
		acc = acc.Add(run.PageEntry{
			Name:    "home",
			URL:     "https://shop.example/",
			Score:   sc,
			Grade:   "C",
			Weight:  1,
			Metrics: metrics.Record{"requests": metrics.Number(float64(40 - 10*i))},
		})
		snap := acc.Finalize("shop", nil, base.Add(time.Duration(i)*time.Hour))
		if _, err := store.Save(snap); err != nil {
			t.Fatal(err)
		}
	}
	return &localServer{store: store}
}

func serveLocal(t *testing.T, srv *localServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLocalServerProducts(t *testing.T) {
	rec := serveLocal(t, newSeededServer(t), "/api/v1/products")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var products []struct {
		Slug  string `json:"slug"`
		Score int    `json:"score100"`
		Runs  int    `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].Slug != "shop" || products[0].Score != 75 || products[0].Runs != 2 {
		t.Errorf("products = %+v, want one shop entry scoring 75 with 2 runs", products)
	}
}

func TestLocalServerDiff(t *testing.T) {
	rec := serveLocal(t, newSeededServer(t), "/api/v1/products/shop/diff")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		BaseScore int `json:"base_score"`
		HeadScore int `json:"head_score"`
		Delta     int `json:"delta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.BaseScore != 60 || res.HeadScore != 75 || res.Delta != 15 {
		t.Errorf("diff = %+v, want 60 -> 75 (+15)", res)
	}
}

func TestLocalServerHistory(t *testing.T) {
	rec := serveLocal(t, newSeededServer(t), "/api/v1/products/shop/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Series *struct {
			Points []struct {
				Score100 int `json:"score100"`
			} `json:"points"`
		} `json:"series"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Series == nil || len(payload.Series.Points) != 2 {
		t.Fatalf("series = %+v, want 2 points", payload.Series)
	}
	if payload.Series.Points[0].Score100 != 60 || payload.Series.Points[1].Score100 != 75 {
		t.Errorf("points = %+v, want 60 then 75", payload.Series.Points)
	}
}

func TestLocalServerUnknownProduct(t *testing.T) {
	rec := serveLocal(t, newSeededServer(t), "/api/v1/products/ghost/latest")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"a", "b", "c"}, "a"},
		{[]string{"", "b", "c"}, "b"},
		{[]string{"", "", "c"}, "c"},
		{[]string{"", "", ""}, ""},
	}

	for _, tt := range tests {
		got := firstNonEmpty(tt.args...)
		if got != tt.want {
			t.Errorf("firstNonEmpty(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestMinInt(t *testing.T) {
	if minInt(3, 5) != 3 {
		t.Error("minInt(3, 5) should be 3")
	}
	if minInt(5, 3) != 3 {
		t.Error("minInt(5, 3) should be 3")
	}
	if minInt(3, 3) != 3 {
		t.Error("minInt(3, 3) should be 3")
	}
}
