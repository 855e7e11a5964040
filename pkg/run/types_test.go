package run_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/pkg/metrics"
	"github.com/pagepulse/pagepulse/pkg/run"
)

func testPage(name string, score int, weight float64) run.PageEntry {
	return run.PageEntry{
		Name:        name,
		URL:         "https://shop.example/" + name,
		Score:       score,
		Grade:       "C",
		Weight:      weight,
		Metrics:     metrics.Record{"requests": metrics.Number(30)},
		Ceiling:     100,
		ScaleFactor: 1,
	}
}

func TestAccumulator_OrderIndependent(t *testing.T) {
	a, b, c := testPage("alpha", 90, 1), testPage("beta", 60, 2), testPage("gamma", 30, 1)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var acc1 run.Accumulator
	acc1 = acc1.Add(a).Add(b).Add(c)

	var left, right run.Accumulator
	left = left.Add(c)
	right = right.Add(b).Add(a)
	acc2 := left.Merge(right)

	snap1 := acc1.Finalize("shop", nil, at)
	snap2 := acc2.Finalize("shop", nil, at)

	if !reflect.DeepEqual(snap1.Pages, snap2.Pages) {
		t.Errorf("pages differ by accumulation order:\n%v\n%v", snap1.Pages, snap2.Pages)
	}
	if snap1.Score100 != snap2.Score100 {
		t.Errorf("scores differ: %d vs %d", snap1.Score100, snap2.Score100)
	}
}

func TestAccumulator_BranchingDoesNotAlias(t *testing.T) {
	var base run.Accumulator
	base = base.Add(testPage("alpha", 90, 1))

	left := base.Add(testPage("beta", 60, 1))
	right := base.Add(testPage("gamma", 30, 1))

	at := time.Now()
	snapLeft := left.Finalize("shop", nil, at)
	snapRight := right.Finalize("shop", nil, at)

	if got := snapLeft.Pages[1].Name; got != "beta" {
		t.Errorf("left branch page = %s, want beta", got)
	}
	if got := snapRight.Pages[1].Name; got != "gamma" {
		t.Errorf("right branch page = %s, want gamma", got)
	}
}

func TestFinalize_WeightedAggregate(t *testing.T) {
	var acc run.Accumulator
	acc = acc.Add(testPage("home", 80, 2))
	acc = acc.Add(testPage("checkout", 50, 1))

	snap := acc.Finalize("shop", nil, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	// (80*2 + 50*1) / 3 = 70
	if snap.Score100 != 70 {
		t.Errorf("Score100 = %d, want 70", snap.Score100)
	}
	if snap.Grade != "C" {
		t.Errorf("Grade = %s, want C", snap.Grade)
	}
	if snap.Score5 != 3.5 {
		t.Errorf("Score5 = %v, want 3.5", snap.Score5)
	}
	if snap.FormatVersion != run.FormatVersion {
		t.Errorf("FormatVersion = %d, want %d", snap.FormatVersion, run.FormatVersion)
	}
	if snap.ID == "" {
		t.Error("expected a generated run ID")
	}
	if !snap.TakenAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("TakenAt = %v", snap.TakenAt)
	}
}

func TestFinalize_ZeroWeightFallsBackToOne(t *testing.T) {
	var acc run.Accumulator
	acc = acc.Add(testPage("home", 100, 0))
	acc = acc.Add(testPage("checkout", 50, 1))

	snap := acc.Finalize("shop", nil, time.Now())
	if snap.Score100 != 75 {
		t.Errorf("Score100 = %d, want 75", snap.Score100)
	}
}

func TestFinalize_Empty(t *testing.T) {
	var acc run.Accumulator
	snap := acc.Finalize("shop", nil, time.Now())

	if snap.Score100 != 0 {
		t.Errorf("Score100 = %d, want 0", snap.Score100)
	}
	if snap.Grade != "G" {
		t.Errorf("Grade = %s, want G", snap.Grade)
	}
	if len(snap.Pages) != 0 {
		t.Errorf("Pages = %v, want empty", snap.Pages)
	}
}

func TestPageKey(t *testing.T) {
	named := run.PageEntry{Name: "Home Page", URL: "https://shop.example/"}
	if got := named.Key(); got != "home page" {
		t.Errorf("Key() = %q, want %q", got, "home page")
	}

	unnamed := run.PageEntry{URL: "https://Shop.Example/Cart"}
	if got := unnamed.Key(); got != "https://shop.example/cart" {
		t.Errorf("Key() = %q, want %q", got, "https://shop.example/cart")
	}
}

func TestPageIndex_FirstOccurrenceWins(t *testing.T) {
	snap := &run.Snapshot{
		Pages: []run.PageEntry{
			{Name: "Home", Score: 80},
			{Name: "home", Score: 20},
		},
	}

	idx := snap.PageIndex()
	if len(idx) != 1 {
		t.Fatalf("index size = %d, want 1", len(idx))
	}
	if idx["home"].Score != 80 {
		t.Errorf("indexed score = %d, want 80", idx["home"].Score)
	}

	p, ok := snap.Page("home")
	if !ok || p.Score != 80 {
		t.Errorf("Page(home) = %+v, %v", p, ok)
	}
}
