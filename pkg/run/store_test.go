package run_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/pkg/run"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shop", "shop"},
		{"My Product", "my-product"},
		{"API v2!", "api-v2"},
		{"a__b  c", "a-b-c"},
		{"--x--", "x"},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		if got := run.Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStore_SaveListChronological(t *testing.T) {
	store := run.NewStore(t.TempDir())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Save out of order; List must still come back chronological.
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		snap := makeSnapshot(t, "My Shop", base.Add(offset), testPage("home", 80, 1))
		if _, err := store.Save(snap); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	paths, err := store.List("My Shop")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(paths))
	}

	var last time.Time
	for _, p := range paths {
		snap, err := run.Load(p)
		if err != nil {
			t.Fatalf("Load(%s) error: %v", p, err)
		}
		if snap.TakenAt.Before(last) {
			t.Errorf("runs out of order: %v before %v", snap.TakenAt, last)
		}
		last = snap.TakenAt
	}
}

func TestStore_Latest(t *testing.T) {
	store := run.NewStore(t.TempDir())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, score := range []int{40, 60, 90} {
		snap := makeSnapshot(t, "shop", base.Add(time.Duration(i)*time.Hour), testPage("home", score, 1))
		if _, err := store.Save(snap); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := store.Latest("shop")
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest.Score100 != 90 {
		t.Errorf("latest Score100 = %d, want 90", latest.Score100)
	}
}

func TestStore_LatestPair(t *testing.T) {
	store := run.NewStore(t.TempDir())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, score := range []int{40, 60, 90} {
		snap := makeSnapshot(t, "shop", base.Add(time.Duration(i)*time.Hour), testPage("home", score, 1))
		if _, err := store.Save(snap); err != nil {
			t.Fatal(err)
		}
	}

	oldRun, newRun, err := store.LatestPair("shop")
	if err != nil {
		t.Fatalf("LatestPair() error: %v", err)
	}
	if oldRun.Score100 != 60 || newRun.Score100 != 90 {
		t.Errorf("pair = %d/%d, want 60/90", oldRun.Score100, newRun.Score100)
	}
}

func TestStore_InsufficientHistory(t *testing.T) {
	store := run.NewStore(t.TempDir())

	if _, err := store.Latest("ghost"); !errors.Is(err, run.ErrInsufficientHistory) {
		t.Errorf("Latest() error = %v, want ErrInsufficientHistory", err)
	}

	snap := makeSnapshot(t, "shop", time.Now(), testPage("home", 80, 1))
	if _, err := store.Save(snap); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.LatestPair("shop"); !errors.Is(err, run.ErrInsufficientHistory) {
		t.Errorf("LatestPair() error = %v, want ErrInsufficientHistory", err)
	}
}

func TestStore_Products(t *testing.T) {
	store := run.NewStore(t.TempDir())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, product := range []string{"Web Shop", "blog"} {
		snap := makeSnapshot(t, product, base, testPage("home", 80, 1))
		if _, err := store.Save(snap); err != nil {
			t.Fatal(err)
		}
	}

	slugs, err := store.Products()
	if err != nil {
		t.Fatalf("Products() error: %v", err)
	}
	if len(slugs) != 2 || slugs[0] != "blog" || slugs[1] != "web-shop" {
		t.Errorf("Products() = %v, want [blog web-shop]", slugs)
	}

	missing := run.NewStore(filepath.Join(t.TempDir(), "never-created"))
	slugs, err = missing.Products()
	if err != nil {
		t.Fatalf("Products() on missing root error: %v", err)
	}
	if len(slugs) != 0 {
		t.Errorf("Products() on missing root = %v, want empty", slugs)
	}
}

func TestStore_HistoryLimit(t *testing.T) {
	store := run.NewStore(t.TempDir())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, score := range []int{40, 60, 90, 95} {
		snap := makeSnapshot(t, "shop", base.Add(time.Duration(i)*time.Hour), testPage("home", score, 1))
		if _, err := store.Save(snap); err != nil {
			t.Fatal(err)
		}
	}

	snaps, err := store.History("shop", 2)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(snaps))
	}
	if snaps[0].Score100 != 90 || snaps[1].Score100 != 95 {
		t.Errorf("history = %d/%d, want 90/95", snaps[0].Score100, snaps[1].Score100)
	}

	all, err := store.History("shop", 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 runs, got %d", len(all))
	}
}
