package run_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/pkg/run"
)

func makeSnapshot(t *testing.T, product string, at time.Time, pages ...run.PageEntry) *run.Snapshot {
	t.Helper()
	var acc run.Accumulator
	for _, p := range pages {
		acc = acc.Add(p)
	}
	return acc.Finalize(product, nil, at)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs", "shop", "run.json")

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := makeSnapshot(t, "shop", at,
		testPage("home", 80, 2),
		testPage("checkout", 50, 1),
	)

	if err := run.Save(path, snap); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := run.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loaded.ID != snap.ID {
		t.Errorf("ID = %s, want %s", loaded.ID, snap.ID)
	}
	if loaded.Product != "shop" {
		t.Errorf("Product = %s, want shop", loaded.Product)
	}
	if !loaded.TakenAt.Equal(at) {
		t.Errorf("TakenAt = %v, want %v", loaded.TakenAt, at)
	}
	if loaded.Score100 != snap.Score100 {
		t.Errorf("Score100 = %d, want %d", loaded.Score100, snap.Score100)
	}
	if len(loaded.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(loaded.Pages))
	}

	// Metric values survive the trip with their kinds intact.
	v, ok := loaded.Pages[0].Metrics.Lookup("requests")
	if !ok {
		t.Fatal("expected requests metric on first page")
	}
	if n, ok := v.AsNumber(); !ok || n != 30 {
		t.Errorf("requests = %v (%v), want 30", n, ok)
	}
}

func TestLoadRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := run.Load(path)
	var ierr *run.IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("Load() error = %v, want IntegrityError", err)
	}
	if ierr.Path != path {
		t.Errorf("Path = %s, want %s", ierr.Path, path)
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	snap := makeSnapshot(t, "shop", time.Now(), testPage("home", 80, 1))
	snap.FormatVersion = 99

	path := filepath.Join(t.TempDir(), "run.json")
	if err := run.Save(path, snap); err != nil {
		t.Fatal(err)
	}

	_, err := run.Load(path)
	var ierr *run.IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("Load() error = %v, want IntegrityError", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := run.Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ierr *run.IntegrityError
	if errors.As(err, &ierr) {
		t.Errorf("missing file should not be an IntegrityError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := makeSnapshot(t, "shop", time.Now(), testPage("home", 80, 1))

	tests := []struct {
		name   string
		mutate func(*run.Snapshot)
		ok     bool
	}{
		{"valid", func(s *run.Snapshot) {}, true},
		{"wrong version", func(s *run.Snapshot) { s.FormatVersion = 2 }, false},
		{"missing id", func(s *run.Snapshot) { s.ID = "" }, false},
		{"missing product", func(s *run.Snapshot) { s.Product = "" }, false},
		{"zero timestamp", func(s *run.Snapshot) { s.TakenAt = time.Time{} }, false},
		{"score out of range", func(s *run.Snapshot) { s.Score100 = 101 }, false},
		{"page without identity", func(s *run.Snapshot) {
			s.Pages[0].Name = ""
			s.Pages[0].URL = ""
		}, false},
		{"page score out of range", func(s *run.Snapshot) { s.Pages[0].Score = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := *base
			snap.Pages = append([]run.PageEntry(nil), base.Pages...)
			tt.mutate(&snap)

			err := run.Validate(&snap)
			if tt.ok && err != nil {
				t.Errorf("Validate() error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
