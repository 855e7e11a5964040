package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoragePutGetRun(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir)
	ctx := context.Background()

	data := []byte(`{"format_version":1}`)
	if err := s.PutRun(ctx, "web-shop", "run1", data); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	got, err := s.GetRun(ctx, "web-shop", "run1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("GetRun = %q, want %q", got, data)
	}

	// Verify file path layout
	expectedPath := filepath.Join(dir, "web-shop", "runs", "run1.json")
	if _, err := os.Stat(expectedPath); err != nil {
		t.Errorf("expected file at %s: %v", expectedPath, err)
	}
}

func TestLocalStoragePutGetReport(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir)
	ctx := context.Background()

	data := []byte("## Pagepulse: web-shop scored 82/100 (Grade B)")
	if err := s.PutReport(ctx, "web-shop", "run1", data); err != nil {
		t.Fatalf("PutReport: %v", err)
	}

	got, err := s.GetReport(ctx, "web-shop", "run1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("GetReport = %q, want %q", got, data)
	}

	expectedPath := filepath.Join(dir, "web-shop", "reports", "run1.md")
	if _, err := os.Stat(expectedPath); err != nil {
		t.Errorf("expected file at %s: %v", expectedPath, err)
	}
}

func TestLocalStorageGetNotFound(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "web-shop", "nonexistent")
	if err == nil {
		t.Error("expected error for nonexistent run")
	}
}

func TestRunRef(t *testing.T) {
	got := RunRef("web-shop", "abc-123")
	want := "web-shop/runs/abc-123.json"
	if got != want {
		t.Errorf("RunRef = %q, want %q", got, want)
	}
}
