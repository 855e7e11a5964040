// Package blob stores run snapshot payloads and rendered reports. The
// archive's Postgres rows hold only index fields; the full documents
// live here, keyed by product slug and run ID.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Client abstracts blob storage for run snapshots and reports.
type Client interface {
	PutRun(ctx context.Context, product, runID string, data []byte) error
	GetRun(ctx context.Context, product, runID string) ([]byte, error)
	PutReport(ctx context.Context, product, runID string, data []byte) error
	GetReport(ctx context.Context, product, runID string) ([]byte, error)
}

// RunRef is the storage reference recorded on a run's index row.
func RunRef(product, runID string) string {
	return product + "/runs/" + runID + ".json"
}

// LocalStorage implements Client using the local filesystem. Useful for
// development and testing.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a LocalStorage rooted at the given directory.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

func (s *LocalStorage) path(product, kind, name string) string {
	return filepath.Join(s.BaseDir, product, kind, name)
}

func (s *LocalStorage) put(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// PutRun stores a run snapshot blob.
func (s *LocalStorage) PutRun(ctx context.Context, product, runID string, data []byte) error {
	return s.put(s.path(product, "runs", runID+".json"), data)
}

// GetRun retrieves a run snapshot blob.
func (s *LocalStorage) GetRun(ctx context.Context, product, runID string) ([]byte, error) {
	return os.ReadFile(s.path(product, "runs", runID+".json"))
}

// PutReport stores a rendered report blob.
func (s *LocalStorage) PutReport(ctx context.Context, product, runID string, data []byte) error {
	return s.put(s.path(product, "reports", runID+".md"), data)
}

// GetReport retrieves a rendered report blob.
func (s *LocalStorage) GetReport(ctx context.Context, product, runID string) ([]byte, error) {
	return os.ReadFile(s.path(product, "reports", runID+".md"))
}
