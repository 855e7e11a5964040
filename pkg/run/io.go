package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IntegrityError reports a run snapshot that cannot be trusted:
// unreadable JSON, a format version this build does not understand, or
// required fields missing or out of range. Path is empty when the
// snapshot did not come from a file.
type IntegrityError struct {
	Path   string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("run snapshot: %s", e.Reason)
	}
	return fmt.Sprintf("run file %s: %s", e.Path, e.Reason)
}

// Save writes a snapshot to disk as indented JSON, creating parent
// directories as needed.
func Save(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for run: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}

	return nil
}

// Load reads a snapshot from disk and checks its integrity. Decode and
// validation failures surface as *IntegrityError.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &IntegrityError{Path: path, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if reason := validate(&snap); reason != "" {
		return nil, &IntegrityError{Path: path, Reason: reason}
	}

	return &snap, nil
}

// Validate checks an in-memory snapshot against the same integrity
// rules Load applies.
func Validate(snap *Snapshot) error {
	if reason := validate(snap); reason != "" {
		return &IntegrityError{Path: "", Reason: reason}
	}
	return nil
}

func validate(snap *Snapshot) string {
	if snap.FormatVersion != FormatVersion {
		return fmt.Sprintf("unsupported format version %d (want %d)", snap.FormatVersion, FormatVersion)
	}
	if snap.ID == "" {
		return "missing id"
	}
	if snap.Product == "" {
		return "missing product"
	}
	if snap.TakenAt.IsZero() {
		return "missing taken_at"
	}
	if snap.Score100 < 0 || snap.Score100 > 100 {
		return fmt.Sprintf("score %d out of range", snap.Score100)
	}
	for i, p := range snap.Pages {
		if p.Name == "" && p.URL == "" {
			return fmt.Sprintf("page %d has neither name nor url", i)
		}
		if p.Score < 0 || p.Score > 100 {
			return fmt.Sprintf("page %q score %d out of range", p.Key(), p.Score)
		}
	}
	return ""
}
