package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInsufficientHistory is returned when a product has fewer stored
// runs than an operation needs.
var ErrInsufficientHistory = errors.New("insufficient run history")

// timestampLayout names run files so lexicographic order is
// chronological order.
const timestampLayout = "20060102T150405.000000000Z"

// Slug converts a product name into a filesystem- and URL-safe
// directory name: lowercased, runs of non-alphanumerics collapsed to
// single hyphens.
func Slug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Store keeps run files on disk, one directory per product slug, one
// timestamped JSON file per run.
type Store struct {
	root string
}

// NewStore opens a store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Dir returns the directory holding a product's runs.
func (s *Store) Dir(product string) string {
	return filepath.Join(s.root, Slug(product))
}

// Save writes a snapshot into the store and returns the path written.
func (s *Store) Save(snap *Snapshot) (string, error) {
	name := snap.TakenAt.UTC().Format(timestampLayout) + ".json"
	path := filepath.Join(s.Dir(snap.Product), name)
	if err := Save(path, snap); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the paths of a product's run files in chronological
// order. A product with no stored runs lists as empty.
func (s *Store) List(product string) ([]string, error) {
	dir := s.Dir(product)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing runs for %s: %w", product, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Products lists the product slugs with at least one stored run, in
// lexicographic order.
func (s *Store) Products() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	var slugs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		paths, err := s.List(e.Name())
		if err != nil || len(paths) == 0 {
			continue
		}
		slugs = append(slugs, e.Name())
	}
	sort.Strings(slugs)
	return slugs, nil
}

// Latest loads a product's most recent run. With no stored runs it
// returns ErrInsufficientHistory.
func (s *Store) Latest(product string) (*Snapshot, error) {
	paths, err := s.List(product)
	if err != nil {
		return nil, err
	}
	if len(paths) < 1 {
		return nil, fmt.Errorf("product %s: %w", product, ErrInsufficientHistory)
	}
	return Load(paths[len(paths)-1])
}

// LatestPair loads a product's two most recent runs, oldest first.
// With fewer than two stored runs it returns ErrInsufficientHistory.
func (s *Store) LatestPair(product string) (base, head *Snapshot, err error) {
	paths, err := s.List(product)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) < 2 {
		return nil, nil, fmt.Errorf("product %s: %w", product, ErrInsufficientHistory)
	}

	base, err = Load(paths[len(paths)-2])
	if err != nil {
		return nil, nil, err
	}
	head, err = Load(paths[len(paths)-1])
	if err != nil {
		return nil, nil, err
	}
	return base, head, nil
}

// History loads up to limit most recent runs in chronological order.
// limit <= 0 loads everything.
func (s *Store) History(product string, limit int) ([]*Snapshot, error) {
	paths, err := s.List(product)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[len(paths)-limit:]
	}

	snaps := make([]*Snapshot, 0, len(paths))
	for _, p := range paths {
		snap, err := Load(p)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
