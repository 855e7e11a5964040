// Package archive indexes products and their scored runs in Postgres.
// Snapshot payloads live in blob storage; these rows are the queryable
// index over them.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound reports that a product or run row does not exist.
var ErrNotFound = errors.New("not found")

// Service provides product and run indexing backed by Postgres.
type Service struct {
	db *sql.DB
}

// Product is one tracked site or application.
type Product struct {
	ID          string
	Name        string
	DisplayName string
	CreatedAt   time.Time
}

// RunRow is the index entry for one archived run. StorageRef points at
// the snapshot blob; RescoredAt is set when a rescore rewrote the row.
type RunRow struct {
	ID         string
	ProductID  string
	TakenAt    time.Time
	Score      int
	Grade      string
	Score5     float64
	PageCount  int
	StorageRef string
	CreatedAt  time.Time
	RescoredAt *time.Time
}

// NewService creates a new archive Service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateProduct creates a new product. Name is the canonical slug used
// in URLs and storage keys; displayName is free-form and falls back to
// the name when empty.
func (s *Service) CreateProduct(ctx context.Context, name, displayName string) (*Product, error) {
	if displayName == "" {
		displayName = name
	}
	p := &Product{}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO products (name, display_name)
		 VALUES ($1, $2)
		 RETURNING id, name, display_name, created_at`,
		name, displayName,
	).Scan(&p.ID, &p.Name, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// GetProduct looks up a product by name.
func (s *Service) GetProduct(ctx context.Context, name string) (*Product, error) {
	p := &Product{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, created_at
		 FROM products WHERE name = $1`,
		name,
	).Scan(&p.ID, &p.Name, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", name, err)
	}
	return p, nil
}

// EnsureProduct gets or creates a product by name.
func (s *Service) EnsureProduct(ctx context.Context, name, displayName string) (*Product, error) {
	p, err := s.GetProduct(ctx, name)
	if err == nil {
		return p, nil
	}

	p, err = s.CreateProduct(ctx, name, displayName)
	if err != nil {
		// Could be a race with a concurrent ingest; try getting again.
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return s.GetProduct(ctx, name)
		}
		return nil, fmt.Errorf("ensure product: %w", err)
	}
	return p, nil
}

// ListProducts returns all products ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_name, created_at
		 FROM products ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SetDisplayName updates a product's display name.
func (s *Service) SetDisplayName(ctx context.Context, name, displayName string) (*Product, error) {
	p := &Product{}
	err := s.db.QueryRowContext(ctx,
		`UPDATE products SET display_name = $2
		 WHERE name = $1
		 RETURNING id, name, display_name, created_at`,
		name, displayName,
	).Scan(&p.ID, &p.Name, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("set display name for %s: %w", name, err)
	}
	return p, nil
}

// DeleteProduct removes a product and, through the schema's cascade, all
// of its run rows. Blobs are the caller's cleanup.
func (s *Service) DeleteProduct(ctx context.Context, name string) error {
	var id string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM products WHERE name = $1 RETURNING id`,
		name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete product %s: %w", name, err)
	}
	return nil
}

// InsertRun records one archived run. Re-inserting the same run ID
// refreshes the row, so repeated ingest of a snapshot is idempotent.
func (s *Service) InsertRun(ctx context.Context, row *RunRow) (*RunRow, error) {
	r := &RunRow{}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO runs (id, product_id, taken_at, score100, grade, score5, page_count, storage_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		   SET score100 = EXCLUDED.score100,
		       grade = EXCLUDED.grade,
		       score5 = EXCLUDED.score5,
		       page_count = EXCLUDED.page_count,
		       storage_ref = EXCLUDED.storage_ref
		 RETURNING id, product_id, taken_at, score100, grade, score5, page_count, storage_ref, created_at, rescored_at`,
		row.ID, row.ProductID, row.TakenAt, row.Score, row.Grade, row.Score5, row.PageCount, row.StorageRef,
	).Scan(
		&r.ID, &r.ProductID, &r.TakenAt, &r.Score, &r.Grade, &r.Score5,
		&r.PageCount, &r.StorageRef, &r.CreatedAt, &r.RescoredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run %s: %w", row.ID, err)
	}
	return r, nil
}

// GetRun returns a single run row by ID.
func (s *Service) GetRun(ctx context.Context, runID string) (*RunRow, error) {
	r := &RunRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, taken_at, score100, grade, score5, page_count, storage_ref, created_at, rescored_at
		 FROM runs WHERE id = $1`,
		runID,
	).Scan(
		&r.ID, &r.ProductID, &r.TakenAt, &r.Score, &r.Grade, &r.Score5,
		&r.PageCount, &r.StorageRef, &r.CreatedAt, &r.RescoredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns a product's runs newest first. A limit of zero or
// less returns all of them.
func (s *Service) ListRuns(ctx context.Context, productID string, limit int) ([]RunRow, error) {
	query := `SELECT id, product_id, taken_at, score100, grade, score5, page_count, storage_ref, created_at, rescored_at
	          FROM runs WHERE product_id = $1 ORDER BY taken_at DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(
			&r.ID, &r.ProductID, &r.TakenAt, &r.Score, &r.Grade, &r.Score5,
			&r.PageCount, &r.StorageRef, &r.CreatedAt, &r.RescoredAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpdateRunScore rewrites a run row's scored fields after a rescore and
// stamps rescored_at.
func (s *Service) UpdateRunScore(ctx context.Context, runID string, score100 int, grade string, score5 float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET score100 = $2, grade = $3, score5 = $4, rescored_at = now()
		 WHERE id = $1`,
		runID, score100, grade, score5,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}
