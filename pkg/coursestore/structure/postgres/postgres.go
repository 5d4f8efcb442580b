// Package postgres implements a snapshot repository on PostgreSQL via pgx.
// The snapshot JSON is stored gzip-compressed and base64-encoded in a text
// column, keeping the schema portable across the sql-backed repositories.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/coursestore/pkg/coursestore"
	"github.com/tendant/coursestore/pkg/coursestore/structure"
)

// Repository is a PostgreSQL-backed implementation of structure.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	owned bool
}

// New creates a repository on an existing connection pool and bootstraps the
// schema. The caller keeps ownership of the pool; Close does not close it.
func New(ctx context.Context, pool *pgxpool.Pool) (*Repository, error) {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS course_structures (
		course_id      TEXT PRIMARY KEY,
		structure_text TEXT NOT NULL,
		modified       TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Connect opens a pool for the given URL and builds a repository that owns
// it; Close then closes the pool.
func Connect(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	repo.owned = true
	return repo, nil
}

// GetOrCreate returns the row for courseID, creating it with the defaults
// payload when absent.
func (r *Repository) GetOrCreate(ctx context.Context, courseID string, defaults []byte) (*structure.Row, bool, error) {
	row, err := r.Get(ctx, courseID)
	if err == nil {
		return row, false, nil
	}
	if !errors.Is(err, coursestore.ErrCourseNotFound) {
		return nil, false, err
	}

	created := &structure.Row{
		CourseID:      courseID,
		StructureJSON: append([]byte(nil), defaults...),
		Modified:      time.Now().UTC(),
	}
	if err := r.Save(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// Save upserts the row.
func (r *Repository) Save(ctx context.Context, row *structure.Row) error {
	text, err := structure.CompressText(row.StructureJSON)
	if err != nil {
		return err
	}
	if row.Modified.IsZero() {
		row.Modified = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO course_structures (course_id, structure_text, modified)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id) DO UPDATE SET
			structure_text = EXCLUDED.structure_text,
			modified       = EXCLUDED.modified`,
		row.CourseID, text, row.Modified)
	if err != nil {
		return fmt.Errorf("failed to save structure for %s: %w", row.CourseID, err)
	}
	return nil
}

// Get returns the row for courseID with the payload decompressed.
func (r *Repository) Get(ctx context.Context, courseID string) (*structure.Row, error) {
	var text string
	var modified time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT structure_text, modified FROM course_structures WHERE course_id = $1`,
		courseID).Scan(&text, &modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no structure for %s: %w", courseID, coursestore.ErrCourseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load structure for %s: %w", courseID, err)
	}
	payload, err := structure.DecompressText(text)
	if err != nil {
		return nil, err
	}
	return &structure.Row{CourseID: courseID, StructureJSON: payload, Modified: modified}, nil
}

// Close closes the pool when the repository owns it (see Connect).
func (r *Repository) Close() error {
	if r.owned {
		r.pool.Close()
	}
	return nil
}
