// Package sqlite implements a snapshot repository on SQLite. The snapshot
// JSON is stored gzip-compressed and base64-encoded in a plain text column.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tendant/coursestore/pkg/coursestore"
	"github.com/tendant/coursestore/pkg/coursestore/structure"
)

const busyTimeoutMS = 5000

// Config options for the SQLite snapshot repository.
type Config struct {
	Path string // SQLite database file
}

// Repository is a SQLite-backed implementation of structure.Repository.
type Repository struct {
	db *sql.DB
}

// New opens (and bootstraps) a repository at cfg.Path.
func New(cfg Config) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+cfg.Path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot repository: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS course_structures (
		course_id      TEXT PRIMARY KEY,
		structure_text TEXT NOT NULL,
		modified       TIMESTAMP NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return &Repository{db: db}, nil
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
	_, err = r.db.ExecContext(ctx, `INSERT INTO course_structures (course_id, structure_text, modified)
		VALUES (?, ?, ?)
		ON CONFLICT (course_id) DO UPDATE SET
			structure_text = excluded.structure_text,
			modified       = excluded.modified`,
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
	err := r.db.QueryRowContext(ctx,
		`SELECT structure_text, modified FROM course_structures WHERE course_id = ?`,
		courseID).Scan(&text, &modified)
	if errors.Is(err, sql.ErrNoRows) {
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

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}
