package structure

import (
	"context"
	"time"
)

// Row is one persisted snapshot. StructureJSON holds the serialized Snapshot;
// repositories may compress it at rest but always return it decompressed.
type Row struct {
	CourseID      string
	StructureJSON []byte
	Modified      time.Time
}

// Repository persists at most one snapshot row per course id.
type Repository interface {
	// GetOrCreate returns the row for the course, creating it with the given
	// payload when absent. The second result reports whether a row was
	// created.
	GetOrCreate(ctx context.Context, courseID string, defaults []byte) (*Row, bool, error)

	// Save overwrites the row's payload.
	Save(ctx context.Context, row *Row) error

	// Get returns the row for the course, or coursestore.ErrCourseNotFound
	// wrapped when no snapshot exists.
	Get(ctx context.Context, courseID string) (*Row, error)

	Close() error
}
