// Package memory implements an in-memory snapshot repository, useful for
// tests and for wiring an updater without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/coursestore/pkg/coursestore"
	"github.com/tendant/coursestore/pkg/coursestore/structure"
)

// Repository is an in-memory implementation of structure.Repository.
type Repository struct {
	mu   sync.RWMutex
	rows map[string]*structure.Row
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{rows: make(map[string]*structure.Row)}
}

// GetOrCreate returns the row for courseID, creating it with the defaults
// payload when absent.
func (r *Repository) GetOrCreate(ctx context.Context, courseID string, defaults []byte) (*structure.Row, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.rows[courseID]; ok {
		return cloneRow(row), false, nil
	}
	row := &structure.Row{
		CourseID:      courseID,
		StructureJSON: append([]byte(nil), defaults...),
		Modified:      time.Now().UTC(),
	}
	r.rows[courseID] = row
	return cloneRow(row), true, nil
}

// Save overwrites the row's payload.
func (r *Repository) Save(ctx context.Context, row *structure.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.CourseID] = cloneRow(row)
	return nil
}

// Get returns the row for courseID.
func (r *Repository) Get(ctx context.Context, courseID string) (*structure.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[courseID]
	if !ok {
		return nil, coursestore.ErrCourseNotFound
	}
	return cloneRow(row), nil
}

// Len reports the number of stored rows.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// Close is a no-op for the in-memory repository.
func (r *Repository) Close() error {
	return nil
}

func cloneRow(row *structure.Row) *structure.Row {
	clone := *row
	clone.StructureJSON = append([]byte(nil), row.StructureJSON...)
	return &clone
}
