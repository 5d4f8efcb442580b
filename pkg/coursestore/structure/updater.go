package structure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// Updater regenerates and persists the snapshot for a course. It is safe to
// wire directly to a publish signal via OnPublish.
type Updater struct {
	store  coursestore.ModuleStore
	repo   Repository
	logger *slog.Logger
}

// NewUpdater creates an updater. A nil logger falls back to slog.Default.
func NewUpdater(store coursestore.ModuleStore, repo Repository, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{store: store, repo: repo, logger: logger}
}

// Update regenerates the course's snapshot and upserts it.
//
// A zero-value course key is logged and ignored: the publish signal carries
// keys for non-course publishes too, and those must not clobber the cache or
// fail the caller. Any other failure is logged with the course id and
// returned.
func (u *Updater) Update(ctx context.Context, key coursestore.CourseKey) error {
	if key.IsZero() {
		u.logger.Error("received a non-course key, ignoring", "key", key.String())
		return nil
	}

	snapshot, err := Generate(ctx, u.store, key)
	if err != nil {
		u.logger.Error("failed to generate course structure", "course_id", key.String(), "error", err)
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		u.logger.Error("failed to serialize course structure", "course_id", key.String(), "error", err)
		return fmt.Errorf("failed to serialize structure for %s: %w", key, err)
	}

	row, created, err := u.repo.GetOrCreate(ctx, key.String(), payload)
	if err != nil {
		u.logger.Error("failed to load course structure row", "course_id", key.String(), "error", err)
		return err
	}
	if created {
		return nil
	}

	row.StructureJSON = payload
	row.Modified = time.Now().UTC()
	if err := u.repo.Save(ctx, row); err != nil {
		u.logger.Error("failed to save course structure", "course_id", key.String(), "error", err)
		return err
	}
	return nil
}

// OnPublish adapts Update to the publish-listener shape. Errors are already
// logged by Update and are swallowed here; a failed cache refresh must never
// fail a publish.
func (u *Updater) OnPublish(ctx context.Context, key coursestore.CourseKey) {
	_ = u.Update(ctx, key)
}

// Load fetches and decodes the stored snapshot for a course.
func Load(ctx context.Context, repo Repository, key coursestore.CourseKey) (*Snapshot, error) {
	row, err := repo.Get(ctx, key.String())
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(row.StructureJSON, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode structure for %s: %w", key, err)
	}
	return &snapshot, nil
}
