package coursestore

import (
	"context"
	"io"
)

// ModuleStore defines the interface for course block persistence backends.
//
// All read operations take a fetch depth: FetchBlock returns just the
// addressed block, FetchAll returns the block with its whole subtree loaded
// eagerly (Children populated, no lazy loading afterwards).
type ModuleStore interface {
	// Name identifies the backend instance (includes its namespace).
	Name() string

	// MakeCourseKey builds a course key for this store. Deterministic for a
	// given (org, course, run).
	MakeCourseKey(org, course, run string) CourseKey

	// MintUsageID returns a fresh backend-assigned usage id for a new block
	// of the course.
	MintUsageID(key CourseKey, blockType string) UsageID

	// HasCourse reports whether a course exists under the key.
	HasCourse(ctx context.Context, key CourseKey) (bool, error)

	// GetCourses lists the keys of every course held by the store.
	GetCourses(ctx context.Context) ([]CourseKey, error)

	// CreateCourse creates an empty course with a fresh root block and
	// returns the root. Fails with ErrCourseExists when the key is taken.
	CreateCourse(ctx context.Context, key CourseKey, userID string) (*Block, error)

	// GetCourse returns the course's root block at the given depth.
	GetCourse(ctx context.Context, key CourseKey, depth int) (*Block, error)

	// GetItem returns one block at the given depth.
	GetItem(ctx context.Context, key UsageKey, depth int) (*Block, error)

	// PutItem writes a block (insert or update by usage key).
	PutItem(ctx context.Context, block *Block, userID string) error

	// DeleteCourse removes the course and all of its blocks and asset
	// metadata.
	DeleteCourse(ctx context.Context, key CourseKey, userID string) error

	// SaveAssetMetadata upserts the denormalized per-course asset summary
	// record for one asset.
	SaveAssetMetadata(ctx context.Context, md *Asset) error

	// AssetMetadataForCourse lists the course's asset metadata records.
	AssetMetadataForCourse(ctx context.Context, key CourseKey) ([]*Asset, error)

	// Close releases backend connections. It does not destroy data; teardown
	// is the lifecycle manager's job.
	Close() error
}

// AssetStore defines the interface for binary course-asset persistence,
// separate from block storage.
type AssetStore interface {
	// Save stores the asset content and its metadata.
	Save(ctx context.Context, asset *Asset, r io.Reader) error

	// Open returns a reader over the asset content.
	Open(ctx context.Context, key AssetKey) (io.ReadCloser, error)

	// Find returns the asset metadata for a key.
	Find(ctx context.Context, key AssetKey) (*Asset, error)

	// ListForCourse returns the course's assets sorted by (display name,
	// key) so callers can pair them deterministically.
	ListForCourse(ctx context.Context, key CourseKey) ([]*Asset, error)

	// DeleteForCourse removes every asset belonging to the course.
	DeleteForCourse(ctx context.Context, key CourseKey) error

	// Close releases backend connections.
	Close() error
}
