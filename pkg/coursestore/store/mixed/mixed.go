// Package mixed composes multiple named module stores behind one
// coursestore.ModuleStore, routing operations by a course-to-store mapping.
// Courses without a mapping go to the first configured store.
package mixed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// NamedStore pairs a backend store with its configured name.
type NamedStore struct {
	Name  string
	Store coursestore.ModuleStore
}

// assetCollector is satisfied by backends exposing their raw asset-metadata
// handle.
type assetCollector interface {
	AssetCollection() any
}

// Store is the unified façade over an ordered list of named backends.
type Store struct {
	stores   []NamedStore
	mappings map[coursestore.CourseKey]string
	logger   *slog.Logger
}

// Option configures the mixed store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a mixed store over the given backends. At least one backend is
// required; the first one is the default route.
func New(stores []NamedStore, mappings map[coursestore.CourseKey]string, opts ...Option) (*Store, error) {
	if len(stores) == 0 {
		return nil, errors.New("at least one backend store is required")
	}
	seen := make(map[string]bool, len(stores))
	for _, ns := range stores {
		if ns.Name == "" || ns.Store == nil {
			return nil, errors.New("backend stores need a name and an instance")
		}
		if seen[ns.Name] {
			return nil, fmt.Errorf("duplicate backend store name %q", ns.Name)
		}
		seen[ns.Name] = true
	}
	for key, name := range mappings {
		if !seen[name] {
			return nil, fmt.Errorf("mapping for %s names unknown store %q", key, name)
		}
	}

	s := &Store{stores: stores, mappings: mappings, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.mappings == nil {
		s.mappings = map[coursestore.CourseKey]string{}
	}
	return s, nil
}

// storeFor resolves the backend for a course key.
func (s *Store) storeFor(key coursestore.CourseKey) coursestore.ModuleStore {
	if name, ok := s.mappings[key]; ok {
		for _, ns := range s.stores {
			if ns.Name == name {
				return ns.Store
			}
		}
	}
	return s.stores[0].Store
}

// Name identifies the façade and its backends.
func (s *Store) Name() string {
	names := make([]string, len(s.stores))
	for i, ns := range s.stores {
		names[i] = ns.Name
	}
	return "mixed(" + strings.Join(names, ",") + ")"
}

// MakeCourseKey delegates to the default backend. Deterministic for the
// three parts regardless of routing.
func (s *Store) MakeCourseKey(org, course, run string) coursestore.CourseKey {
	return s.stores[0].Store.MakeCourseKey(org, course, run)
}

// MintUsageID delegates to the backend responsible for the course.
func (s *Store) MintUsageID(key coursestore.CourseKey, blockType string) coursestore.UsageID {
	return s.storeFor(key).MintUsageID(key, blockType)
}

// HasCourse reports whether the routed backend holds the course.
func (s *Store) HasCourse(ctx context.Context, key coursestore.CourseKey) (bool, error) {
	return s.storeFor(key).HasCourse(ctx, key)
}

// GetCourses returns the union of all backends' courses.
func (s *Store) GetCourses(ctx context.Context) ([]coursestore.CourseKey, error) {
	var keys []coursestore.CourseKey
	seen := make(map[coursestore.CourseKey]bool)
	for _, ns := range s.stores {
		ks, err := ns.Store.GetCourses(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range ks {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// CreateCourse creates the course in the routed backend.
func (s *Store) CreateCourse(ctx context.Context, key coursestore.CourseKey, userID string) (*coursestore.Block, error) {
	return s.storeFor(key).CreateCourse(ctx, key, userID)
}

// GetCourse reads the course root from the routed backend.
func (s *Store) GetCourse(ctx context.Context, key coursestore.CourseKey, depth int) (*coursestore.Block, error) {
	return s.storeFor(key).GetCourse(ctx, key, depth)
}

// GetItem reads one block from the routed backend.
func (s *Store) GetItem(ctx context.Context, key coursestore.UsageKey, depth int) (*coursestore.Block, error) {
	return s.storeFor(key.Course).GetItem(ctx, key, depth)
}

// PutItem writes one block through the routed backend.
func (s *Store) PutItem(ctx context.Context, block *coursestore.Block, userID string) error {
	return s.storeFor(block.UsageKey.Course).PutItem(ctx, block, userID)
}

// DeleteCourse deletes the course from the routed backend.
func (s *Store) DeleteCourse(ctx context.Context, key coursestore.CourseKey, userID string) error {
	return s.storeFor(key).DeleteCourse(ctx, key, userID)
}

// SaveAssetMetadata writes asset metadata through the routed backend.
func (s *Store) SaveAssetMetadata(ctx context.Context, md *coursestore.Asset) error {
	return s.storeFor(md.Key.Course).SaveAssetMetadata(ctx, md)
}

// AssetMetadataForCourse reads asset metadata from the routed backend.
func (s *Store) AssetMetadataForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	return s.storeFor(key).AssetMetadataForCourse(ctx, key)
}

// AssetCollection returns the raw asset-metadata handle of the single
// configured backend. With more than one backend the location of asset
// metadata is ambiguous, so it returns nil.
func (s *Store) AssetCollection() any {
	if len(s.stores) > 1 {
		return nil
	}
	if ac, ok := s.stores[0].Store.(assetCollector); ok {
		return ac.AssetCollection()
	}
	return nil
}

// Close closes every backend, returning the first error encountered.
func (s *Store) Close() error {
	var firstErr error
	for _, ns := range s.stores {
		if err := ns.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
