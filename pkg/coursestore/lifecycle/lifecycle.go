// Package lifecycle provides scoped construction of isolated module-store and
// asset-store instances for tests and one-shot operations.
//
// Every acquired store lives in its own randomized namespace (a fresh temp
// directory plus a uuid-derived name), so concurrently-built instances never
// collide. Closing the returned handle destroys all acquired data, backend
// contents and temp directories alike, on every exit path; callers defer
// Close immediately after a successful Build.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tendant/coursestore/pkg/coursestore"
	docstore "github.com/tendant/coursestore/pkg/coursestore/store/doc"
	"github.com/tendant/coursestore/pkg/coursestore/store/mixed"
	splitstore "github.com/tendant/coursestore/pkg/coursestore/store/split"
	xmlstore "github.com/tendant/coursestore/pkg/coursestore/store/xml"
	fsstorage "github.com/tendant/coursestore/pkg/coursestore/storage/fs"
	memorystorage "github.com/tendant/coursestore/pkg/coursestore/storage/memory"
)

// AssetHandle is a scoped asset store. Close destroys its data.
type AssetHandle struct {
	Store   coursestore.AssetStore
	closers []func() error
}

// Close tears the asset store down. Every closer runs even if an earlier one
// fails; the first error wins.
func (h *AssetHandle) Close() error {
	return runClosers(h.closers)
}

// Handle is a scoped module store paired with its asset store. Close destroys
// the module store's data, then any owned asset store.
type Handle struct {
	Store   coursestore.ModuleStore
	Assets  coursestore.AssetStore
	closers []func() error
}

// Close tears everything down in reverse acquisition order.
func (h *Handle) Close() error {
	return runClosers(h.closers)
}

func runClosers(closers []func() error) error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AssetBuilder builds scoped asset stores.
type AssetBuilder interface {
	BuildAssets(ctx context.Context) (*AssetHandle, error)
	String() string
}

// Builder builds scoped module stores. When assets is nil the builder
// acquires its own asset store first and owns its teardown.
type Builder interface {
	Build(ctx context.Context, assets *AssetHandle) (*Handle, error)
	String() string
}

func namespace() string {
	return "modulestore-" + uuid.NewString()
}

// ownAssets resolves the asset handle for a Build call. Returns the asset
// store plus the closers the new Handle must own (empty when the caller
// supplied the handle and keeps responsibility for closing it).
func ownAssets(ctx context.Context, assets *AssetHandle) (coursestore.AssetStore, []func() error, error) {
	if assets != nil {
		return assets.Store, nil, nil
	}
	owned, err := MemoryAssetStoreBuilder{}.BuildAssets(ctx)
	if err != nil {
		return nil, nil, err
	}
	return owned.Store, []func() error{owned.Close}, nil
}

// MemoryAssetStoreBuilder builds in-memory asset stores.
type MemoryAssetStoreBuilder struct{}

// BuildAssets returns a fresh in-memory asset store.
func (MemoryAssetStoreBuilder) BuildAssets(ctx context.Context) (*AssetHandle, error) {
	store := memorystorage.New()
	return &AssetHandle{Store: store, closers: []func() error{store.Close}}, nil
}

func (MemoryAssetStoreBuilder) String() string { return "MemoryAssetStoreBuilder()" }

// FSAssetStoreBuilder builds filesystem asset stores rooted in a fresh temp
// directory.
type FSAssetStoreBuilder struct{}

// BuildAssets creates the temp directory and the store. Close removes both.
func (FSAssetStoreBuilder) BuildAssets(ctx context.Context) (*AssetHandle, error) {
	dir, err := os.MkdirTemp("", "assetstore-")
	if err != nil {
		return nil, fmt.Errorf("failed to create asset store directory: %w", err)
	}
	store, err := fsstorage.New(fsstorage.Config{BaseDir: dir})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &AssetHandle{Store: store, closers: []func() error{
		func() error { return os.RemoveAll(dir) },
		store.Close,
	}}, nil
}

func (FSAssetStoreBuilder) String() string { return "FSAssetStoreBuilder()" }

// DocStoreBuilder builds isolated badger-backed document stores.
type DocStoreBuilder struct {
	Branch docstore.Branch
}

// Build creates a document store in a fresh temp directory under a
// randomized namespace. Close drops the store's data and removes the
// directory.
func (b DocStoreBuilder) Build(ctx context.Context, assets *AssetHandle) (*Handle, error) {
	assetStore, closers, err := ownAssets(ctx, assets)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "docstore-")
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to create document store directory: %w", err)
	}
	store, err := docstore.New(docstore.Config{
		Dir:       dir,
		Namespace: namespace(),
		Branch:    b.Branch,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		runClosers(closers)
		return nil, err
	}

	closers = append(closers,
		func() error { return os.RemoveAll(dir) },
		store.Destroy,
	)
	return &Handle{Store: store, Assets: assetStore, closers: closers}, nil
}

func (b DocStoreBuilder) String() string { return "DocStoreBuilder()" }

// SplitStoreBuilder builds isolated sqlite-backed versioned stores.
type SplitStoreBuilder struct{}

// Build creates a versioned store in a fresh temp directory under a
// randomized namespace. Close clears the store and removes the directory.
func (SplitStoreBuilder) Build(ctx context.Context, assets *AssetHandle) (*Handle, error) {
	assetStore, closers, err := ownAssets(ctx, assets)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "splitstore-")
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to create versioned store directory: %w", err)
	}
	store, err := splitstore.New(splitstore.Config{
		Path:      filepath.Join(dir, "modulestore.db"),
		Namespace: namespace(),
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		runClosers(closers)
		return nil, err
	}

	closers = append(closers,
		func() error { return os.RemoveAll(dir) },
		store.Destroy,
	)
	return &Handle{Store: store, Assets: assetStore, closers: closers}, nil
}

func (SplitStoreBuilder) String() string { return "SplitStoreBuilder()" }

// XMLStoreBuilder builds read-only stores over a fixed portable course
// directory. The source data is never mutated, so Close tears down only the
// owned asset store, if any.
type XMLStoreBuilder struct {
	DataDir    string
	CourseDirs []string
}

// Build loads the store from disk.
func (b XMLStoreBuilder) Build(ctx context.Context, assets *AssetHandle) (*Handle, error) {
	assetStore, closers, err := ownAssets(ctx, assets)
	if err != nil {
		return nil, err
	}

	store, err := xmlstore.New(xmlstore.Config{DataDir: b.DataDir, CourseDirs: b.CourseDirs})
	if err != nil {
		runClosers(closers)
		return nil, err
	}
	closers = append(closers, store.Close)
	return &Handle{Store: store, Assets: assetStore, closers: closers}, nil
}

func (b XMLStoreBuilder) String() string {
	return fmt.Sprintf("XMLStoreBuilder(%q)", b.DataDir)
}

// NamedBuilder pairs a backend builder with the name it gets inside a mixed
// store.
type NamedBuilder struct {
	Name    string
	Builder Builder
}

// MixedStoreBuilder builds a mixed façade on top of stores produced by other
// builders. All backends share the asset store of the Build call.
type MixedStoreBuilder struct {
	Builders []NamedBuilder
	Mappings map[coursestore.CourseKey]string
}

// Build acquires every backend in order, then wraps them. A failure part way
// through tears down the backends already acquired.
func (b MixedStoreBuilder) Build(ctx context.Context, assets *AssetHandle) (*Handle, error) {
	assetStore, closers, err := ownAssets(ctx, assets)
	if err != nil {
		return nil, err
	}
	shared := assets
	if shared == nil {
		shared = &AssetHandle{Store: assetStore}
	}

	var stores []mixed.NamedStore
	for _, nb := range b.Builders {
		sub, err := nb.Builder.Build(ctx, shared)
		if err != nil {
			runClosers(closers)
			return nil, fmt.Errorf("failed to build backend %q: %w", nb.Name, err)
		}
		closers = append(closers, sub.Close)
		stores = append(stores, mixed.NamedStore{Name: nb.Name, Store: sub.Store})
	}

	store, err := mixed.New(stores, b.Mappings)
	if err != nil {
		runClosers(closers)
		return nil, err
	}
	return &Handle{Store: store, Assets: assetStore, closers: closers}, nil
}

func (b MixedStoreBuilder) String() string {
	return fmt.Sprintf("MixedStoreBuilder(%v, %v)", b.Builders, b.Mappings)
}
