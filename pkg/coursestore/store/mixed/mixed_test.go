package mixed_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/coursestore/pkg/coursestore"
	docstore "github.com/tendant/coursestore/pkg/coursestore/store/doc"
	"github.com/tendant/coursestore/pkg/coursestore/store/mixed"
	splitstore "github.com/tendant/coursestore/pkg/coursestore/store/split"
)

func newBackends(t *testing.T) (*docstore.Store, *splitstore.Store) {
	t.Helper()
	doc, err := docstore.New(docstore.Config{Dir: t.TempDir(), Namespace: "doc-ns"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })

	split, err := splitstore.New(splitstore.Config{
		Path:      filepath.Join(t.TempDir(), "store.db"),
		Namespace: "split-ns",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = split.Close() })
	return doc, split
}

func TestNewValidation(t *testing.T) {
	doc, _ := newBackends(t)

	_, err := mixed.New(nil, nil)
	assert.Error(t, err)

	_, err = mixed.New([]mixed.NamedStore{{Name: "", Store: doc}}, nil)
	assert.Error(t, err)

	_, err = mixed.New([]mixed.NamedStore{
		{Name: "doc", Store: doc},
		{Name: "doc", Store: doc},
	}, nil)
	assert.Error(t, err)

	_, err = mixed.New(
		[]mixed.NamedStore{{Name: "doc", Store: doc}},
		map[coursestore.CourseKey]string{
			coursestore.NewCourseKey("a", "b", "c"): "ghost",
		},
	)
	assert.Error(t, err)
}

func TestRoutingByMapping(t *testing.T) {
	ctx := context.Background()
	doc, split := newBackends(t)

	splitKey := coursestore.NewCourseKey("edX", "versioned", "2024")
	store, err := mixed.New(
		[]mixed.NamedStore{
			{Name: "doc", Store: doc},
			{Name: "split", Store: split},
		},
		map[coursestore.CourseKey]string{splitKey: "split"},
	)
	require.NoError(t, err)

	// Mapped course lands in the split backend.
	_, err = store.CreateCourse(ctx, splitKey, "author")
	require.NoError(t, err)
	exists, err := split.HasCourse(ctx, splitKey)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = doc.HasCourse(ctx, splitKey)
	require.NoError(t, err)
	assert.False(t, exists)

	// Unmapped course lands in the default (first) backend.
	defaultKey := coursestore.NewCourseKey("edX", "plain", "2024")
	_, err = store.CreateCourse(ctx, defaultKey, "author")
	require.NoError(t, err)
	exists, err = doc.HasCourse(ctx, defaultKey)
	require.NoError(t, err)
	assert.True(t, exists)

	// Minted ids carry the routed backend's format.
	assert.Contains(t, string(store.MintUsageID(splitKey, "html")), "blk.html.")
	assert.Contains(t, string(store.MintUsageID(defaultKey, "html")), "html+")
}

func TestGetCoursesUnion(t *testing.T) {
	ctx := context.Background()
	doc, split := newBackends(t)

	splitKey := coursestore.NewCourseKey("edX", "b-course", "2024")
	store, err := mixed.New(
		[]mixed.NamedStore{
			{Name: "doc", Store: doc},
			{Name: "split", Store: split},
		},
		map[coursestore.CourseKey]string{splitKey: "split"},
	)
	require.NoError(t, err)

	_, err = store.CreateCourse(ctx, coursestore.NewCourseKey("edX", "a-course", "2024"), "author")
	require.NoError(t, err)
	_, err = store.CreateCourse(ctx, splitKey, "author")
	require.NoError(t, err)

	keys, err := store.GetCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestAssetCollectionAmbiguity(t *testing.T) {
	doc, split := newBackends(t)

	multi, err := mixed.New([]mixed.NamedStore{
		{Name: "doc", Store: doc},
		{Name: "split", Store: split},
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, multi.AssetCollection())

	single, err := mixed.New([]mixed.NamedStore{{Name: "doc", Store: doc}}, nil)
	require.NoError(t, err)
	assert.NotNil(t, single.AssetCollection())
}

func TestName(t *testing.T) {
	doc, split := newBackends(t)
	store, err := mixed.New([]mixed.NamedStore{
		{Name: "doc", Store: doc},
		{Name: "split", Store: split},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mixed(doc,split)", store.Name())
}
