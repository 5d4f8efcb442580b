package doc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/coursestore/pkg/coursestore"
	docstore "github.com/tendant/coursestore/pkg/coursestore/store/doc"
)

func newStore(t *testing.T, branch docstore.Branch) *docstore.Store {
	t.Helper()
	store, err := docstore.New(docstore.Config{
		Dir:       t.TempDir(),
		Namespace: "test-" + t.Name(),
		Branch:    branch,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetCourse(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	key := store.MakeCourseKey("edX", "demo", "2024")

	exists, err := store.HasCourse(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	root, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)
	assert.Equal(t, "course", root.BlockType())
	assert.NotEmpty(t, root.UsageKey.ID)

	exists, err = store.HasCourse(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.CreateCourse(ctx, key, "author")
	require.Error(t, err)
	assert.ErrorIs(t, err, coursestore.ErrCourseExists)

	got, err := store.GetCourse(ctx, key, coursestore.FetchBlock)
	require.NoError(t, err)
	assert.Equal(t, root.UsageKey, got.UsageKey)
}

func TestGetCourseNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")

	_, err := store.GetCourse(ctx, store.MakeCourseKey("nope", "nope", "nope"), coursestore.FetchBlock)
	require.Error(t, err)
	assert.ErrorIs(t, err, coursestore.ErrCourseNotFound)
}

func TestPutAndFetchTree(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	key := store.MakeCourseKey("edX", "demo", "2024")

	root, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)

	chapter := &coursestore.Block{
		UsageKey: coursestore.UsageKey{Course: key, BlockType: "chapter", ID: store.MintUsageID(key, "chapter")},
		Fields:   coursestore.FieldMap{"display_name": "Week 1"},
		ParentID: root.UsageKey.ID,
	}
	require.NoError(t, store.PutItem(ctx, chapter, "author"))

	root.ChildIDs = []coursestore.UsageID{chapter.UsageKey.ID}
	require.NoError(t, store.PutItem(ctx, root, "author"))

	got, err := store.GetCourse(ctx, key, coursestore.FetchAll)
	require.NoError(t, err)
	require.Len(t, got.GetChildren(), 1)
	assert.Equal(t, "Week 1", got.GetChildren()[0].DisplayName())

	// FetchBlock leaves children unloaded.
	shallow, err := store.GetCourse(ctx, key, coursestore.FetchBlock)
	require.NoError(t, err)
	assert.Nil(t, shallow.GetChildren())
	assert.True(t, shallow.HasChildren())
}

func TestPutItemRejectsBadFieldKind(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	key := store.MakeCourseKey("edX", "demo", "2024")
	_, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)

	block := &coursestore.Block{
		UsageKey: coursestore.UsageKey{Course: key, BlockType: "sequential", ID: store.MintUsageID(key, "sequential")},
		Fields:   coursestore.FieldMap{"graded": "yes"},
	}
	err = store.PutItem(ctx, block, "author")
	require.Error(t, err)
}

func TestDraftVisibility(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	draftStore, err := docstore.New(docstore.Config{Dir: dir, Namespace: "draft-ns"})
	require.NoError(t, err)
	key := draftStore.MakeCourseKey("edX", "demo", "2024")

	root, err := draftStore.CreateCourse(ctx, key, "author")
	require.NoError(t, err)

	draft := &coursestore.Block{
		UsageKey: coursestore.UsageKey{Course: key, BlockType: "html", ID: draftStore.MintUsageID(key, "html")},
		Fields:   coursestore.FieldMap{"display_name": "Draft Page"},
		ParentID: root.UsageKey.ID,
	}
	require.NoError(t, draftStore.PutDraftItem(ctx, draft, "author"))

	// Draft-preferred sees the draft revision.
	got, err := draftStore.GetItem(ctx, draft.UsageKey, coursestore.FetchBlock)
	require.NoError(t, err)
	assert.Equal(t, "Draft Page", got.DisplayName())
	require.NoError(t, draftStore.Close())

	// Published-only does not.
	pubStore, err := docstore.New(docstore.Config{Dir: dir, Namespace: "draft-ns", Branch: docstore.BranchPublishedOnly})
	require.NoError(t, err)
	defer pubStore.Close()

	_, err = pubStore.GetItem(ctx, draft.UsageKey, coursestore.FetchBlock)
	require.Error(t, err)
	assert.ErrorIs(t, err, coursestore.ErrItemNotFound)
}

func TestDeleteCourse(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	key := store.MakeCourseKey("edX", "demo", "2024")

	root, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)
	require.NoError(t, store.SaveAssetMetadata(ctx, &coursestore.Asset{
		Key:         coursestore.AssetKey{Course: key, Path: "images/logo.png"},
		DisplayName: "logo.png",
	}))

	require.NoError(t, store.DeleteCourse(ctx, key, "author"))

	exists, err := store.HasCourse(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.GetItem(ctx, root.UsageKey, coursestore.FetchBlock)
	assert.ErrorIs(t, err, coursestore.ErrItemNotFound)

	assets, err := store.AssetMetadataForCourse(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, assets)

	err = store.DeleteCourse(ctx, key, "author")
	assert.ErrorIs(t, err, coursestore.ErrCourseNotFound)
}

func TestAssetMetadataSorted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	key := store.MakeCourseKey("edX", "demo", "2024")
	_, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)

	for _, name := range []string{"zebra.png", "apple.png", "mango.png"} {
		require.NoError(t, store.SaveAssetMetadata(ctx, &coursestore.Asset{
			Key:         coursestore.AssetKey{Course: key, Path: "images/" + name},
			DisplayName: name,
		}))
	}

	assets, err := store.AssetMetadataForCourse(ctx, key)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "apple.png", assets[0].DisplayName)
	assert.Equal(t, "mango.png", assets[1].DisplayName)
	assert.Equal(t, "zebra.png", assets[2].DisplayName)
}

func TestGetCoursesSorted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")

	for _, course := range []string{"zoology", "algebra"} {
		_, err := store.CreateCourse(ctx, store.MakeCourseKey("edX", course, "2024"), "author")
		require.NoError(t, err)
	}

	keys, err := store.GetCourses(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "algebra", keys[0].Course)
	assert.Equal(t, "zoology", keys[1].Course)
}

func TestMintUsageIDUnique(t *testing.T) {
	store := newStore(t, "")
	key := store.MakeCourseKey("edX", "demo", "2024")

	a := store.MintUsageID(key, "problem")
	b := store.MintUsageID(key, "problem")
	assert.NotEqual(t, a, b)
	assert.Contains(t, string(a), "problem+")
}
