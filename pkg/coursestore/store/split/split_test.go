package split_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/coursestore/pkg/coursestore"
	splitstore "github.com/tendant/coursestore/pkg/coursestore/store/split"
)

func newStore(t *testing.T) *splitstore.Store {
	t.Helper()
	store, err := splitstore.New(splitstore.Config{
		Path:      filepath.Join(t.TempDir(), "modulestore.db"),
		Namespace: "test-" + t.Name(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetCourse(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := store.MakeCourseKey("edX", "demo", "2024")

	root, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)
	assert.Equal(t, "course", root.BlockType())

	_, err = store.CreateCourse(ctx, key, "author")
	assert.ErrorIs(t, err, coursestore.ErrCourseExists)

	got, err := store.GetCourse(ctx, key, coursestore.FetchBlock)
	require.NoError(t, err)
	assert.Equal(t, root.UsageKey, got.UsageKey)
}

func TestPutAndFetchTree(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
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
}

func TestPublishVersionIsolatesHistory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := store.MakeCourseKey("edX", "demo", "2024")

	root, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)
	root.Fields["display_name"] = "Before Publish"
	require.NoError(t, store.PutItem(ctx, root, "author"))

	version, err := store.PublishVersion(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// Edits after a publish land in the new active version; the snapshot and
	// the live copy agree until the next edit.
	root.Fields["display_name"] = "After Publish"
	require.NoError(t, store.PutItem(ctx, root, "author"))

	got, err := store.GetCourse(ctx, key, coursestore.FetchBlock)
	require.NoError(t, err)
	assert.Equal(t, "After Publish", got.DisplayName())
}

func TestPublishVersionMissingCourse(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.PublishVersion(ctx, store.MakeCourseKey("nope", "nope", "nope"))
	assert.ErrorIs(t, err, coursestore.ErrCourseNotFound)
}

func TestDeleteCourse(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := store.MakeCourseKey("edX", "demo", "2024")

	_, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)
	require.NoError(t, store.SaveAssetMetadata(ctx, &coursestore.Asset{
		Key:         coursestore.AssetKey{Course: key, Path: "a.txt"},
		DisplayName: "a.txt",
	}))

	require.NoError(t, store.DeleteCourse(ctx, key, "author"))

	exists, err := store.HasCourse(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	assets, err := store.AssetMetadataForCourse(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, assets)

	err = store.DeleteCourse(ctx, key, "author")
	assert.ErrorIs(t, err, coursestore.ErrCourseNotFound)
}

func TestAssetMetadataUpsert(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := store.MakeCourseKey("edX", "demo", "2024")
	_, err := store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)

	md := &coursestore.Asset{
		Key:         coursestore.AssetKey{Course: key, Path: "a.txt"},
		DisplayName: "a.txt",
	}
	require.NoError(t, store.SaveAssetMetadata(ctx, md))

	md.Locked = true
	require.NoError(t, store.SaveAssetMetadata(ctx, md))

	assets, err := store.AssetMetadataForCourse(ctx, key)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.True(t, assets[0].Locked)
}

func TestMintUsageIDUnique(t *testing.T) {
	store := newStore(t)
	key := store.MakeCourseKey("edX", "demo", "2024")

	a := store.MintUsageID(key, "vertical")
	b := store.MintUsageID(key, "vertical")
	assert.NotEqual(t, a, b)
	assert.Contains(t, string(a), "blk.vertical.")
}
