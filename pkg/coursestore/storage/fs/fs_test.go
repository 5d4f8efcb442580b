package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/coursestore/pkg/coursestore"
	fsstorage "github.com/tendant/coursestore/pkg/coursestore/storage/fs"
)

func newStore(t *testing.T) (*fsstorage.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := fsstorage.New(fsstorage.Config{BaseDir: dir})
	require.NoError(t, err)
	return store, dir
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := fsstorage.New(fsstorage.Config{})
	assert.Error(t, err)
}

func TestSaveAndOpen(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	key := coursestore.NewCourseKey("edX", "demo", "2024")

	asset := &coursestore.Asset{
		Key:         coursestore.AssetKey{Course: key, Path: "images/logo.png"},
		DisplayName: "logo.png",
		ContentType: "image/png",
	}
	require.NoError(t, store.Save(ctx, asset, strings.NewReader("pngbytes")))

	assert.NotEmpty(t, asset.ContentDigest)
	assert.Contains(t, asset.Fields, "_id")

	// Content lands under org/course/run mirroring the asset path.
	_, err := os.Stat(filepath.Join(dir, "edX", "demo", "2024", "images", "logo.png"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, asset.Key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
}

func TestOpenNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	_, err := store.Open(ctx, coursestore.AssetKey{
		Course: coursestore.NewCourseKey("edX", "demo", "2024"),
		Path:   "ghost.txt",
	})
	assert.ErrorIs(t, err, coursestore.ErrAssetNotFound)
}

func TestFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	key := coursestore.NewCourseKey("edX", "demo", "2024")

	asset := &coursestore.Asset{
		Key:         coursestore.AssetKey{Course: key, Path: "a.txt"},
		DisplayName: "a.txt",
		Locked:      true,
	}
	require.NoError(t, store.Save(ctx, asset, strings.NewReader("x")))

	found, err := store.Find(ctx, asset.Key)
	require.NoError(t, err)
	assert.Equal(t, asset.DisplayName, found.DisplayName)
	assert.Equal(t, asset.ContentDigest, found.ContentDigest)
	assert.True(t, found.Locked)
}

func TestListForCourse(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	key := coursestore.NewCourseKey("edX", "demo", "2024")

	// No assets yet: empty list, not an error.
	assets, err := store.ListForCourse(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, assets)

	for _, name := range []string{"b.txt", "a.txt"} {
		require.NoError(t, store.Save(ctx, &coursestore.Asset{
			Key:         coursestore.AssetKey{Course: key, Path: "docs/" + name},
			DisplayName: name,
		}, strings.NewReader(name)))
	}

	assets, err = store.ListForCourse(ctx, key)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "a.txt", assets[0].DisplayName)
	assert.Equal(t, "b.txt", assets[1].DisplayName)
}

func TestDeleteForCourse(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	key := coursestore.NewCourseKey("edX", "demo", "2024")

	require.NoError(t, store.Save(ctx, &coursestore.Asset{
		Key: coursestore.AssetKey{Course: key, Path: "a.txt"}, DisplayName: "a.txt",
	}, strings.NewReader("x")))

	require.NoError(t, store.DeleteForCourse(ctx, key))

	_, err := os.Stat(filepath.Join(dir, "edX", "demo", "2024"))
	assert.True(t, os.IsNotExist(err))

	assets, err := store.ListForCourse(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, assets)
}
