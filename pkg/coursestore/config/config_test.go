package config_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/coursestore/pkg/coursestore/config"
)

func TestLoadRequiresStoreURL(t *testing.T) {
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownSchemes(t *testing.T) {
	_, err := config.Load(config.WithStoreURL("mongodb://nope"))
	assert.Error(t, err)

	_, err = config.Load(
		config.WithStoreURL("badger:///tmp/doc"),
		config.WithAssetURL("ftp://nope"),
	)
	assert.Error(t, err)

	_, err = config.Load(
		config.WithStoreURL("badger:///tmp/doc"),
		config.WithStructureURL("mysql://nope"),
	)
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.WithStoreURL("badger:///tmp/doc"))
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.AssetURL)
	assert.Equal(t, "memory://", cfg.StructureURL)
}

func TestWithEnv(t *testing.T) {
	t.Setenv("CSTEST_STORE_URL", "sqlite:///tmp/store.db")
	t.Setenv("CSTEST_ASSET_URL", "file:///tmp/assets")
	t.Setenv("CSTEST_STRUCTURE_URL", "sqlite:///tmp/structures.db")
	t.Setenv("CSTEST_NAMESPACE", "fixed-ns")

	cfg, err := config.Load(config.WithEnv("CSTEST_"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/store.db", cfg.StoreURL)
	assert.Equal(t, "file:///tmp/assets", cfg.AssetURL)
	assert.Equal(t, "sqlite:///tmp/structures.db", cfg.StructureURL)
	assert.Equal(t, "fixed-ns", cfg.Namespace)
}

func TestBuildStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg, err := config.Load(
		config.WithStoreURL("sqlite://"+filepath.Join(dir, "store.db")),
		config.WithAssetURL("file://"+filepath.Join(dir, "assets")),
		config.WithStructureURL("sqlite://"+filepath.Join(dir, "structures.db")),
	)
	require.NoError(t, err)

	stores, err := cfg.BuildStores(ctx)
	require.NoError(t, err)
	defer stores.Close()

	assert.NotNil(t, stores.Store)
	assert.NotNil(t, stores.Assets)
	assert.NotNil(t, stores.Structures)

	key := stores.Store.MakeCourseKey("edX", "demo", "2024")
	_, err = stores.Store.CreateCourse(ctx, key, "author")
	require.NoError(t, err)
}

func TestBuildStoresBadger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg, err := config.Load(config.WithStoreURL("badger://" + filepath.Join(dir, "doc")))
	require.NoError(t, err)

	stores, err := cfg.BuildStores(ctx)
	require.NoError(t, err)
	defer stores.Close()

	assert.Contains(t, stores.Store.Name(), "doc:")
}
