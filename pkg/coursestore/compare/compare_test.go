package compare_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/coursestore/pkg/coursestore"
	"github.com/tendant/coursestore/pkg/coursestore/compare"
	"github.com/tendant/coursestore/pkg/coursestore/lifecycle"
	"github.com/tendant/coursestore/pkg/coursestore/portable"
)

var coursesDir = filepath.Join("..", "..", "..", "testdata", "courses")

func builders() map[string]lifecycle.Builder {
	return map[string]lifecycle.Builder{
		"doc":   lifecycle.DocStoreBuilder{},
		"split": lifecycle.SplitStoreBuilder{},
		"mixed_doc": lifecycle.MixedStoreBuilder{
			Builders: []lifecycle.NamedBuilder{{Name: "doc", Builder: lifecycle.DocStoreBuilder{}}},
		},
		"mixed_split": lifecycle.MixedStoreBuilder{
			Builders: []lifecycle.NamedBuilder{{Name: "split", Builder: lifecycle.SplitStoreBuilder{}}},
		},
	}
}

func importCourse(t *testing.T, ctx context.Context, h *lifecycle.Handle, dataDir, course string) coursestore.CourseKey {
	t.Helper()
	keys, err := portable.Import(ctx, portable.ImportRequest{
		Store:          h.Store,
		AssetStore:     h.Assets,
		UserID:         "test",
		DataDir:        dataDir,
		CourseDirs:     []string{course},
		CreateIfAbsent: true,
		RaiseOnFailure: true,
	})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	return keys[0]
}

// Import a course into one backend, export it, import the export into a
// second backend, and require both copies to be equivalent.
func TestRoundTripAcrossBackends(t *testing.T) {
	for srcName, srcBuilder := range builders() {
		for dstName, dstBuilder := range builders() {
			for _, course := range []string{"toy", "many-blocks"} {
				name := fmt.Sprintf("%s_to_%s/%s", srcName, dstName, course)
				srcBuilder, dstBuilder, course := srcBuilder, dstBuilder, course
				t.Run(name, func(t *testing.T) {
					ctx := context.Background()

					src, err := srcBuilder.Build(ctx, nil)
					require.NoError(t, err)
					defer src.Close()
					dst, err := dstBuilder.Build(ctx, nil)
					require.NoError(t, err)
					defer dst.Close()

					key := importCourse(t, ctx, src, coursesDir, course)

					exportDir := t.TempDir()
					require.NoError(t, portable.Export(ctx, portable.ExportRequest{
						Store:      src.Store,
						AssetStore: src.Assets,
						Course:     key,
						OutputDir:  exportDir,
						ExportName: "exported",
					}))

					dstKey := importCourse(t, ctx, dst, exportDir, "exported")
					require.Equal(t, key, dstKey)

					checker := compare.NewChecker()
					assert.NoError(t, checker.CoursesEqual(ctx, src.Store, key, dst.Store, dstKey))
					assert.NoError(t, checker.AssetsEqual(ctx, src.Assets, key, dst.Assets, dstKey))
					assert.NoError(t, checker.AssetsMetadataEqual(ctx, src.Store, key, dst.Store, dstKey))
				})
			}
		}
	}
}

func TestXMLSourceRoundTrip(t *testing.T) {
	ctx := context.Background()

	src, err := lifecycle.XMLStoreBuilder{DataDir: coursesDir, CourseDirs: []string{"toy"}}.Build(ctx, nil)
	require.NoError(t, err)
	defer src.Close()
	dst, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer dst.Close()

	key := coursestore.NewCourseKey("edX", "toy", "2012_Fall")

	exportDir := t.TempDir()
	require.NoError(t, portable.Export(ctx, portable.ExportRequest{
		Store:      src.Store,
		Course:     key,
		OutputDir:  exportDir,
		ExportName: "exported",
	}))
	importCourse(t, ctx, dst, exportDir, "exported")

	checker := compare.NewChecker()
	assert.NoError(t, checker.CoursesEqual(ctx, src.Store, key, dst.Store, key))
}

func TestMutationDetected(t *testing.T) {
	ctx := context.Background()

	src, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer src.Close()
	dst, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer dst.Close()

	key := importCourse(t, ctx, src, coursesDir, "toy")
	importCourse(t, ctx, dst, coursesDir, "toy")

	checker := compare.NewChecker()
	require.NoError(t, checker.CoursesEqual(ctx, src.Store, key, dst.Store, key))

	// Flip one field deep in the destination tree.
	root, err := dst.Store.GetCourse(ctx, key, coursestore.FetchAll)
	require.NoError(t, err)
	seq := root.GetChildren()[0].GetChildren()[0]
	seq.Fields["display_name"] = "Tampered"
	require.NoError(t, dst.Store.PutItem(ctx, seq, "test"))

	err = checker.CoursesEqual(ctx, src.Store, key, dst.Store, key)
	require.Error(t, err)

	var mismatch *compare.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "display_name", mismatch.Field)
	assert.Contains(t, mismatch.Path, "sequential[0]")
}

func TestShapeMismatchDetected(t *testing.T) {
	ctx := context.Background()

	src, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer src.Close()
	dst, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer dst.Close()

	key := importCourse(t, ctx, src, coursesDir, "toy")
	importCourse(t, ctx, dst, coursesDir, "toy")

	// Drop a child from the destination root.
	root, err := dst.Store.GetCourse(ctx, key, coursestore.FetchBlock)
	require.NoError(t, err)
	root.ChildIDs = root.ChildIDs[:1]
	require.NoError(t, dst.Store.PutItem(ctx, root, "test"))

	err = compare.NewChecker().CoursesEqual(ctx, src.Store, key, dst.Store, key)
	require.Error(t, err)

	var mismatch *compare.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "child_count", mismatch.Field)
	assert.Equal(t, "course", mismatch.Path)
}

func TestExcludedFieldsIgnored(t *testing.T) {
	ctx := context.Background()

	src, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer src.Close()
	dst, err := lifecycle.DocStoreBuilder{}.Build(ctx, nil)
	require.NoError(t, err)
	defer dst.Close()

	key := importCourse(t, ctx, src, coursesDir, "toy")
	importCourse(t, ctx, dst, coursesDir, "toy")

	// wiki_slug diverging is fine: it is in the standard exclusions.
	root, err := dst.Store.GetCourse(ctx, key, coursestore.FetchBlock)
	require.NoError(t, err)
	root.Fields["wiki_slug"] = "renamed-slug"
	require.NoError(t, dst.Store.PutItem(ctx, root, "test"))

	checker := compare.NewChecker()
	assert.NoError(t, checker.CoursesEqual(ctx, src.Store, key, dst.Store, key))

	// A custom per-type exclusion suppresses an otherwise fatal divergence.
	root.Fields["display_name"] = "Renamed"
	require.NoError(t, dst.Store.PutItem(ctx, root, "test"))

	require.Error(t, checker.CoursesEqual(ctx, src.Store, key, dst.Store, key))
	checker.ExcludeField("course", "display_name")
	assert.NoError(t, checker.CoursesEqual(ctx, src.Store, key, dst.Store, key))
}
