// Package compare verifies that two stored copies of a course, possibly held
// by different backend technologies, are structurally and semantically
// identical up to declared exclusions.
//
// Blocks are paired by tree position, never by usage id: ids are
// backend-assigned and do not survive a re-import. The walk is depth-first
// with children in authoring order, so corresponding positions in two
// equivalent trees always line up.
package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// Fields excluded from every comparison: derived, backend-internal, or
// intentionally rewritten across import boundaries.
var defaultExcludedFields = []string{"wiki_slug", "xml_attributes", "parent"}

// Asset metadata keys assigned by the backend and expected to diverge.
var defaultIgnoredAssetKeys = []string{"_id", "uploadDate", "content_son", "thumbnail_location"}

// MismatchError reports the first divergence between two course copies. Path
// locates the block (or asset) by tree position for diagnosis.
type MismatchError struct {
	Path  string
	Field string
	Diff  string
}

func (e *MismatchError) Error() string {
	msg := fmt.Sprintf("mismatch at %s: field %q differs", e.Path, e.Field)
	if e.Diff != "" {
		msg += " (-want +got):\n" + e.Diff
	}
	return msg
}

// Checker compares courses, assets, and asset metadata between two stores.
// The zero value is unusable; NewChecker pre-loads the standard exclusions.
type Checker struct {
	// excluded maps block type -> field name; the "" type applies to all.
	excluded         map[string]map[string]bool
	ignoredAssetKeys map[string]bool
}

// NewChecker creates a checker with the always-excluded block fields and
// asset keys already registered.
func NewChecker() *Checker {
	c := &Checker{
		excluded:         make(map[string]map[string]bool),
		ignoredAssetKeys: make(map[string]bool),
	}
	for _, field := range defaultExcludedFields {
		c.ExcludeField("", field)
	}
	for _, key := range defaultIgnoredAssetKeys {
		c.IgnoreAssetKey(key)
	}
	return c
}

// ExcludeField excludes a block field from comparison. An empty blockType
// applies the exclusion to every block type.
func (c *Checker) ExcludeField(blockType, field string) {
	if c.excluded[blockType] == nil {
		c.excluded[blockType] = make(map[string]bool)
	}
	c.excluded[blockType][field] = true
}

// IgnoreAssetKey excludes an asset metadata key from comparison.
func (c *Checker) IgnoreAssetKey(key string) {
	c.ignoredAssetKeys[key] = true
}

func (c *Checker) isExcluded(blockType, field string) bool {
	return c.excluded[""][field] || c.excluded[blockType][field]
}

// CoursesEqual fetches both course trees eagerly and compares them position
// by position. The first divergence is returned as a *MismatchError; other
// failures (missing course, backend errors) are returned as-is.
func (c *Checker) CoursesEqual(ctx context.Context, src coursestore.ModuleStore, srcKey coursestore.CourseKey, dst coursestore.ModuleStore, dstKey coursestore.CourseKey) error {
	srcRoot, err := src.GetCourse(ctx, srcKey, coursestore.FetchAll)
	if err != nil {
		return fmt.Errorf("failed to fetch source course %s: %w", srcKey, err)
	}
	dstRoot, err := dst.GetCourse(ctx, dstKey, coursestore.FetchAll)
	if err != nil {
		return fmt.Errorf("failed to fetch destination course %s: %w", dstKey, err)
	}
	return c.compareBlocks("course", srcRoot, dstRoot)
}

func (c *Checker) compareBlocks(path string, want, got *coursestore.Block) error {
	if want.BlockType() != got.BlockType() {
		return &MismatchError{
			Path:  path,
			Field: "block_type",
			Diff:  fmt.Sprintf("-\t%q\n+\t%q\n", want.BlockType(), got.BlockType()),
		}
	}

	// Union of both field sets: a field present on one side only is a
	// divergence unless excluded.
	names := make(map[string]bool, len(want.Fields)+len(got.Fields))
	for name := range want.Fields {
		names[name] = true
	}
	for name := range got.Fields {
		names[name] = true
	}
	for _, name := range sortedNames(names) {
		if c.isExcluded(want.BlockType(), name) {
			continue
		}
		wv, gv := want.Fields[name], got.Fields[name]
		if diff := cmp.Diff(wv, gv); diff != "" {
			return &MismatchError{Path: path, Field: name, Diff: diff}
		}
	}

	if len(want.GetChildren()) != len(got.GetChildren()) {
		return &MismatchError{
			Path:  path,
			Field: "child_count",
			Diff:  fmt.Sprintf("-\t%d\n+\t%d\n", len(want.GetChildren()), len(got.GetChildren())),
		}
	}
	for i, wc := range want.GetChildren() {
		gc := got.GetChildren()[i]
		childPath := fmt.Sprintf("%s > %s[%d]", path, wc.BlockType(), i)
		if err := c.compareBlocks(childPath, wc, gc); err != nil {
			return err
		}
	}
	return nil
}

// Deterministic field order keeps the reported first divergence stable.
func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssetsEqual compares the two courses' asset lists. Lists are already
// sorted by (display name, key) per the AssetStore contract, so assets pair
// by position.
func (c *Checker) AssetsEqual(ctx context.Context, src coursestore.AssetStore, srcKey coursestore.CourseKey, dst coursestore.AssetStore, dstKey coursestore.CourseKey) error {
	srcAssets, err := src.ListForCourse(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("failed to list source assets for %s: %w", srcKey, err)
	}
	dstAssets, err := dst.ListForCourse(ctx, dstKey)
	if err != nil {
		return fmt.Errorf("failed to list destination assets for %s: %w", dstKey, err)
	}
	return c.compareAssetLists("assets", srcAssets, dstAssets)
}

// AssetsMetadataEqual compares the denormalized per-course asset summaries
// held by the module stores (distinct from the asset content stores).
func (c *Checker) AssetsMetadataEqual(ctx context.Context, src coursestore.ModuleStore, srcKey coursestore.CourseKey, dst coursestore.ModuleStore, dstKey coursestore.CourseKey) error {
	srcAssets, err := src.AssetMetadataForCourse(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("failed to fetch source asset metadata for %s: %w", srcKey, err)
	}
	dstAssets, err := dst.AssetMetadataForCourse(ctx, dstKey)
	if err != nil {
		return fmt.Errorf("failed to fetch destination asset metadata for %s: %w", dstKey, err)
	}
	return c.compareAssetLists("asset_metadata", srcAssets, dstAssets)
}

func (c *Checker) compareAssetLists(path string, want, got []*coursestore.Asset) error {
	if len(want) != len(got) {
		return &MismatchError{
			Path:  path,
			Field: "asset_count",
			Diff:  fmt.Sprintf("-\t%d\n+\t%d\n", len(want), len(got)),
		}
	}
	for i, wa := range want {
		ga := got[i]
		assetPath := fmt.Sprintf("%s[%d] (%s)", path, i, wa.DisplayName)
		if err := c.compareAssets(assetPath, wa, ga); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) compareAssets(path string, want, got *coursestore.Asset) error {
	wf := flattenAsset(want)
	gf := flattenAsset(got)

	names := make(map[string]bool, len(wf)+len(gf))
	for name := range wf {
		names[name] = true
	}
	for name := range gf {
		names[name] = true
	}
	for _, name := range sortedNames(names) {
		if c.ignoredAssetKeys[name] {
			continue
		}
		if diff := cmp.Diff(wf[name], gf[name]); diff != "" {
			return &MismatchError{Path: path, Field: name, Diff: diff}
		}
	}
	return nil
}

// flattenAsset merges the typed asset attributes with the backend field bag
// into one keyed view, using the backends' historical key names so the
// standard ignore-set applies.
func flattenAsset(a *coursestore.Asset) map[string]any {
	flat := map[string]any{
		"asset_path":   a.Key.Path,
		"display_name": a.DisplayName,
		"content_type": a.ContentType,
		"locked":       a.Locked,
		"digest":       a.ContentDigest,
		"uploadDate":   a.UploadDate,
	}
	for k, v := range a.Fields {
		flat[k] = v
	}
	return flat
}
