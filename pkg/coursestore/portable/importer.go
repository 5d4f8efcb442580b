package portable

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// ImportRequest contains parameters for importing portable course directories
// into a module store.
type ImportRequest struct {
	Store      coursestore.ModuleStore
	UserID     string
	DataDir    string
	CourseDirs []string
	AssetStore coursestore.AssetStore

	// TargetCourse overrides the key from the course manifest. Only valid
	// when importing a single course directory.
	TargetCourse coursestore.CourseKey

	// CreateIfAbsent creates the course when the target key does not exist.
	CreateIfAbsent bool

	// RaiseOnFailure aborts the import on the first bad block instead of
	// logging and skipping it.
	RaiseOnFailure bool

	Logger *slog.Logger
}

// Import materializes the requested portable course directories into the
// store, minting fresh usage ids for every block. Returns the keys of the
// imported courses.
func Import(ctx context.Context, req ImportRequest) ([]coursestore.CourseKey, error) {
	if req.Store == nil {
		return nil, fmt.Errorf("module store is required")
	}
	if len(req.CourseDirs) == 0 {
		return nil, fmt.Errorf("no course directories given")
	}
	if !req.TargetCourse.IsZero() && len(req.CourseDirs) > 1 {
		return nil, fmt.Errorf("target course override requires a single course directory")
	}
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var imported []coursestore.CourseKey
	for _, dir := range req.CourseDirs {
		data, err := ReadCourseDir(filepath.Join(req.DataDir, dir))
		if err != nil {
			return imported, fmt.Errorf("failed to read course directory %s: %w", dir, err)
		}

		target := data.Key
		if !req.TargetCourse.IsZero() {
			target = req.TargetCourse
		}

		if err := importCourse(ctx, req, logger, data, target); err != nil {
			return imported, err
		}
		imported = append(imported, target)
	}
	return imported, nil
}

func importCourse(ctx context.Context, req ImportRequest, logger *slog.Logger, data *CourseData, target coursestore.CourseKey) error {
	store := req.Store

	exists, err := store.HasCourse(ctx, target)
	if err != nil {
		return err
	}

	var root *coursestore.Block
	switch {
	case exists:
		root, err = store.GetCourse(ctx, target, coursestore.FetchBlock)
	case req.CreateIfAbsent:
		root, err = store.CreateCourse(ctx, target, req.UserID)
	default:
		return fmt.Errorf("course %s: %w", target, coursestore.ErrCourseNotFound)
	}
	if err != nil {
		return err
	}

	// First pass: assign usage ids. The root keeps the store-assigned id;
	// everything else gets a freshly minted one.
	ids := make(map[string]coursestore.UsageID, len(data.Blocks))
	ids[data.RootID] = root.UsageKey.ID
	parents := make(map[string]string)
	for name, block := range data.Blocks {
		if name != data.RootID {
			ids[name] = store.MintUsageID(target, block.BlockType)
		}
		for _, child := range block.Children {
			parents[child] = name
		}
	}

	// Second pass: write blocks root-first so parents exist before children.
	order := blockOrder(data)
	for _, name := range order {
		bd := data.Blocks[name]
		block := &coursestore.Block{
			UsageKey: coursestore.UsageKey{
				Course:    target,
				BlockType: bd.BlockType,
				ID:        ids[name],
			},
			Fields: bd.Fields.Clone(),
		}
		if name == data.RootID {
			block.UsageKey.BlockType = "course"
			block.UsageKey.ID = root.UsageKey.ID
		}
		if parent, ok := parents[name]; ok {
			block.ParentID = ids[parent]
		}
		for _, child := range bd.Children {
			childID, ok := ids[child]
			if !ok {
				if req.RaiseOnFailure {
					return fmt.Errorf("block %s references unknown child %q", name, child)
				}
				logger.Warn("skipping unknown child reference", "block", name, "child", child)
				continue
			}
			block.ChildIDs = append(block.ChildIDs, childID)
		}

		if err := store.PutItem(ctx, block, req.UserID); err != nil {
			if req.RaiseOnFailure {
				return fmt.Errorf("failed to import block %s: %w", name, err)
			}
			logger.Error("failed to import block, skipping", "block", name, "error", err)
		}
	}

	return importAssets(ctx, req, logger, data, target)
}

// blockOrder returns block names root-first in depth-first authoring order,
// followed by any blocks unreachable from the root.
func blockOrder(data *CourseData) []string {
	order := make([]string, 0, len(data.Blocks))
	seen := make(map[string]bool, len(data.Blocks))

	var walk func(name string)
	walk = func(name string) {
		block, ok := data.Blocks[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		order = append(order, name)
		for _, child := range block.Children {
			walk(child)
		}
	}
	walk(data.RootID)

	for name := range data.Blocks {
		if !seen[name] {
			order = append(order, name)
		}
	}
	return order
}

func importAssets(ctx context.Context, req ImportRequest, logger *slog.Logger, data *CourseData, target coursestore.CourseKey) error {
	if req.AssetStore == nil || len(data.Assets) == 0 {
		return nil
	}

	for _, entry := range data.Assets {
		f, err := os.Open(data.AssetContentPath(entry.Path))
		if err != nil {
			if req.RaiseOnFailure {
				return fmt.Errorf("failed to open asset %s: %w", entry.Path, err)
			}
			logger.Error("failed to open asset, skipping", "asset", entry.Path, "error", err)
			continue
		}

		asset := &coursestore.Asset{
			Key:         coursestore.AssetKey{Course: target, Path: entry.Path},
			DisplayName: entry.DisplayName,
			ContentType: entry.ContentType,
			Locked:      entry.Locked,
		}
		err = req.AssetStore.Save(ctx, asset, f)
		f.Close()
		if err != nil {
			if req.RaiseOnFailure {
				return fmt.Errorf("failed to store asset %s: %w", entry.Path, err)
			}
			logger.Error("failed to store asset, skipping", "asset", entry.Path, "error", err)
			continue
		}

		// Denormalized summary record alongside the block data.
		if err := req.Store.SaveAssetMetadata(ctx, asset.Clone()); err != nil {
			if req.RaiseOnFailure {
				return fmt.Errorf("failed to save asset metadata for %s: %w", entry.Path, err)
			}
			logger.Error("failed to save asset metadata, skipping", "asset", entry.Path, "error", err)
		}
	}
	return nil
}
