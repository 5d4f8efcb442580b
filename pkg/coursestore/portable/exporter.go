package portable

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// ExportRequest contains parameters for exporting one course from a module
// store to a portable course directory.
type ExportRequest struct {
	Store      coursestore.ModuleStore
	AssetStore coursestore.AssetStore
	Course     coursestore.CourseKey
	OutputDir  string
	ExportName string
}

// Export writes the course to OutputDir/ExportName in the portable format.
// The resulting directory is a valid input for Import.
func Export(ctx context.Context, req ExportRequest) error {
	if req.Store == nil {
		return fmt.Errorf("module store is required")
	}
	if req.ExportName == "" {
		return fmt.Errorf("export name is required")
	}

	root, err := req.Store.GetCourse(ctx, req.Course, coursestore.FetchAll)
	if err != nil {
		return fmt.Errorf("failed to fetch course %s: %w", req.Course, err)
	}

	outDir := filepath.Join(req.OutputDir, req.ExportName)
	if err := os.MkdirAll(filepath.Join(outDir, blocksDir), 0755); err != nil {
		return err
	}

	// Assign stable local names in depth-first order. Names restart per
	// export, so two exports of equivalent trees produce identical layouts.
	names := make(map[coursestore.UsageID]string)
	counts := make(map[string]int)
	var assign func(block *coursestore.Block)
	assign = func(block *coursestore.Block) {
		if block.UsageKey.ID == root.UsageKey.ID {
			names[block.UsageKey.ID] = "course"
		} else {
			counts[block.BlockType()]++
			names[block.UsageKey.ID] = fmt.Sprintf("%s_%03d", block.BlockType(), counts[block.BlockType()])
		}
		for _, child := range block.GetChildren() {
			assign(child)
		}
	}
	assign(root)

	var write func(block *coursestore.Block) error
	write = func(block *coursestore.Block) error {
		bf := blockFile{
			BlockType: block.BlockType(),
			Fields:    block.Fields,
		}
		for _, childID := range block.ChildIDs {
			name, ok := names[childID]
			if !ok {
				return fmt.Errorf("block %s references unloaded child %s", block.UsageKey, childID)
			}
			bf.Children = append(bf.Children, name)
		}
		doc, err := yaml.Marshal(bf)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, blocksDir, names[block.UsageKey.ID]+".yaml")
		if err := os.WriteFile(path, doc, 0644); err != nil {
			return err
		}
		for _, child := range block.GetChildren() {
			if err := write(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(root); err != nil {
		return fmt.Errorf("failed to export blocks: %w", err)
	}

	manifest, err := yaml.Marshal(courseFile{
		Org:    req.Course.Org,
		Course: req.Course.Course,
		Run:    req.Course.Run,
		Root:   "course",
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, courseManifest), manifest, 0644); err != nil {
		return err
	}

	return exportAssets(ctx, req, outDir)
}

func exportAssets(ctx context.Context, req ExportRequest, outDir string) error {
	if req.AssetStore == nil {
		return nil
	}

	assets, err := req.AssetStore.ListForCourse(ctx, req.Course)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}
	if len(assets) == 0 {
		return nil
	}

	entries := make([]assetEntry, 0, len(assets))
	for _, asset := range assets {
		rc, err := req.AssetStore.Open(ctx, asset.Key)
		if err != nil {
			return fmt.Errorf("failed to open asset %s: %w", asset.Key, err)
		}
		dst := filepath.Join(outDir, assetsDir, filepath.FromSlash(asset.Key.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			rc.Close()
			return err
		}
		f, err := os.Create(dst)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(f, rc)
		rc.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to write asset %s: %w", asset.Key, err)
		}

		entries = append(entries, assetEntry{
			Path:        asset.Key.Path,
			DisplayName: asset.DisplayName,
			ContentType: asset.ContentType,
			Locked:      asset.Locked,
		})
	}

	doc, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, assetManifest), doc, 0644)
}
