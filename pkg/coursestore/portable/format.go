// Package portable converts courses between module stores and the portable
// on-disk course format: one directory per course holding a course manifest,
// one YAML file per block, and an asset tree with its metadata manifest.
//
// Portable block names are local to the directory. Importing always mints
// fresh backend-assigned usage ids, so ids never survive a round trip; only
// tree shape and field values do.
package portable

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tendant/coursestore/pkg/coursestore"
)

const (
	courseManifest = "course.yaml"
	assetManifest  = "assets.yaml"
	blocksDir      = "blocks"
	assetsDir      = "assets"
)

// courseFile is the serialized form of course.yaml.
type courseFile struct {
	Org    string `yaml:"org"`
	Course string `yaml:"course"`
	Run    string `yaml:"run"`
	Root   string `yaml:"root"`
}

// blockFile is the serialized form of one blocks/<name>.yaml.
type blockFile struct {
	BlockType string         `yaml:"block_type"`
	Fields    map[string]any `yaml:"fields,omitempty"`
	Children  []string       `yaml:"children,omitempty"`
}

// assetEntry is one row of assets.yaml.
type assetEntry struct {
	Path        string `yaml:"path"`
	DisplayName string `yaml:"display_name"`
	ContentType string `yaml:"content_type,omitempty"`
	Locked      bool   `yaml:"locked,omitempty"`
}

// BlockData is one block as read from a portable course directory.
type BlockData struct {
	Name      string
	BlockType string
	Fields    coursestore.FieldMap
	Children  []string
}

// CourseData is a portable course directory loaded into memory.
type CourseData struct {
	Key    coursestore.CourseKey
	RootID string
	Blocks map[string]*BlockData
	Assets []assetEntry
	Dir    string
}

// ReadCourseDir loads a portable course directory. Field values are
// normalized so that the same course read twice, or written by different
// backends, always yields identical values.
func ReadCourseDir(dir string) (*CourseData, error) {
	raw, err := os.ReadFile(filepath.Join(dir, courseManifest))
	if err != nil {
		return nil, fmt.Errorf("failed to read course manifest: %w", err)
	}
	var manifest courseFile
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse course manifest: %w", err)
	}
	if manifest.Root == "" {
		return nil, fmt.Errorf("course manifest in %s has no root block", dir)
	}

	data := &CourseData{
		Key:    coursestore.NewCourseKey(manifest.Org, manifest.Course, manifest.Run),
		RootID: manifest.Root,
		Blocks: make(map[string]*BlockData),
		Dir:    dir,
	}

	entries, err := os.ReadDir(filepath.Join(dir, blocksDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		raw, err := os.ReadFile(filepath.Join(dir, blocksDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var bf blockFile
		if err := yaml.Unmarshal(raw, &bf); err != nil {
			return nil, fmt.Errorf("failed to parse block %s: %w", name, err)
		}
		data.Blocks[name] = &BlockData{
			Name:      name,
			BlockType: bf.BlockType,
			Fields:    NormalizeFields(bf.Fields),
			Children:  bf.Children,
		}
	}

	if _, ok := data.Blocks[data.RootID]; !ok {
		return nil, fmt.Errorf("root block %q missing from %s", data.RootID, dir)
	}

	// Asset manifest is optional; a course may have no assets.
	raw, err = os.ReadFile(filepath.Join(dir, assetManifest))
	if err == nil {
		if err := yaml.Unmarshal(raw, &data.Assets); err != nil {
			return nil, fmt.Errorf("failed to parse asset manifest: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return data, nil
}

// AssetContentPath returns the on-disk location of one asset's bytes.
func (d *CourseData) AssetContentPath(path string) string {
	return filepath.Join(d.Dir, assetsDir, filepath.FromSlash(path))
}
