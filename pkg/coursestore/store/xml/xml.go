// Package xml implements a read-only module store constructed directly from
// portable course directories on disk. All content is loaded eagerly at
// construction; the store never mutates its source, so it needs no teardown.
package xml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/tendant/coursestore/pkg/coursestore"
	"github.com/tendant/coursestore/pkg/coursestore/portable"
)

// Config options for the file-backed store.
type Config struct {
	// DataDir is the directory containing one portable course per subdir.
	DataDir string

	// CourseDirs restricts loading to the named subdirectories. Empty means
	// every subdirectory of DataDir.
	CourseDirs []string

	Logger *slog.Logger
}

type courseEntry struct {
	root   coursestore.UsageID
	blocks map[coursestore.UsageID]*coursestore.Block
	assets []*coursestore.Asset
}

// Store is a read-only, memory-resident implementation of
// coursestore.ModuleStore.
type Store struct {
	dataDir string
	courses map[coursestore.CourseKey]*courseEntry
	logger  *slog.Logger
}

// New loads every requested course under cfg.DataDir.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dirs := cfg.CourseDirs
	if len(dirs) == 0 {
		entries, err := os.ReadDir(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list course data: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			}
		}
	}

	s := &Store{
		dataDir: cfg.DataDir,
		courses: make(map[coursestore.CourseKey]*courseEntry),
		logger:  cfg.Logger,
	}
	for _, dir := range dirs {
		if err := s.loadCourse(dir); err != nil {
			return nil, fmt.Errorf("failed to load course %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) loadCourse(dir string) error {
	data, err := portable.ReadCourseDir(s.dataDir + string(os.PathSeparator) + dir)
	if err != nil {
		return err
	}

	entry := &courseEntry{
		blocks: make(map[coursestore.UsageID]*coursestore.Block, len(data.Blocks)),
	}

	// Local portable names double as usage ids; the source never changes,
	// so stability is fine here.
	ids := make(map[string]coursestore.UsageID, len(data.Blocks))
	for name := range data.Blocks {
		ids[name] = coursestore.UsageID("xml+" + name)
	}
	entry.root = ids[data.RootID]

	parents := make(map[string]string)
	for name, bd := range data.Blocks {
		for _, child := range bd.Children {
			parents[child] = name
		}
	}

	for name, bd := range data.Blocks {
		blockType := bd.BlockType
		if name == data.RootID {
			blockType = "course"
		}
		block := &coursestore.Block{
			UsageKey: coursestore.UsageKey{
				Course:    data.Key,
				BlockType: blockType,
				ID:        ids[name],
			},
			Fields: bd.Fields,
		}
		if parent, ok := parents[name]; ok {
			block.ParentID = ids[parent]
		}
		for _, child := range bd.Children {
			block.ChildIDs = append(block.ChildIDs, ids[child])
		}
		entry.blocks[block.UsageKey.ID] = block
	}

	for _, ae := range data.Assets {
		asset := &coursestore.Asset{
			Key:         coursestore.AssetKey{Course: data.Key, Path: ae.Path},
			DisplayName: ae.DisplayName,
			ContentType: ae.ContentType,
			Locked:      ae.Locked,
			UploadDate:  time.Time{},
		}
		digest, err := digestFile(data.AssetContentPath(ae.Path))
		if err != nil {
			return fmt.Errorf("failed to digest asset %s: %w", ae.Path, err)
		}
		asset.ContentDigest = digest
		entry.assets = append(entry.assets, asset)
	}
	sort.Slice(entry.assets, func(i, j int) bool {
		if entry.assets[i].DisplayName != entry.assets[j].DisplayName {
			return entry.assets[i].DisplayName < entry.assets[j].DisplayName
		}
		return entry.assets[i].Key.String() < entry.assets[j].Key.String()
	})

	s.courses[data.Key] = entry
	return nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Name identifies the backend instance.
func (s *Store) Name() string {
	return "xml:" + s.dataDir
}

// MakeCourseKey builds a course key. Deterministic for the three parts.
func (s *Store) MakeCourseKey(org, course, run string) coursestore.CourseKey {
	return coursestore.NewCourseKey(org, course, run)
}

// MintUsageID is unsupported on a read-only store; it returns an empty id.
func (s *Store) MintUsageID(key coursestore.CourseKey, blockType string) coursestore.UsageID {
	return ""
}

// HasCourse reports whether a course was loaded under the key.
func (s *Store) HasCourse(ctx context.Context, key coursestore.CourseKey) (bool, error) {
	_, ok := s.courses[key]
	return ok, nil
}

// GetCourses lists every loaded course key.
func (s *Store) GetCourses(ctx context.Context) ([]coursestore.CourseKey, error) {
	keys := make([]coursestore.CourseKey, 0, len(s.courses))
	for key := range s.courses {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// CreateCourse is unsupported on a read-only store.
func (s *Store) CreateCourse(ctx context.Context, key coursestore.CourseKey, userID string) (*coursestore.Block, error) {
	return nil, &coursestore.StoreError{Store: s.Name(), Op: "create_course", Key: key.String(), Err: coursestore.ErrReadOnlyStore}
}

// GetCourse returns the course's root block at the given depth.
func (s *Store) GetCourse(ctx context.Context, key coursestore.CourseKey, depth int) (*coursestore.Block, error) {
	entry, ok := s.courses[key]
	if !ok {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_course", Key: key.String(), Err: coursestore.ErrCourseNotFound}
	}
	return s.GetItem(ctx, coursestore.UsageKey{Course: key, BlockType: "course", ID: entry.root}, depth)
}

// GetItem returns one block at the given depth. Returned blocks are copies;
// the loaded source stays immutable.
func (s *Store) GetItem(ctx context.Context, key coursestore.UsageKey, depth int) (*coursestore.Block, error) {
	entry, ok := s.courses[key.Course]
	if !ok {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_item", Key: key.String(), Err: coursestore.ErrCourseNotFound}
	}
	block, err := s.copyBlock(entry, key.ID, depth)
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_item", Key: key.String(), Err: err}
	}
	return block, nil
}

func (s *Store) copyBlock(entry *courseEntry, id coursestore.UsageID, depth int) (*coursestore.Block, error) {
	source, ok := entry.blocks[id]
	if !ok {
		return nil, coursestore.ErrItemNotFound
	}
	block := source.Clone()
	if depth == coursestore.FetchBlock {
		return block, nil
	}
	childDepth := depth
	if depth > 0 {
		childDepth = depth - 1
	}
	for _, childID := range source.ChildIDs {
		child, err := s.copyBlock(entry, childID, childDepth)
		if err != nil {
			return nil, err
		}
		block.Children = append(block.Children, child)
	}
	return block, nil
}

// PutItem is unsupported on a read-only store.
func (s *Store) PutItem(ctx context.Context, block *coursestore.Block, userID string) error {
	return &coursestore.StoreError{Store: s.Name(), Op: "put_item", Key: block.UsageKey.String(), Err: coursestore.ErrReadOnlyStore}
}

// DeleteCourse is unsupported on a read-only store.
func (s *Store) DeleteCourse(ctx context.Context, key coursestore.CourseKey, userID string) error {
	return &coursestore.StoreError{Store: s.Name(), Op: "delete_course", Key: key.String(), Err: coursestore.ErrReadOnlyStore}
}

// SaveAssetMetadata is unsupported on a read-only store.
func (s *Store) SaveAssetMetadata(ctx context.Context, md *coursestore.Asset) error {
	return &coursestore.StoreError{Store: s.Name(), Op: "save_asset_metadata", Key: md.Key.String(), Err: coursestore.ErrReadOnlyStore}
}

// AssetMetadataForCourse lists the asset metadata declared in the course's
// asset manifest, sorted by (display name, key).
func (s *Store) AssetMetadataForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	entry, ok := s.courses[key]
	if !ok {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "asset_metadata", Key: key.String(), Err: coursestore.ErrCourseNotFound}
	}
	assets := make([]*coursestore.Asset, len(entry.assets))
	for i, a := range entry.assets {
		assets[i] = a.Clone()
	}
	return assets, nil
}

// Close is a no-op; the store holds no external resources after loading.
func (s *Store) Close() error {
	return nil
}
