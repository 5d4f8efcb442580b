// Package doc implements a draft-aware document module store backed by
// badger. Blocks and course records are stored as JSON documents under
// prefixed keys inside one namespace.
package doc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// Branch selects which block revisions reads return.
type Branch string

// Branch constants (typed).
const (
	BranchDraftPreferred Branch = "draft-preferred"
	BranchPublishedOnly  Branch = "published-only"
)

// Revision labels stored on each block document.
const (
	revisionDraft     = "draft"
	revisionPublished = "published"
)

// Config options for the document store.
type Config struct {
	Dir       string // badger data directory
	Namespace string // isolation namespace, part of Name()
	Branch    Branch // read preference (default BranchDraftPreferred)
	Logger    *slog.Logger
}

// Store is a badger-backed implementation of coursestore.ModuleStore.
type Store struct {
	db        *badger.DB
	namespace string
	branch    Branch
	logger    *slog.Logger
}

type storedBlock struct {
	UsageKey coursestore.UsageKey   `json:"usage_key"`
	Fields   coursestore.FieldMap   `json:"fields"`
	ParentID coursestore.UsageID    `json:"parent_id,omitempty"`
	ChildIDs []coursestore.UsageID  `json:"child_ids,omitempty"`
	Revision string                 `json:"revision"`
	EditedBy string                 `json:"edited_by,omitempty"`
}

// New opens a document store in cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = BranchDraftPreferred
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	return &Store{
		db:        db,
		namespace: cfg.Namespace,
		branch:    cfg.Branch,
		logger:    cfg.Logger,
	}, nil
}

// Name identifies the backend instance.
func (s *Store) Name() string {
	return "doc:" + s.namespace
}

// MakeCourseKey builds a course key. Deterministic for the three parts.
func (s *Store) MakeCourseKey(org, course, run string) coursestore.CourseKey {
	return coursestore.NewCourseKey(org, course, run)
}

// MintUsageID returns a fresh usage id. Document-store ids embed the block
// type plus a random suffix, so two imports of the same course never share
// ids.
func (s *Store) MintUsageID(key coursestore.CourseKey, blockType string) coursestore.UsageID {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return coursestore.UsageID(fmt.Sprintf("%s+%s", blockType, suffix[:16]))
}

func courseKeyBytes(key coursestore.CourseKey) []byte {
	return []byte("course/" + key.String())
}

func itemKeyBytes(key coursestore.UsageKey) []byte {
	return []byte("item/" + key.Course.String() + "/" + string(key.ID))
}

func itemPrefix(key coursestore.CourseKey) []byte {
	return []byte("item/" + key.String() + "/")
}

func assetKeyBytes(course coursestore.CourseKey, path string) []byte {
	return []byte("assetmd/" + course.String() + "/" + path)
}

func assetPrefix(key coursestore.CourseKey) []byte {
	return []byte("assetmd/" + key.String() + "/")
}

// HasCourse reports whether a course exists under the key.
func (s *Store) HasCourse(ctx context.Context, key coursestore.CourseKey) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(courseKeyBytes(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &coursestore.StoreError{Store: s.Name(), Op: "has_course", Key: key.String(), Err: err}
	}
	return true, nil
}

// GetCourses lists every course key held by the store.
func (s *Store) GetCourses(ctx context.Context) ([]coursestore.CourseKey, error) {
	var keys []coursestore.CourseKey
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("course/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var course coursestore.Course
				if err := json.Unmarshal(val, &course); err != nil {
					return err
				}
				keys = append(keys, course.Key)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_courses", Key: "", Err: err}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// CreateCourse creates an empty course with a fresh root block.
func (s *Store) CreateCourse(ctx context.Context, key coursestore.CourseKey, userID string) (*coursestore.Block, error) {
	exists, err := s.HasCourse(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "create_course", Key: key.String(), Err: coursestore.ErrCourseExists}
	}

	root := &coursestore.Block{
		UsageKey: coursestore.UsageKey{
			Course:    key,
			BlockType: "course",
			ID:        s.MintUsageID(key, "course"),
		},
		Fields: coursestore.FieldMap{},
	}

	courseDoc, err := json.Marshal(coursestore.Course{Key: key, Root: root.UsageKey.ID})
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(courseKeyBytes(key), courseDoc); err != nil {
			return err
		}
		return s.setBlock(txn, root, userID, revisionPublished)
	})
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "create_course", Key: key.String(), Err: err}
	}

	s.logger.Debug("created course", "store", s.Name(), "course", key.String())
	return root, nil
}

func (s *Store) setBlock(txn *badger.Txn, block *coursestore.Block, userID, revision string) error {
	doc, err := json.Marshal(storedBlock{
		UsageKey: block.UsageKey,
		Fields:   block.Fields,
		ParentID: block.ParentID,
		ChildIDs: block.ChildIDs,
		Revision: revision,
		EditedBy: userID,
	})
	if err != nil {
		return err
	}
	return txn.Set(itemKeyBytes(block.UsageKey), doc)
}

// GetCourse returns the course's root block at the given depth.
func (s *Store) GetCourse(ctx context.Context, key coursestore.CourseKey, depth int) (*coursestore.Block, error) {
	var course coursestore.Course
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(courseKeyBytes(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &course)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_course", Key: key.String(), Err: coursestore.ErrCourseNotFound}
	}
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_course", Key: key.String(), Err: err}
	}

	return s.GetItem(ctx, coursestore.UsageKey{Course: key, BlockType: "course", ID: course.Root}, depth)
}

// GetItem returns one block at the given depth.
func (s *Store) GetItem(ctx context.Context, key coursestore.UsageKey, depth int) (*coursestore.Block, error) {
	var block *coursestore.Block
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		block, err = s.loadBlock(txn, key.Course, key.ID, depth)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = coursestore.ErrItemNotFound
		}
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_item", Key: key.String(), Err: err}
	}
	return block, nil
}

func (s *Store) loadBlock(txn *badger.Txn, course coursestore.CourseKey, id coursestore.UsageID, depth int) (*coursestore.Block, error) {
	item, err := txn.Get(itemKeyBytes(coursestore.UsageKey{Course: course, ID: id}))
	if err != nil {
		return nil, err
	}

	var stored storedBlock
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &stored) }); err != nil {
		return nil, err
	}

	if s.branch == BranchPublishedOnly && stored.Revision == revisionDraft {
		return nil, coursestore.ErrItemNotFound
	}

	block := &coursestore.Block{
		UsageKey: stored.UsageKey,
		Fields:   stored.Fields,
		ParentID: stored.ParentID,
		ChildIDs: stored.ChildIDs,
	}
	if block.Fields == nil {
		block.Fields = coursestore.FieldMap{}
	}

	if depth == coursestore.FetchBlock {
		return block, nil
	}

	childDepth := depth
	if depth > 0 {
		childDepth = depth - 1
	}
	for _, childID := range stored.ChildIDs {
		child, err := s.loadBlock(txn, course, childID, childDepth)
		if err != nil {
			return nil, fmt.Errorf("loading child %s: %w", childID, err)
		}
		block.Children = append(block.Children, child)
	}
	return block, nil
}

// PutItem writes a published block revision.
func (s *Store) PutItem(ctx context.Context, block *coursestore.Block, userID string) error {
	return s.putRevision(block, userID, revisionPublished)
}

// PutDraftItem writes a draft block revision. Draft revisions are invisible
// to stores reading with BranchPublishedOnly.
func (s *Store) PutDraftItem(ctx context.Context, block *coursestore.Block, userID string) error {
	return s.putRevision(block, userID, revisionDraft)
}

func (s *Store) putRevision(block *coursestore.Block, userID, revision string) error {
	if err := coursestore.ValidateFields(block.BlockType(), block.Fields); err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "put_item", Key: block.UsageKey.String(), Err: err}
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.setBlock(txn, block, userID, revision)
	})
	if err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "put_item", Key: block.UsageKey.String(), Err: err}
	}
	return nil
}

// DeleteCourse removes the course record, its blocks, and its asset metadata.
func (s *Store) DeleteCourse(ctx context.Context, key coursestore.CourseKey, userID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(courseKeyBytes(key)); err != nil {
			return err
		}
		if err := deletePrefix(txn, itemPrefix(key)); err != nil {
			return err
		}
		if err := deletePrefix(txn, assetPrefix(key)); err != nil {
			return err
		}
		return txn.Delete(courseKeyBytes(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = coursestore.ErrCourseNotFound
	}
	if err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "delete_course", Key: key.String(), Err: err}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// SaveAssetMetadata upserts one asset metadata record for the course.
func (s *Store) SaveAssetMetadata(ctx context.Context, md *coursestore.Asset) error {
	doc, err := json.Marshal(md)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(assetKeyBytes(md.Key.Course, md.Key.Path), doc)
	})
	if err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "save_asset_metadata", Key: md.Key.String(), Err: err}
	}
	return nil
}

// AssetMetadataForCourse lists the course's asset metadata records sorted by
// (display name, key).
func (s *Store) AssetMetadataForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	var assets []*coursestore.Asset
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := assetPrefix(key)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var asset coursestore.Asset
				if err := json.Unmarshal(val, &asset); err != nil {
					return err
				}
				assets = append(assets, &asset)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "asset_metadata", Key: key.String(), Err: err}
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].DisplayName != assets[j].DisplayName {
			return assets[i].DisplayName < assets[j].DisplayName
		}
		return assets[i].Key.String() < assets[j].Key.String()
	})
	return assets, nil
}

// AssetCollection exposes the raw badger handle holding the asset metadata.
// Used by the mixed façade when exactly one backend is configured.
func (s *Store) AssetCollection() any {
	return s.db
}

// Destroy drops all data held by the store and closes it. Used by the
// lifecycle manager during teardown.
func (s *Store) Destroy() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("failed to drop document store data: %w", err)
	}
	return s.db.Close()
}

// Close releases the underlying badger database without destroying data.
func (s *Store) Close() error {
	return s.db.Close()
}
