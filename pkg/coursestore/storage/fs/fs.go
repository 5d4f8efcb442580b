// Package fs implements a filesystem asset store. Content lives under the
// base directory mirroring the asset path; metadata lives in JSON sidecar
// files under a parallel .meta tree.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/coursestore/pkg/coursestore"
)

const metaDirName = ".meta"

// Config options for the filesystem asset store.
type Config struct {
	BaseDir string // base directory for storing assets
}

// Store is a filesystem implementation of coursestore.AssetStore.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

// New creates a filesystem asset store rooted at config.BaseDir.
func New(config Config) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: config.BaseDir}, nil
}

func (s *Store) contentPath(key coursestore.AssetKey) string {
	return filepath.Join(s.baseDir, key.Course.Org, key.Course.Course, key.Course.Run,
		filepath.FromSlash(key.Path))
}

func (s *Store) metaPath(key coursestore.AssetKey) string {
	return filepath.Join(s.baseDir, metaDirName, key.Course.Org, key.Course.Course, key.Course.Run,
		filepath.FromSlash(key.Path)+".json")
}

func (s *Store) courseMetaDir(key coursestore.CourseKey) string {
	return filepath.Join(s.baseDir, metaDirName, key.Org, key.Course, key.Run)
}

// Save stores the asset content and fills in the backend-assigned metadata.
func (s *Store) Save(ctx context.Context, asset *coursestore.Asset, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.contentPath(asset.Key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}
	f, err := os.Create(dst)
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}

	asset.ContentDigest = hex.EncodeToString(h.Sum(nil))
	asset.UploadDate = time.Now().UTC()
	if asset.Fields == nil {
		asset.Fields = make(map[string]any)
	}
	asset.Fields["_id"] = uuid.NewString()
	asset.Fields["uploadDate"] = asset.UploadDate.Format(time.RFC3339Nano)
	asset.Fields["content_son"] = map[string]any{"path": dst}
	asset.Fields["thumbnail_location"] = filepath.Join(metaDirName, "thumbnails", asset.Key.Path)

	meta := s.metaPath(asset.Key)
	if err := os.MkdirAll(filepath.Dir(meta), 0755); err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}
	doc, err := json.Marshal(asset)
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}
	if err := os.WriteFile(meta, doc, 0644); err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}
	return nil
}

// Open returns a reader over the asset content.
func (s *Store) Open(ctx context.Context, key coursestore.AssetKey) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := os.Open(s.contentPath(key))
	if os.IsNotExist(err) {
		return nil, &coursestore.AssetError{Key: key, Op: "open", Err: coursestore.ErrAssetNotFound}
	}
	if err != nil {
		return nil, &coursestore.AssetError{Key: key, Op: "open", Err: err}
	}
	return f, nil
}

// Find returns the asset metadata for a key.
func (s *Store) Find(ctx context.Context, key coursestore.AssetKey) (*coursestore.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(s.metaPath(key), key)
}

func (s *Store) readMeta(path string, key coursestore.AssetKey) (*coursestore.Asset, error) {
	doc, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &coursestore.AssetError{Key: key, Op: "find", Err: coursestore.ErrAssetNotFound}
	}
	if err != nil {
		return nil, &coursestore.AssetError{Key: key, Op: "find", Err: err}
	}
	var asset coursestore.Asset
	if err := json.Unmarshal(doc, &asset); err != nil {
		return nil, &coursestore.AssetError{Key: key, Op: "find", Err: err}
	}
	return &asset, nil
}

// ListForCourse returns the course's assets sorted by (display name, key).
func (s *Store) ListForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var assets []*coursestore.Asset
	root := s.courseMetaDir(key)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		asset, err := s.readMeta(path, coursestore.AssetKey{Course: key})
		if err != nil {
			return err
		}
		assets = append(assets, asset)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].DisplayName != assets[j].DisplayName {
			return assets[i].DisplayName < assets[j].DisplayName
		}
		return assets[i].Key.String() < assets[j].Key.String()
	})
	return assets, nil
}

// DeleteForCourse removes every asset belonging to the course.
func (s *Store) DeleteForCourse(ctx context.Context, key coursestore.CourseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contentDir := filepath.Join(s.baseDir, key.Org, key.Course, key.Run)
	if err := os.RemoveAll(contentDir); err != nil {
		return err
	}
	return os.RemoveAll(s.courseMetaDir(key))
}

// Close is a no-op for the filesystem store.
func (s *Store) Close() error {
	return nil
}
