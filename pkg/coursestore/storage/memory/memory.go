// Package memory implements an in-memory asset store, useful for tests and
// ephemeral round-trip verification.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// Store is an in-memory implementation of coursestore.AssetStore.
type Store struct {
	mu       sync.RWMutex
	contents map[string][]byte
	metadata map[string]*coursestore.Asset
}

// New creates a new in-memory asset store.
func New() *Store {
	return &Store{
		contents: make(map[string][]byte),
		metadata: make(map[string]*coursestore.Asset),
	}
}

// Save stores the asset content and fills in the backend-assigned metadata
// (digest, upload date, bookkeeping fields).
func (s *Store) Save(ctx context.Context, asset *coursestore.Asset, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &coursestore.AssetError{Key: asset.Key, Op: "save", Err: err}
	}

	sum := sha256.Sum256(data)
	asset.ContentDigest = hex.EncodeToString(sum[:])
	asset.UploadDate = time.Now().UTC()
	if asset.Fields == nil {
		asset.Fields = make(map[string]any)
	}
	asset.Fields["_id"] = uuid.NewString()
	asset.Fields["uploadDate"] = asset.UploadDate.Format(time.RFC3339Nano)
	asset.Fields["content_son"] = map[string]any{"category": "asset", "name": asset.Key.Path}
	asset.Fields["thumbnail_location"] = ""

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[asset.Key.String()] = data
	s.metadata[asset.Key.String()] = asset.Clone()
	return nil
}

// Open returns a reader over the asset content.
func (s *Store) Open(ctx context.Context, key coursestore.AssetKey) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.contents[key.String()]
	if !ok {
		return nil, &coursestore.AssetError{Key: key, Op: "open", Err: coursestore.ErrAssetNotFound}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Find returns the asset metadata for a key.
func (s *Store) Find(ctx context.Context, key coursestore.AssetKey) (*coursestore.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.metadata[key.String()]
	if !ok {
		return nil, &coursestore.AssetError{Key: key, Op: "find", Err: coursestore.ErrAssetNotFound}
	}
	return md.Clone(), nil
}

// ListForCourse returns the course's assets sorted by (display name, key).
func (s *Store) ListForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var assets []*coursestore.Asset
	for _, md := range s.metadata {
		if md.Key.Course == key {
			assets = append(assets, md.Clone())
		}
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
	for k, md := range s.metadata {
		if md.Key.Course == key {
			delete(s.metadata, k)
			delete(s.contents, k)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
