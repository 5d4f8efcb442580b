// Package split implements a versioned module store backed by SQLite. Every
// course carries an active structure version; publishing snapshots the active
// structure into a new immutable version and moves the pointer forward.
package split

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tendant/coursestore/pkg/coursestore"
)

const (
	busyTimeoutMS = 5000
	maxOpenConns  = 1
)

// Config options for the versioned store.
type Config struct {
	Path      string // SQLite database file
	Namespace string // isolation namespace, part of Name()
	Logger    *slog.Logger
}

// Store is a SQLite-backed implementation of coursestore.ModuleStore.
type Store struct {
	db        *sql.DB
	namespace string
	logger    *slog.Logger
	seq       atomic.Uint64
}

// New opens (and bootstraps) a versioned store at cfg.Path.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := sql.Open("sqlite", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open versioned store: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := bootstrap(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, namespace: cfg.Namespace, logger: cfg.Logger}, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}

func bootstrap(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			course_id      TEXT PRIMARY KEY,
			root_id        TEXT NOT NULL,
			active_version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS structures (
			course_id  TEXT NOT NULL,
			version    INTEGER NOT NULL,
			block_id   TEXT NOT NULL,
			block_json BLOB NOT NULL,
			PRIMARY KEY (course_id, version, block_id)
		)`,
		`CREATE TABLE IF NOT EXISTS asset_metadata (
			course_id  TEXT NOT NULL,
			path       TEXT NOT NULL,
			asset_json BLOB NOT NULL,
			PRIMARY KEY (course_id, path)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}

// Name identifies the backend instance.
func (s *Store) Name() string {
	return "split:" + s.namespace
}

// MakeCourseKey builds a course key. Deterministic for the three parts.
func (s *Store) MakeCourseKey(org, course, run string) coursestore.CourseKey {
	return coursestore.NewCourseKey(org, course, run)
}

// MintUsageID returns a fresh usage id. Versioned-store ids look nothing like
// document-store ids on purpose: ids are backend currency, not content.
func (s *Store) MintUsageID(key coursestore.CourseKey, blockType string) coursestore.UsageID {
	n := s.seq.Add(1)
	return coursestore.UsageID(fmt.Sprintf("blk.%s.%04d.%s", blockType, n, uuid.NewString()[:8]))
}

// HasCourse reports whether a course exists under the key.
func (s *Store) HasCourse(ctx context.Context, key coursestore.CourseKey) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM courses WHERE course_id = ?`, key.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &coursestore.StoreError{Store: s.Name(), Op: "has_course", Key: key.String(), Err: err}
	}
	return true, nil
}

// GetCourses lists every course key held by the store.
func (s *Store) GetCourses(ctx context.Context) ([]coursestore.CourseKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT course_id FROM courses ORDER BY course_id`)
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_courses", Key: "", Err: err}
	}
	defer rows.Close()

	var keys []coursestore.CourseKey
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		key, err := coursestore.ParseCourseKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// CreateCourse creates an empty course at version 1 with a fresh root block.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO courses (course_id, root_id, active_version) VALUES (?, ?, 1)`,
		key.String(), string(root.UsageKey.ID)); err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "create_course", Key: key.String(), Err: err}
	}
	if err := putBlockTx(ctx, tx, key, 1, root, userID); err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "create_course", Key: key.String(), Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Debug("created course", "store", s.Name(), "course", key.String())
	return root, nil
}

type storedBlock struct {
	UsageKey coursestore.UsageKey  `json:"usage_key"`
	Fields   coursestore.FieldMap  `json:"fields"`
	ParentID coursestore.UsageID   `json:"parent_id,omitempty"`
	ChildIDs []coursestore.UsageID `json:"child_ids,omitempty"`
	EditedBy string                `json:"edited_by,omitempty"`
}

func putBlockTx(ctx context.Context, tx *sql.Tx, course coursestore.CourseKey, version int64, block *coursestore.Block, userID string) error {
	doc, err := json.Marshal(storedBlock{
		UsageKey: block.UsageKey,
		Fields:   block.Fields,
		ParentID: block.ParentID,
		ChildIDs: block.ChildIDs,
		EditedBy: userID,
	})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO structures (course_id, version, block_id, block_json)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (course_id, version, block_id) DO UPDATE SET block_json = excluded.block_json`,
		course.String(), version, string(block.UsageKey.ID), doc)
	return err
}

func (s *Store) courseRow(ctx context.Context, key coursestore.CourseKey) (rootID coursestore.UsageID, version int64, err error) {
	var root string
	err = s.db.QueryRowContext(ctx,
		`SELECT root_id, active_version FROM courses WHERE course_id = ?`, key.String()).
		Scan(&root, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, coursestore.ErrCourseNotFound
	}
	return coursestore.UsageID(root), version, err
}

// GetCourse returns the course's root block at the given depth, resolved
// against the active version.
func (s *Store) GetCourse(ctx context.Context, key coursestore.CourseKey, depth int) (*coursestore.Block, error) {
	rootID, _, err := s.courseRow(ctx, key)
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_course", Key: key.String(), Err: err}
	}
	return s.GetItem(ctx, coursestore.UsageKey{Course: key, BlockType: "course", ID: rootID}, depth)
}

// GetItem returns one block at the given depth.
func (s *Store) GetItem(ctx context.Context, key coursestore.UsageKey, depth int) (*coursestore.Block, error) {
	_, version, err := s.courseRow(ctx, key.Course)
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_item", Key: key.String(), Err: err}
	}
	block, err := s.loadBlock(ctx, key.Course, version, key.ID, depth)
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "get_item", Key: key.String(), Err: err}
	}
	return block, nil
}

func (s *Store) loadBlock(ctx context.Context, course coursestore.CourseKey, version int64, id coursestore.UsageID, depth int) (*coursestore.Block, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT block_json FROM structures WHERE course_id = ? AND version = ? AND block_id = ?`,
		course.String(), version, string(id)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coursestore.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	var stored storedBlock
	if err := json.Unmarshal(doc, &stored); err != nil {
		return nil, err
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
		child, err := s.loadBlock(ctx, course, version, childID, childDepth)
		if err != nil {
			return nil, fmt.Errorf("loading child %s: %w", childID, err)
		}
		block.Children = append(block.Children, child)
	}
	return block, nil
}

// PutItem writes a block into the course's active version.
func (s *Store) PutItem(ctx context.Context, block *coursestore.Block, userID string) error {
	if err := coursestore.ValidateFields(block.BlockType(), block.Fields); err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "put_item", Key: block.UsageKey.String(), Err: err}
	}
	_, version, err := s.courseRow(ctx, block.UsageKey.Course)
	if err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "put_item", Key: block.UsageKey.String(), Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := putBlockTx(ctx, tx, block.UsageKey.Course, version, block, userID); err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "put_item", Key: block.UsageKey.String(), Err: err}
	}
	return tx.Commit()
}

// PublishVersion snapshots the active structure into a new version and makes
// it active. Prior versions stay readable through direct SQL but are never
// returned by reads.
func (s *Store) PublishVersion(ctx context.Context, key coursestore.CourseKey) (int64, error) {
	_, version, err := s.courseRow(ctx, key)
	if err != nil {
		return 0, &coursestore.StoreError{Store: s.Name(), Op: "publish_version", Key: key.String(), Err: err}
	}

	next := version + 1
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO structures (course_id, version, block_id, block_json)
		 SELECT course_id, ?, block_id, block_json FROM structures WHERE course_id = ? AND version = ?`,
		next, key.String(), version); err != nil {
		return 0, &coursestore.StoreError{Store: s.Name(), Op: "publish_version", Key: key.String(), Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE courses SET active_version = ? WHERE course_id = ?`, next, key.String()); err != nil {
		return 0, &coursestore.StoreError{Store: s.Name(), Op: "publish_version", Key: key.String(), Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// DeleteCourse removes the course, all structure versions, and its asset
// metadata.
func (s *Store) DeleteCourse(ctx context.Context, key coursestore.CourseKey, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE course_id = ?`, key.String())
	if err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "delete_course", Key: key.String(), Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &coursestore.StoreError{Store: s.Name(), Op: "delete_course", Key: key.String(), Err: coursestore.ErrCourseNotFound}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM structures WHERE course_id = ?`, key.String()); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM asset_metadata WHERE course_id = ?`, key.String())
	return err
}

// SaveAssetMetadata upserts one asset metadata record for the course.
func (s *Store) SaveAssetMetadata(ctx context.Context, md *coursestore.Asset) error {
	doc, err := json.Marshal(md)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO asset_metadata (course_id, path, asset_json)
		 VALUES (?, ?, ?)
		 ON CONFLICT (course_id, path) DO UPDATE SET asset_json = excluded.asset_json`,
		md.Key.Course.String(), md.Key.Path, doc)
	if err != nil {
		return &coursestore.StoreError{Store: s.Name(), Op: "save_asset_metadata", Key: md.Key.String(), Err: err}
	}
	return nil
}

// AssetMetadataForCourse lists the course's asset metadata records sorted by
// (display name, key).
func (s *Store) AssetMetadataForCourse(ctx context.Context, key coursestore.CourseKey) ([]*coursestore.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_json FROM asset_metadata WHERE course_id = ?`, key.String())
	if err != nil {
		return nil, &coursestore.StoreError{Store: s.Name(), Op: "asset_metadata", Key: key.String(), Err: err}
	}
	defer rows.Close()

	var assets []*coursestore.Asset
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var asset coursestore.Asset
		if err := json.Unmarshal(doc, &asset); err != nil {
			return nil, err
		}
		assets = append(assets, &asset)
	}
	if err := rows.Err(); err != nil {
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

// AssetCollection exposes the raw database handle holding the asset metadata.
// The versioned store keeps asset metadata in the same database as structures.
func (s *Store) AssetCollection() any {
	return s.db
}

// Destroy deletes all data held by the store and closes it.
func (s *Store) Destroy() error {
	for _, table := range []string{"structures", "asset_metadata", "courses"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			_ = s.db.Close()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return s.db.Close()
}

// Close releases the underlying database without destroying data.
func (s *Store) Close() error {
	return s.db.Close()
}
