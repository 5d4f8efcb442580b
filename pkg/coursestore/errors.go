package coursestore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrCourseNotFound indicates a course was not found in the store
	ErrCourseNotFound = errors.New("course not found")

	// ErrItemNotFound indicates a block was not found in the store
	ErrItemNotFound = errors.New("item not found")

	// ErrAssetNotFound indicates an asset was not found
	ErrAssetNotFound = errors.New("asset not found")

	// ErrCourseExists indicates a course already exists under the given key
	ErrCourseExists = errors.New("course already exists")

	// ErrStoreNotFound indicates no backend store is configured for a course
	ErrStoreNotFound = errors.New("store not found")

	// ErrReadOnlyStore indicates a write was attempted on a read-only store
	ErrReadOnlyStore = errors.New("store is read-only")

	// ErrInvalidCourseKey indicates a malformed course key
	ErrInvalidCourseKey = errors.New("invalid course key")

	// ErrStoreClosed indicates an operation on a store that was torn down
	ErrStoreClosed = errors.New("store is closed")
)

// StoreError represents an error from a module-store operation.
type StoreError struct {
	Store string
	Op    string
	Key   string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: operation %s failed for %s: %v", e.Store, e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AssetError represents an error from an asset-store operation.
type AssetError struct {
	Key AssetKey
	Op  string
	Err error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
