// Package coursestore provides a reusable library for storing tree-shaped
// course content across pluggable module-store backends.
//
// A course is a rooted tree of blocks (chapters, sequentials, verticals,
// problems, ...). Blocks carry a typed field bag whose declared fields are
// described by a per-block-type schema; unknown fields pass through as opaque
// values. Binary course assets live in a separate asset store with their own
// metadata.
//
// Implementations of module stores (badger-backed document store, sqlite-backed
// versioned store, read-only file-backed store, mixed façade) and asset stores
// (memory, filesystem, S3) are provided under subpackages. The compare
// subpackage verifies that a course survives an export/import round trip
// between any two backends; the structure subpackage derives and persists a
// flattened snapshot of a course tree on publish events.
//
// Identifier Stability
//
// Usage ids are assigned by the backend that materializes a block and are not
// stable across a re-import, even into the same backend technology. Anything
// comparing two copies of a course must pair blocks by tree position, never by
// usage id.
package coursestore
