// Package zds is an append-only JSON document store: one newline-delimited
// log per collection, backed by a binary offset index for O(1) random
// access. The log is never rewritten or compacted; updates append, deletes
// remove only the index entry.
package zds

import "errors"

// Sentinel errors returned by store operations. Each corresponds to one
// kind in the error taxonomy; callers should compare with errors.Is rather
// than matching message text.
var (
	// ErrDocumentNotFound is returned when an identifier is absent from the index.
	ErrDocumentNotFound = errors.New("zds: document not found")

	// ErrCollectionNotFound is returned when a collection's subtree is missing.
	ErrCollectionNotFound = errors.New("zds: collection not found")

	// ErrInvalidID is returned for an empty, too-long, or malformed identifier.
	ErrInvalidID = errors.New("zds: invalid document id")

	// ErrInvalidPath is returned when a root's on-disk layout is malformed.
	ErrInvalidPath = errors.New("zds: invalid root layout")

	// ErrSchemaMismatch is returned in strict mode when a document's shape
	// differs from the collection's captured shape.
	ErrSchemaMismatch = errors.New("zds: document shape does not match collection schema")

	// ErrCorruptIndex is returned when index.bin fails magic/version/structural checks.
	ErrCorruptIndex = errors.New("zds: corrupt index")

	// ErrCorruptArchive is returned when a packed archive fails to extract cleanly.
	ErrCorruptArchive = errors.New("zds: corrupt archive")

	// ErrAlreadyLocked is returned when a read-write root is opened against a
	// canonical path that another process or instance already holds.
	ErrAlreadyLocked = errors.New("zds: root already locked for writing")

	// ErrInvalidState is returned when a closed root is asked for a
	// collection, when Put, Delete or Flush is called on a store after
	// Close, when Put or Delete is called on a store opened read-only, and
	// when a collection is opened in a mode other than the one it was
	// created in.
	ErrInvalidState = errors.New("zds: invalid state")

	// ErrRecordTooLarge is returned when a document's encoded line would
	// exceed the collection's configured maximum record size.
	ErrRecordTooLarge = errors.New("zds: record exceeds maximum size")
)
