// Strict-mode shape capture and comparison (spec.md §4.D, §9). The first
// successful put into a strict collection captures the set of top-level
// field names paired with their JSON primitive kind; later puts must match
// or fail with ErrSchemaMismatch.
//
// Per spec.md §9's design note ("keep the shape representation small"),
// only a blake2b-128 fingerprint of the canonical shape is persisted in
// the manifest — blake2b was the teacher's "best distribution" hash
// algorithm option (hash.go's AlgBlake2b), otherwise unused here since
// document identifiers are caller-supplied rather than content-hashed.
package zds

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// kindOf classifies a decoded JSON value into one of the primitive kinds
// strict mode distinguishes between.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// shapeOf returns the sorted "field:kind" pairs of doc's top-level fields.
func shapeOf(doc map[string]any) []string {
	pairs := make([]string, 0, len(doc))
	for field, v := range doc {
		pairs = append(pairs, field+":"+kindOf(v))
	}
	sort.Strings(pairs)
	return pairs
}

// shapeDigest fingerprints a shape into a stable, small (16-byte) digest
// suitable for storing in the manifest and comparing cheaply on every put.
func shapeDigest(shape []string) string {
	h, _ := blake2b.New(16, nil) // size 16 with no key never errors
	h.Write([]byte(strings.Join(shape, "\x1f")))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// checkShape validates doc's shape against the collection's captured
// digest, capturing it on the first call (digest == ""). Returns the
// digest to persist (unchanged unless this is the capturing call) and an
// error if doc's shape conflicts with an already-captured one.
func checkShape(existingDigest string, doc map[string]any) (digest string, err error) {
	shape := shapeOf(doc)
	d := shapeDigest(shape)
	if existingDigest == "" {
		return d, nil
	}
	if d != existingDigest {
		return existingDigest, fmt.Errorf("%w: shape %v", ErrSchemaMismatch, shape)
	}
	return existingDigest, nil
}
