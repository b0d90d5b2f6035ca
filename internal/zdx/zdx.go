// Package zdx implements the binary offset index ("ZDX") that sits beside
// a collection's append-only log. It maps a document identifier to the
// (offset, length) of its most recent record in the log, so lookups never
// need to scan the log itself.
//
// On-disk layout (all little-endian), magic "ZDSI", current version 1:
//
//	header (16 bytes):
//	  magic[4]   = 'Z','D','S','I'
//	  version: u32 = 1
//	  count:   u64
//
//	entry * count (variable):
//	  id_len:  u16
//	  id:      [id_len]byte   // UTF-8
//	  offset:  u64
//	  length:  u32
//
// Entries are written sorted ascending by offset so a full-file read
// naturally streams in log-append order, which is what sequential
// consumers of the index (compaction tooling, prefetchers) want.
package zdx

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
)

const (
	magic         = "ZDSI"
	version       = uint32(1)
	headerSize    = 16
	maxEntryIDLen = 1<<16 - 1
)

// Entry is a single index record: the byte range of one document's most
// recent line in the log.
type Entry struct {
	Offset uint64
	Length uint32
}

// Index is the in-memory id -> (offset, length) map. Each method takes the
// index's own RWMutex, so single calls are safe from concurrent goroutines;
// a sequence of calls (such as Get followed by Put) is not atomic, and
// callers that need one serialize it themselves.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
	bloom   *Bloom
}

// New returns an empty index with a bloom filter sized for the common case.
func New() *Index {
	return &Index{
		entries: make(map[string]Entry),
		bloom:   NewBloom(),
	}
}

// Get returns the entry for id, or false if absent. The bloom filter is
// consulted first, so most misses never touch the map; a bloom false
// positive or a deleted id still falls through to the map lookup.
func (x *Index) Get(id string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.bloom != nil && !x.bloom.Contains(id) {
		return Entry{}, false
	}
	e, ok := x.entries[id]
	return e, ok
}

// Contains reports whether id is present.
func (x *Index) Contains(id string) bool {
	_, ok := x.Get(id)
	return ok
}

// Put inserts or overwrites the entry for id.
func (x *Index) Put(id string, offset uint64, length uint32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[id] = Entry{Offset: offset, Length: length}
	if x.bloom != nil {
		x.bloom.Add(id)
	}
}

// Delete removes the entry for id, if present.
func (x *Index) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, id)
	// Bloom filters don't support removal; a stale positive just costs one
	// extra map miss, which Get already handles correctly.
}

// Len returns the number of live identifiers.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// IDs returns a snapshot of all live identifiers, in no particular order.
func (x *Index) IDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.entries))
	for id := range x.entries {
		out = append(out, id)
	}
	return out
}

// IterByOffset calls fn for every entry in ascending offset order. Iteration
// stops early if fn returns false.
func (x *Index) IterByOffset(fn func(id string, e Entry) bool) {
	x.mu.RLock()
	type kv struct {
		id string
		e  Entry
	}
	snapshot := make([]kv, 0, len(x.entries))
	for id, e := range x.entries {
		snapshot = append(snapshot, kv{id, e})
	}
	x.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].e.Offset < snapshot[j].e.Offset })
	for _, p := range snapshot {
		if !fn(p.id, p.e) {
			return
		}
	}
}

// Load reads a ZDX file from path into a fresh Index. Failure modes: a
// missing file is ErrNotExist (callers fall back to Rebuild per spec.md
// §4.B); a present-but-malformed file returns a wrapped error so callers
// can distinguish "missing, safe to rebuild" from "corrupt, must opt in".
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 256*1024)

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(hdr[0:4], []byte(magic)) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	gotVersion := binary.LittleEndian.Uint32(hdr[4:8])
	if gotVersion != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, gotVersion)
	}
	count := binary.LittleEndian.Uint64(hdr[8:16])

	idx := New()
	for i := uint64(0); i < count; i++ {
		var idLenBuf [2]byte
		if _, err := io.ReadFull(r, idLenBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d id_len: %v", ErrCorrupt, i, err)
		}
		idLen := binary.LittleEndian.Uint16(idLenBuf[:])

		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, fmt.Errorf("%w: entry %d id: %v", ErrCorrupt, i, err)
		}

		var rest [12]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d offset/length: %v", ErrCorrupt, i, err)
		}
		offset := binary.LittleEndian.Uint64(rest[0:8])
		length := binary.LittleEndian.Uint32(rest[8:12])

		idx.entries[string(idBuf)] = Entry{Offset: offset, Length: length}
		idx.bloom.Add(string(idBuf))
	}

	return idx, nil
}

// Save writes the index to path via a temp file and atomic rename, so a
// crash mid-write never leaves a partially-overwritten index.bin behind.
// Entries are emitted sorted ascending by offset per the wire format.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	type kv struct {
		id string
		e  Entry
	}
	snapshot := make([]kv, 0, len(x.entries))
	for id, e := range x.entries {
		if len(id) > maxEntryIDLen {
			x.mu.RUnlock()
			return fmt.Errorf("%w: id %q exceeds %d bytes", ErrCorrupt, id, maxEntryIDLen)
		}
		snapshot = append(snapshot, kv{id, e})
	}
	x.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].e.Offset < snapshot[j].e.Offset })

	var buf bytes.Buffer
	buf.Grow(headerSize + len(snapshot)*32)

	var hdr [headerSize]byte
	copy(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], version)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(snapshot)))
	buf.Write(hdr[:])

	for _, p := range snapshot {
		var idLen [2]byte
		binary.LittleEndian.PutUint16(idLen[:], uint16(len(p.id)))
		buf.Write(idLen[:])
		buf.WriteString(p.id)

		var rest [12]byte
		binary.LittleEndian.PutUint64(rest[0:8], p.e.Offset)
		binary.LittleEndian.PutUint32(rest[8:12], p.e.Length)
		buf.Write(rest[:])
	}

	return atomic.WriteFile(path, bytes.NewReader(buf.Bytes()))
}

// LineLocator locates the document identifier embedded in a log line.
// Implemented by the log reader so Rebuild can stay decoupled from the
// recordlog package (avoids an import cycle, since recordlog never needs
// to know about the index's binary format).
type LineLocator interface {
	// ForEachLine calls fn with the (offset, length-excluding-terminator)
	// and raw bytes of every line in the log, in append order.
	ForEachLine(fn func(offset uint64, data []byte) error) error
}

// Rebuild scans the log sequentially via src, re-deriving the index from
// scratch. extractID parses a line's JSON object and returns its "_id"
// field; a line that fails to parse or has no _id is skipped (the
// conservative choice: a malformed trailing record is presumed to be the
// result of an interrupted write, not evidence that should abort rebuild).
// On duplicate identifiers, the last occurrence in the log wins, matching
// the overwrite-relocates-to-tail semantics documented in SPEC_FULL.md §3.
func Rebuild(src LineLocator, extractID func([]byte) (string, bool)) (*Index, error) {
	idx := New()
	err := src.ForEachLine(func(offset uint64, data []byte) error {
		id, ok := extractID(data)
		if !ok {
			return nil
		}
		idx.Put(id, offset, uint32(len(data)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}
