// Collection store, per-document mode: one JSON file per identifier under
// docs/, no log (spec.md §4.C, SPEC_FULL.md §3 resolving Open Question 3).
// Grounded on the teacher's atomic-replace write idiom (header.go's
// writeHeader via natefinch/atomic) generalized from "one header file per
// store" to "one document file per identifier." Ordering reuses
// internal/zdx's position-tracking index (spec.md §4.C: "index exists but
// refers to per-doc file positions or identities") rather than the log
// offsets fast mode stores there, so Scan/ListIDs still honour spec.md
// §4.D's log-append-order guarantee.
package zds

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/jpl-au/zds/internal/zdx"
)

// DocStore is the per-document-file Store implementation: simpler and
// slower than CollectionStore, favouring direct inspectability of the
// collection's contents on disk (spec.md §4.C: "useful for small
// collections inspected directly with standard tools").
type DocStore struct {
	root     *Root
	name     string
	writable bool
	docsDir  string

	manifestPath string
	indexPath    string

	mu      sync.Mutex
	manifest *manifest
	idx      *zdx.Index // Entry.Offset holds insertion position, not a byte offset; Length is unused.
	nextPos  uint64
	closed   bool
}

func openDocStore(r *Root, name string, m *manifest, opts CollectionOptions, writable bool) (*DocStore, error) {
	docsDir := r.layout.docsDir(name)
	indexPath := r.layout.indexFile(name)

	idx, err := zdx.Load(indexPath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			r.log.Warnw("doc index missing, rebuilding from directory listing", "collection", name)
		case errors.Is(err, zdx.ErrCorrupt):
			if !opts.AllowRebuild {
				return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
			}
			r.log.Warnw("doc index corrupt, rebuilding from directory listing (AllowRebuild set)", "collection", name, "load_error", err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}

		rebuilt, rerr := rebuildDocIndex(docsDir)
		if rerr != nil {
			return nil, fmt.Errorf("%w: rebuild after load failure: %v", ErrCorruptIndex, rerr)
		}
		idx = rebuilt
	}

	var nextPos uint64
	idx.IterByOffset(func(_ string, e zdx.Entry) bool {
		if e.Offset+1 > nextPos {
			nextPos = e.Offset + 1
		}
		return true
	})

	return &DocStore{
		root:         r,
		name:         name,
		writable:     writable,
		docsDir:      docsDir,
		manifestPath: r.layout.manifestFile(name),
		indexPath:    indexPath,
		manifest:     m,
		idx:          idx,
		nextPos:      nextPos,
	}, nil
}

// rebuildDocIndex re-derives document order from the docs/ directory when
// no index file survives. There is no append log to replay here, so order
// is approximated from file modification time ascending. A document that
// was overwritten is placed at its last write, not at its original
// insertion position, and files with equal modification times have no
// defined relative order.
func rebuildDocIndex(docsDir string) (*zdx.Index, error) {
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		id      string
		modTime int64
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{id: strings.TrimSuffix(e.Name(), ".json"), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime < files[j].modTime })

	idx := zdx.New()
	for pos, f := range files {
		idx.Put(f.id, uint64(pos), 0)
	}
	return idx, nil
}

func (d *DocStore) guardWritable() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrInvalidState
	}
	if !d.writable {
		return fmt.Errorf("%w: collection %q opened read-only", ErrInvalidState, d.name)
	}
	return nil
}

func (d *DocStore) path(id string) string {
	return filepath.Join(d.docsDir, id+".json")
}

// Put creates or atomically replaces id's document file. Unlike fast mode
// there's no append and no stale copy left behind: the file simply becomes
// the new content (spec.md §4.C). An existing id keeps its original
// position so overwrite never reorders Scan/ListIDs output.
func (d *DocStore) Put(id string, doc map[string]any) error {
	if err := d.guardWritable(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	d.mu.Lock()
	digest := d.manifest.ShapeDigest
	strict := d.manifest.Strict
	d.mu.Unlock()

	newDigest := digest
	if strict {
		var err error
		if newDigest, err = checkShape(digest, doc); err != nil {
			return err
		}
	}

	data, err := encodeDocument(id, doc)
	if err != nil {
		return err
	}

	d.mu.Lock()
	maxRecord := d.manifest.MaxRecordBytes
	d.mu.Unlock()
	if maxRecord > 0 && len(data) > maxRecord {
		return fmt.Errorf("%w: %d bytes > max %d", ErrRecordTooLarge, len(data), maxRecord)
	}

	if err := atomic.WriteFile(d.path(id), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("zds: put %q/%q: %w", d.name, id, err)
	}

	d.mu.Lock()
	if newDigest != digest {
		d.manifest.ShapeDigest = newDigest
	}
	existing, existed := d.idx.Get(id)
	pos := existing.Offset
	if !existed {
		pos = d.nextPos
		d.nextPos++
		d.manifest.DocCount++
	}
	d.idx.Put(id, pos, 0)
	idx := d.idx
	d.mu.Unlock()

	if err := idx.Save(d.indexPath); err != nil {
		return fmt.Errorf("zds: put %q/%q: save index: %w", d.name, id, err)
	}

	return d.saveManifest()
}

// Get reads and decodes id's document file.
func (d *DocStore) Get(id string) (map[string]any, error) {
	d.mu.Lock()
	ok := d.idx.Contains(id)
	d.mu.Unlock()
	if !ok {
		return nil, ErrDocumentNotFound
	}
	data, err := os.ReadFile(d.path(id))
	if os.IsNotExist(err) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("zds: get %q/%q: %w", d.name, id, err)
	}
	return decodeDocument(data)
}

// Delete removes id's document file outright.
func (d *DocStore) Delete(id string) error {
	if err := d.guardWritable(); err != nil {
		return err
	}
	d.mu.Lock()
	ok := d.idx.Contains(id)
	d.mu.Unlock()
	if !ok {
		return ErrDocumentNotFound
	}

	if err := os.Remove(d.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("zds: delete %q/%q: %w", d.name, id, err)
	}

	d.mu.Lock()
	d.idx.Delete(id)
	d.manifest.DocCount--
	idx := d.idx
	d.mu.Unlock()

	if err := idx.Save(d.indexPath); err != nil {
		return fmt.Errorf("zds: delete %q/%q: save index: %w", d.name, id, err)
	}

	return d.saveManifest()
}

// Exists reports whether id has a document file, per the in-memory index
// populated at open and kept current by Put/Delete.
func (d *DocStore) Exists(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idx.Contains(id)
}

// Scan yields every document in insertion-position order (spec.md §4.D: "a
// finite lazy sequence in log-append order"), reading each file individually.
func (d *DocStore) Scan(opts ScanOptions) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		for _, id := range d.ListIDs() {
			data, err := os.ReadFile(d.path(id))
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				if !yield(nil, fmt.Errorf("zds: scan %q/%q: %w", d.name, id, err)) {
					return
				}
				continue
			}
			doc, err := decodeDocument(data)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !opts.matches(doc) {
				continue
			}
			if !yield(opts.project(doc), nil) {
				return
			}
		}
	}
}

// ScanRaw synthesizes a newline-delimited JSON view across every document
// file, in the same insertion-position order as Scan; per-document mode has
// no single on-disk blob to return verbatim.
func (d *DocStore) ScanRaw() ([]byte, error) {
	var buf bytes.Buffer
	for _, id := range d.ListIDs() {
		data, err := os.ReadFile(d.path(id))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("zds: scan raw %q/%q: %w", d.name, id, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Flush persists the manifest and index. Every Put/Delete already wrote its
// document file and index update durably, so there is no pending-write
// batch to drain; this exists for Store-interface symmetry with fast mode.
func (d *DocStore) Flush() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrInvalidState
	}
	idx := d.idx
	d.mu.Unlock()
	if err := idx.Save(d.indexPath); err != nil {
		return err
	}
	return d.saveManifest()
}

// RefreshMmap is a no-op: per-document mode reads files directly.
func (d *DocStore) RefreshMmap() error { return nil }

// Len returns the number of document files.
func (d *DocStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idx.Len()
}

// ListIDs returns identifiers in insertion-position order, derived from the
// doc index rather than directory-listing order.
func (d *DocStore) ListIDs() []string {
	d.mu.Lock()
	idx := d.idx
	d.mu.Unlock()

	out := make([]string, 0, idx.Len())
	idx.IterByOffset(func(id string, _ zdx.Entry) bool {
		out = append(out, id)
		return true
	})
	return out
}

// Close flushes the manifest and index one last time.
func (d *DocStore) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	writable := d.writable
	idx := d.idx
	d.mu.Unlock()

	if !writable {
		return nil
	}
	if err := idx.Save(d.indexPath); err != nil {
		return err
	}
	return d.saveManifest()
}

func (d *DocStore) saveManifest() error {
	d.mu.Lock()
	m := *d.manifest
	d.mu.Unlock()
	return m.save(d.manifestPath)
}
