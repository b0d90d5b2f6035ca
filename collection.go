// Collection store, fast mode: log + mmap + binary index (spec.md §4.D).
// Generalized from the teacher's set.go (validate-then-write, Batch) and
// db.go's blockWrite/blockRead locking pattern, adapted from folio's
// single in-file sorted/sparse index to the split log+ZDX design.
package zds

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/jpl-au/zds/internal/recordlog"
	"github.com/jpl-au/zds/internal/zdx"
)

// Predicate matches a single top-level document field against a literal
// value during Scan.
type Predicate = recordlog.Predicate

// ScanOptions configures Scan's optional projection and predicate.
type ScanOptions = recordlog.ScanOptions

// Store is the shared CRUD contract spec.md §4.D defines, implemented by
// both storage modes as distinct types (spec.md §9: "exposed as distinct
// types sharing the operation contract, not through runtime type dispatch
// internal to a single object").
type Store interface {
	Put(id string, doc map[string]any) error
	Get(id string) (map[string]any, error)
	Delete(id string) error
	Exists(id string) bool
	Scan(opts ScanOptions) iter.Seq2[map[string]any, error]
	ScanRaw() ([]byte, error)
	Flush() error
	RefreshMmap() error
	Len() int
	ListIDs() []string
	Close() error
}

// CollectionOptions configures a collection at vend time. Strict (or
// Config.Strict) and Config.MaxRecordBytes are consulted only when the
// collection is first created; a reopen uses the values recorded in its
// manifest. Mode must match the recorded mode on every open, and
// AllowRebuild and the batching thresholds in Config apply to each open.
type CollectionOptions struct {
	Strict bool
	Mode   StoreMode
	Config Config

	// AllowRebuild opts into silently rebuilding a present-but-corrupt
	// index from the log (spec.md §4.B/§8: corruption is fatal unless the
	// caller explicitly asks for recovery). A missing index always
	// rebuilds regardless of this flag — losing index.bin outright is the
	// ordinary crash-recovery path, not a corruption signal.
	AllowRebuild bool
}

// CollectionStore is the fast-mode (log + mmap + binary index) Store
// implementation.
type CollectionStore struct {
	root     *Root
	name     string
	writable bool
	cfg      Config

	log *recordlog.Log
	idx *zdx.Index

	manifestPath string
	indexPath    string

	mu             sync.Mutex
	manifest       *manifest
	pendingOps     int
	pendingBytes   int64
	firstPendingAt time.Time
	closed         bool
}

func openCollectionStore(r *Root, name string, m *manifest, opts CollectionOptions, writable bool) (*CollectionStore, error) {
	cfg := opts.Config.withDefaults()
	if m.MaxRecordBytes > 0 {
		cfg.MaxRecordBytes = m.MaxRecordBytes
	}

	logPath := r.layout.logFile(name)
	l, err := recordlog.Open(logPath)
	if err != nil {
		return nil, err
	}

	indexPath := r.layout.indexFile(name)
	idx, err := zdx.Load(indexPath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			r.log.Warnw("index missing, rebuilding from log", "collection", name)
		case errors.Is(err, zdx.ErrCorrupt):
			if !opts.AllowRebuild {
				l.Close()
				return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
			}
			r.log.Warnw("index corrupt, rebuilding from log (AllowRebuild set)", "collection", name, "load_error", err)
		default:
			l.Close()
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}

		rebuilt, rerr := zdx.Rebuild(l, extractID)
		if rerr != nil {
			l.Close()
			return nil, fmt.Errorf("%w: rebuild after load failure: %v", ErrCorruptIndex, rerr)
		}
		idx = rebuilt
	}

	cs := &CollectionStore{
		root:         r,
		name:         name,
		writable:     writable,
		cfg:          cfg,
		log:          l,
		idx:          idx,
		manifestPath: r.layout.manifestFile(name),
		indexPath:    indexPath,
		manifest:     m,
	}
	return cs, nil
}

func (c *CollectionStore) guardWritable() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrInvalidState
	}
	if !c.writable {
		return fmt.Errorf("%w: collection %q opened read-only", ErrInvalidState, c.name)
	}
	return nil
}

// Put creates or overwrites a document. The key argument is authoritative
// over any "_id" already present in doc (SPEC_FULL.md §3). The new record
// is always appended at the tail; a prior record for the same id becomes
// unreachable via the index but is left untouched in the log (spec.md
// invariant 3).
func (c *CollectionStore) Put(id string, doc map[string]any) error {
	if err := c.guardWritable(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	c.mu.Lock()
	digest := c.manifest.ShapeDigest
	strict := c.manifest.Strict
	c.mu.Unlock()

	newDigest := digest
	if strict {
		var err error
		if newDigest, err = checkShape(digest, doc); err != nil {
			return err
		}
		if newDigest != digest {
			c.mu.Lock()
			c.manifest.ShapeDigest = newDigest
			c.mu.Unlock()
		}
	}

	data, err := encodeDocument(id, doc)
	if err != nil {
		return err
	}
	if len(data) > c.cfg.MaxRecordBytes {
		return fmt.Errorf("%w: %d bytes > max %d", ErrRecordTooLarge, len(data), c.cfg.MaxRecordBytes)
	}

	offset, err := c.log.Append(data)
	if err != nil {
		return err
	}

	_, existed := c.idx.Get(id)
	c.idx.Put(id, uint64(offset), uint32(len(data)))

	c.mu.Lock()
	if newDigest != digest {
		c.manifest.ShapeDigest = newDigest
	}
	if !existed {
		c.manifest.DocCount++
	}
	c.notePendingLocked(len(data))
	needsFlush := c.needsFlushLocked()
	c.mu.Unlock()

	if needsFlush {
		return c.Flush()
	}
	return nil
}

// Get returns the document whose "_id" equals id.
func (c *CollectionStore) Get(id string) (map[string]any, error) {
	entry, ok := c.idx.Get(id)
	if !ok {
		return nil, ErrDocumentNotFound
	}
	data, err := c.log.ReadAt(int64(entry.Offset), int(entry.Length))
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

// Delete removes id's index entry. The log is left untouched (spec.md
// invariant 4; SPEC_FULL.md §3 resolves Open Question 2 against writing a
// tombstone record).
func (c *CollectionStore) Delete(id string) error {
	if err := c.guardWritable(); err != nil {
		return err
	}
	if !c.idx.Contains(id) {
		return ErrDocumentNotFound
	}
	c.idx.Delete(id)

	c.mu.Lock()
	c.manifest.DocCount--
	c.notePendingLocked(0)
	needsFlush := c.needsFlushLocked()
	c.mu.Unlock()

	if needsFlush {
		return c.Flush()
	}
	return nil
}

// Exists reports whether id is currently live. Never fails.
func (c *CollectionStore) Exists(id string) bool {
	return c.idx.Contains(id)
}

// Scan yields every live document in log-append order, after projection
// and predicate filtering.
func (c *CollectionStore) Scan(opts ScanOptions) iter.Seq2[map[string]any, error] {
	isLive := func(offset uint64, id string) bool {
		e, ok := c.idx.Get(id)
		return ok && e.Offset == offset
	}
	return recordlog.Scan(c.log, opts, isLive)
}

// ScanRaw returns the entire log as a single byte buffer.
func (c *CollectionStore) ScanRaw() ([]byte, error) {
	return c.log.ReadAllRaw()
}

// Flush fsyncs the log and atomically persists the index and manifest.
// Called automatically once a batching threshold is crossed, and always
// at Close.
func (c *CollectionStore) Flush() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.mu.Unlock()

	if err := c.log.Sync(); err != nil {
		return fmt.Errorf("zds: flush %q: sync log: %w", c.name, err)
	}
	if err := c.idx.Save(c.indexPath); err != nil {
		return fmt.Errorf("zds: flush %q: save index: %w", c.name, err)
	}
	if err := c.log.Refresh(); err != nil {
		return fmt.Errorf("zds: flush %q: refresh mmap: %w", c.name, err)
	}

	c.mu.Lock()
	c.manifest.DocCount = c.idx.Len()
	m := *c.manifest
	c.pendingOps = 0
	c.pendingBytes = 0
	c.firstPendingAt = time.Time{}
	c.mu.Unlock()

	if err := m.save(c.manifestPath); err != nil {
		return fmt.Errorf("zds: flush %q: save manifest: %w", c.name, err)
	}
	c.root.log.Infow("flushed collection", "collection", c.name, "doc_count", m.DocCount)
	return nil
}

// RefreshMmap re-maps the log to cover any growth from appends made since
// the map was last established.
func (c *CollectionStore) RefreshMmap() error {
	return c.log.Refresh()
}

// Len returns the number of live identifiers.
func (c *CollectionStore) Len() int {
	return c.idx.Len()
}

// ListIDs returns a snapshot of current identifiers.
func (c *CollectionStore) ListIDs() []string {
	return c.idx.IDs()
}

// Close flushes (if writable) and releases the log's file/mmap handles.
func (c *CollectionStore) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	writable := c.writable
	c.mu.Unlock()

	if writable {
		if err := c.flushLocked(); err != nil {
			return err
		}
	}
	return c.log.Close()
}

// flushLocked performs the flush body without re-checking closed, used
// only from Close after closed has already been set so Flush's own guard
// doesn't reject it.
func (c *CollectionStore) flushLocked() error {
	if err := c.log.Sync(); err != nil {
		return fmt.Errorf("zds: flush %q: sync log: %w", c.name, err)
	}
	if err := c.idx.Save(c.indexPath); err != nil {
		return fmt.Errorf("zds: flush %q: save index: %w", c.name, err)
	}
	c.mu.Lock()
	c.manifest.DocCount = c.idx.Len()
	m := *c.manifest
	c.mu.Unlock()
	return m.save(c.manifestPath)
}

func (c *CollectionStore) notePendingLocked(dataLen int) {
	c.pendingOps++
	c.pendingBytes += int64(dataLen)
	if c.firstPendingAt.IsZero() {
		c.firstPendingAt = time.Now()
	}
}

func (c *CollectionStore) needsFlushLocked() bool {
	if c.pendingOps >= c.cfg.MaxPendingOps {
		return true
	}
	if c.pendingBytes >= c.cfg.MaxPendingBytes {
		return true
	}
	if !c.firstPendingAt.IsZero() && time.Since(c.firstPendingAt) >= c.cfg.FlushInterval {
		return true
	}
	return false
}
