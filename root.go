// Root directory ownership, multi-process safety, and collection vending
// (spec.md §4.E). Generalized from the teacher's db.go Open/Close and
// state-machine (StateAll/StateRead/StateNone/StateClosed) — folio assumes
// one file per process, so this adds the process-wide memoization table
// and the split into many independently-lockable collections that a root
// requires.
package zds

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	json "github.com/goccy/go-json"
)

// Mode selects whether a Root may append/mutate or only read.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// registryKey identifies a process-wide Root instance (spec.md §4.E step 4).
type registryKey struct {
	path string
	mode Mode
}

var (
	registryMu sync.Mutex
	registry   = map[registryKey]*Root{}
)

// Root owns the directory-level resources for a document store: the
// advisory writer lock (if opened read-write), the vended collection
// stores, and the process-wide memoization entry.
type Root struct {
	path   string
	mode   Mode
	layout *layout
	log    *zap.SugaredLogger

	lockFile *os.File
	lock     *fileLock

	mu      sync.Mutex
	closed  bool
	stores  map[string]Store
	modes   map[string]StoreMode
	meta    *rootMeta
}

// Open canonicalizes path and opens (or creates, in ReadWrite mode) a root
// directory. Subsequent opens with the same canonical path and mode return
// the same in-process instance (spec.md §4.E step 4). A nil logger is
// replaced with a no-op logger.
func Open(path string, mode Mode, logger *zap.SugaredLogger) (*Root, error) {
	if logger == nil {
		logger = newNopLogger()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	canonical := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		canonical = resolved
	}

	key := registryKey{path: canonical, mode: mode}

	registryMu.Lock()
	defer registryMu.Unlock()
	if existing, ok := registry[key]; ok {
		return existing, nil
	}

	lyt := newLayout(canonical)

	switch mode {
	case ReadWrite:
		if err := lyt.initRoot(); err != nil {
			return nil, err
		}
	case ReadOnly:
		if err := lyt.validateRoot(); err != nil {
			return nil, err
		}
	}

	r := &Root{
		path:   canonical,
		mode:   mode,
		layout: lyt,
		log:    logger,
		stores: make(map[string]Store),
		modes:  make(map[string]StoreMode),
	}

	if meta, err := loadRootMeta(lyt.rootMetaFile()); err == nil {
		r.meta = meta
	} else {
		r.meta = &rootMeta{Name: filepath.Base(canonical), CreatedAt: time.Now().UTC()}
	}

	if mode == ReadWrite {
		lf, err := os.OpenFile(lyt.lockFile(), os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("%w: open lock file: %v", ErrInvalidPath, err)
		}
		r.lockFile = lf
		r.lock = &fileLock{f: lf}

		if err := r.lock.TryLock(); err != nil {
			lf.Close()
			return nil, err
		}
		if err := r.writeLockDescriptor(); err != nil {
			r.lock.Unlock()
			lf.Close()
			return nil, err
		}
		logger.Infow("acquired root writer lock", "path", canonical)
	}

	registry[key] = r
	return r, nil
}

// lockDescriptor is the diagnostic payload written into .write.lock.
type lockDescriptor struct {
	PID         int       `json:"pid"`
	Host        string    `json:"host"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

func (r *Root) writeLockDescriptor() error {
	host, _ := os.Hostname()
	desc := lockDescriptor{PID: os.Getpid(), Host: host, AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	if err := r.lockFile.Truncate(0); err != nil {
		return err
	}
	if _, err := r.lockFile.WriteAt(data, 0); err != nil {
		return err
	}
	return r.lockFile.Sync()
}

// Collection lazily creates (if needed) and opens the named collection,
// sharing this root's lock lifetime. A store vended from a ReadOnly root
// never appends and never takes the writer lock; one vended from a
// ReadWrite root holds the root lock for its lifetime (spec.md §4.D).
func (r *Root) Collection(name string, opts CollectionOptions) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrInvalidState
	}
	if !nameOK(name, 255) {
		return nil, fmt.Errorf("%w: collection name %q", ErrInvalidPath, name)
	}
	if existing, ok := r.stores[name]; ok {
		return existing, nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeLog
	}

	writable := r.mode == ReadWrite
	manifestPath := r.layout.manifestFile(name)
	m, err := loadManifest(manifestPath)
	if os.IsNotExist(err) {
		if !writable {
			return nil, fmt.Errorf("%w: collection %q does not exist", ErrCollectionNotFound, name)
		}
		if err := r.layout.initCollection(name, mode == ModeDocFile); err != nil {
			return nil, err
		}
		maxRecord := opts.Config.withDefaults().MaxRecordBytes
		m = newManifest(name, opts.Strict || opts.Config.Strict, mode, maxRecord)
		if err := m.save(manifestPath); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	if m.Mode != mode {
		return nil, fmt.Errorf("%w: collection %q was created in %q mode, cannot open as %q", ErrInvalidState, name, m.Mode, mode)
	}

	var store Store
	switch m.Mode {
	case ModeDocFile:
		store, err = openDocStore(r, name, m, opts, writable)
	default:
		store, err = openCollectionStore(r, name, m, opts, writable)
	}
	if err != nil {
		return nil, err
	}

	r.stores[name] = store
	r.modes[name] = m.Mode
	return store, nil
}

// ListCollections lists the immediate subdirectories of collections/.
func (r *Root) ListCollections() ([]string, error) {
	return r.layout.listCollections()
}

// CollectionExists probes for the collection's subtree.
func (r *Root) CollectionExists(name string) bool {
	return r.layout.collectionExists(name)
}

// Close flushes every vended writer store, releases the advisory lock,
// removes the lock-file descriptor on clean shutdown, and evicts the
// instance from the process-wide table. After Close, Collection fails with
// ErrInvalidState, as do Put, Delete and Flush on any store vended from
// this root. Read methods are not guarded: ListCollections and
// CollectionExists still probe the directory, Exists, Len and ListIDs
// answer from the store's in-memory index, per-document Get and Scan still
// read the document files, and fast-mode Get, Scan and ScanRaw fail with
// the closed log file's error rather than ErrInvalidState.
func (r *Root) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	stores := r.stores
	modes := r.modes
	r.stores = nil
	r.mu.Unlock()

	var errs error

	if r.mode == ReadWrite {
		summaries := make(map[string]collectionSummary, len(stores))
		for name, s := range stores {
			summaries[name] = collectionSummary{DocCount: s.Len(), Mode: modes[name]}
		}
		r.meta.Collections = summaries
		if err := r.meta.save(r.layout.rootMetaFile()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save root metadata: %w", err))
		}
	}

	for name, s := range stores {
		if err := s.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close collection %q: %w", name, err))
		}
	}

	if r.mode == ReadWrite && r.lock != nil {
		if err := r.lock.Unlock(); err != nil {
			errs = multierr.Append(errs, err)
		}
		r.lock.setFile(nil)
		if r.lockFile != nil {
			if err := r.lockFile.Close(); err != nil {
				errs = multierr.Append(errs, err)
			}
			os.Remove(r.layout.lockFile())
		}
	}

	registryMu.Lock()
	delete(registry, registryKey{path: r.path, mode: r.mode})
	registryMu.Unlock()

	r.log.Infow("closed root", "path", r.path)
	return errs
}
