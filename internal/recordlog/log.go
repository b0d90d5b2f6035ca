// Package recordlog implements the append-only newline-delimited log that
// backs a collection, plus the memory-mapped random-read path over it.
//
// Writes always go through the plain file handle (WriteAt at a tracked
// tail offset, mirroring the teacher's raw/append primitives). Reads
// prefer a read-only mmap established over the log's last-known-flushed
// length; any offset beyond that falls back to a direct ReadAt on the
// file handle, so a document is visible to Get immediately after Append
// without forcing a remap on every write. Refresh re-establishes the map
// to cover growth once the caller chooses to pay that cost (normally at
// flush time).
package recordlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/exp/mmap"
)

// Log is an append-only text log of newline-terminated records.
type Log struct {
	path string
	f    *os.File

	mu         sync.RWMutex
	tail       int64
	mr         *mmap.ReaderAt
	mappedLen  int64
}

// Open opens or creates the log file at path and establishes the initial
// memory map over its current contents.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("recordlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &Log{path: path, f: f, tail: info.Size()}
	if err := l.refreshLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Size returns the current tail offset (end of the log, including any
// appends not yet reflected in the mmap).
func (l *Log) Size() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tail
}

// Append writes data followed by a newline terminator at the current tail
// and returns the offset at which data begins. It does not fsync; callers
// batch several appends and call Sync once per flush.
func (l *Log) Append(data []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset := l.tail
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	buf[len(data)] = '\n'

	if _, err := l.f.WriteAt(buf, offset); err != nil {
		return 0, fmt.Errorf("recordlog: append: %w", err)
	}
	l.tail += int64(len(buf))
	return offset, nil
}

// Sync fsyncs the underlying file, the durability half of a flush.
func (l *Log) Sync() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.f.Sync()
}

// Refresh re-establishes the memory map to cover growth since it was last
// established. Safe to call even when nothing changed.
func (l *Log) Refresh() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshLocked()
}

func (l *Log) refreshLocked() error {
	if l.mr != nil {
		if l.mr.Len() == int(l.tail) {
			return nil
		}
		l.mr.Close()
		l.mr = nil
	}
	if l.tail == 0 {
		l.mappedLen = 0
		return nil
	}
	mr, err := mmap.Open(l.path)
	if err != nil {
		return fmt.Errorf("recordlog: mmap %s: %w", l.path, err)
	}
	l.mr = mr
	l.mappedLen = int64(mr.Len())
	return nil
}

// ReadAt returns the length bytes starting at offset. Ranges fully covered
// by the current mmap are served from it (zero-copy-ish, one allocation
// for the returned slice); ranges beyond it fall back to a direct file
// read, which is always correct since the file is append-only.
func (l *Log) ReadAt(offset int64, length int) ([]byte, error) {
	l.mu.RLock()
	mr := l.mr
	mappedLen := l.mappedLen
	l.mu.RUnlock()

	buf := make([]byte, length)
	if mr != nil && offset+int64(length) <= mappedLen {
		if _, err := mr.ReadAt(buf, offset); err != nil && err != io.EOF {
			return nil, err
		}
		return buf, nil
	}
	if _, err := l.f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// ReadAllRaw returns the entire log as a single byte buffer, the fastest
// export path for downstream processing (spec.md §4.C).
func (l *Log) ReadAllRaw() ([]byte, error) {
	size := l.Size()
	return l.readRange(0, size)
}

func (l *Log) readRange(start, end int64) ([]byte, error) {
	sr := io.NewSectionReader(l.f, start, end-start)
	return io.ReadAll(sr)
}

// ForEachLine calls fn with the offset and content (terminator excluded)
// of every line in the log, in append order. Used by zdx.Rebuild and by
// Scan. A short final line with no trailing newline is still delivered.
func (l *Log) ForEachLine(fn func(offset uint64, data []byte) error) error {
	size := l.Size()
	sr := io.NewSectionReader(l.f, 0, size)
	scanner := bufio.NewScanner(sr)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)

	offset := int64(0)
	for scanner.Scan() {
		line := scanner.Bytes()
		if err := fn(uint64(offset), line); err != nil {
			return err
		}
		offset += int64(len(line)) + 1
	}
	return scanner.Err()
}

// Close releases the mmap and file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.mr != nil {
		err = l.mr.Close()
		l.mr = nil
	}
	if cerr := l.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// MaxLineSize bounds the scanner's buffer allocation; spec.md §6
// recommends a 100 MiB ceiling on a single log line.
const MaxLineSize = 100 * 1024 * 1024
