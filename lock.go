// OS-level file locking for cross-process root ownership.
//
// fileLock wraps flock(2) / LockFileEx with a mutex that guards the file
// handle's lifetime, adapted from the teacher's lock.go. The mutex is held
// for the entire duration of the flock syscall so that Fd() cannot race
// with Close() on the same *os.File.
//
// Only exclusive locking is needed: spec.md §4.E says a read-only root
// never takes the lock at all, so there is no shared-lock mode to model
// (the teacher's fileLock distinguished LockShared/LockExclusive because
// folio lets any handle block-read under a shared flock; this store's
// read-only handles simply never call into fileLock).
//
// Callers use setFile(nil) before closing the underlying file. This blocks
// until any in-flight flock completes, then makes subsequent Lock/Unlock
// calls no-ops. After reopening, setFile(f) restores normal operation.
package zds

import (
	"os"
	"sync"
)

// fileLock coordinates OS-level file locks with safe handle teardown.
// The mu field serialises flock syscalls against setFile so that a
// concurrent Close cannot invalidate the fd mid-syscall.
type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// TryLock attempts to acquire the exclusive flock without blocking.
// Returns ErrAlreadyLocked if another process or handle holds it.
func (l *fileLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.tryLock()
}

// Unlock releases the flock. Returns nil immediately if the handle
// has been cleared via setFile(nil).
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight flock (blocks until the mutex is available) and disables
// further locking. Used by Close before closing the fd.
func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
