//go:build unix || linux || darwin

// flock(2) implementation for Unix platforms.
// Both methods are called with l.mu held by the exported TryLock/Unlock.
package zds

import (
	"errors"
	"syscall"
)

func (l *fileLock) tryLock() error {
	// LOCK_NB makes contention fail immediately instead of blocking, which
	// is what spec.md §4.E's AlreadyLocked contract requires.
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return ErrAlreadyLocked
	}
	return err
}

func (l *fileLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
