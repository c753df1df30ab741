package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Locker guards the single live capture session across processes.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// FileLock is a Locker backed by an advisory lock file.
type FileLock struct {
	lock *flock.Flock
}

// NewFileLock prepares a lock at path, creating its parent directory.
func NewFileLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileLock{lock: flock.New(path)}, nil
}

// TryLock acquires the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire capture lock %q: %w", l.lock.Path(), err)
	}
	return locked, nil
}

// Unlock releases the lock; it is a no-op when not held.
func (l *FileLock) Unlock() error {
	if !l.lock.Locked() {
		return nil
	}
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.lock.Path()
}
