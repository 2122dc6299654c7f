package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DaemonLockName is the single-instance lock inside the data directory.
const DaemonLockName = "daemon.lock"

// InstanceLock guarantees a single running daemon per data directory.
// The kernel drops the lock when the holder exits, so a crashed daemon
// never blocks its successor.
type InstanceLock struct {
	lock *flock.Flock
}

// NewInstanceLock creates the lock for a data directory.
func NewInstanceLock(dataDir string) *InstanceLock {
	return &InstanceLock{lock: flock.New(filepath.Join(dataDir, DaemonLockName))}
}

// TryAcquire takes the lock without blocking. It returns false when
// another process holds it.
func (l *InstanceLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0700); err != nil {
		return false, fmt.Errorf("failed to create data directory: %w", err)
	}
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", l.lock.Path(), err)
	}
	return locked, nil
}

// Release drops the lock if held.
func (l *InstanceLock) Release() error {
	return l.lock.Unlock()
}

// HeldElsewhere reports whether another process currently holds the lock.
func (l *InstanceLock) HeldElsewhere() bool {
	locked, err := l.TryAcquire()
	if err != nil {
		return false
	}
	if locked {
		_ = l.lock.Unlock()
		return false
	}
	return true
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.lock.Path()
}
