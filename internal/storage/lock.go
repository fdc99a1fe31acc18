package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the run lock
var ErrLocked = errors.New("another painscout run is in progress")

// RunLock keeps overlapping scheduled runs from paying for the same signals
// twice. Row-level conditional updates already keep concurrent runs correct;
// the lock only saves provider spend.
type RunLock struct {
	lock *flock.Flock
}

// LockPath is the lock file that sits next to the database
func LockPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "run.lock")
}

// AcquireRunLock takes the run lock for the database at dbPath without
// blocking. Release it with Release (use defer).
func AcquireRunLock(dbPath string) (*RunLock, error) {
	path := LockPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
	}
	return &RunLock{lock: l}, nil
}

// Release unlocks the run lock. The lock file itself is left in place.
func (r *RunLock) Release() error {
	if r == nil || r.lock == nil {
		return nil
	}
	if err := r.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
