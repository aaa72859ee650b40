// Package lock serialises reconciliation passes over one store pair across
// processes, using an advisory lock file in the data directory.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the data directory.
const FileName = ".sync.lock"

// retryDelay is how often Lock polls a held lock.
const retryDelay = 100 * time.Millisecond

// ErrLocked is returned by TryLock when another holder has the lock.
var ErrLocked = errors.New("another sync is in progress")

// PassLock is an exclusive, cross-process lock.
type PassLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock for the given data directory.
// The lock file will be created at <dataDir>/.sync.lock
func New(dataDir string) *PassLock {
	return NewAt(filepath.Join(dataDir, FileName))
}

// NewAt creates a lock using an explicit lock file path.
func NewAt(lockPath string) *PassLock {
	return &PassLock{path: lockPath, flock: flock.New(lockPath)}
}

// TryLock acquires the lock without blocking.
// It returns ErrLocked if the lock is held elsewhere.
func (l *PassLock) TryLock() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return ErrLocked
	}
	l.locked = true
	return nil
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *PassLock) Lock(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return ErrLocked
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked PassLock.
func (l *PassLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *PassLock) Path() string {
	return l.path
}

// IsLocked returns true if this PassLock holds the lock.
func (l *PassLock) IsLocked() bool {
	return l.locked
}

func (l *PassLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}
