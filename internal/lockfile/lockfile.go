// Package lockfile guards against a second supervisor instance running
// against the same well-known path (spec §6), using gofrs/flock for
// cross-platform advisory locking the way the retrieved pack's daemon
// implementations do it.
package lockfile

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/taskmaster/taskmaster/internal/errs"
)

const DefaultPath = "/var/lock/taskmaster.lock"

// Lock is a held advisory lock. Release is idempotent: releasing an
// already-absent lockfile is not an error (spec §9 "global state").
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire takes an exclusive, non-blocking lock on path. The lock's
// presence (held by another process) on startup is a hard error per spec §6.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrLockAcquisition, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lock held by another process", errs.ErrLockAcquisition)
	}
	return &Lock{fl: fl, path: path}, nil
}

// Release unlocks and removes the lockfile. Safe to call more than once,
// including on a nil Lock (e.g. a panic unwinding before Acquire succeeded).
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
