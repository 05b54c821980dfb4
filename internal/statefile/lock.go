// Package statefile implements pcapdb's two on-disk process-state
// artifacts (§6.6): the single-writer lockfile that keeps two capture
// processes from running at once, and the periodic status file a running
// process writes for external monitoring. It is the Go rendering of
// original_source indexer/pcapdb.c's lockfile handling and
// indexer/pcapdb.h's STATUS_PATH/STATUS_PERIOD constants.
package statefile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultLockPath matches LOCK_FILE_PATH.
const DefaultLockPath = "/var/lock/capture"

// ErrLocked is returned by AcquireLock when another process already holds
// the lock — pcapdb.c's "Another capture process is still in full
// operation" check.
var ErrLocked = errors.New("statefile: another capture process is already running")

// Lock is an acquired advisory lock on a lockfile.
type Lock struct {
	f *os.File
}

// AcquireLock opens (creating if necessary) path and takes an exclusive,
// non-blocking flock on it, failing with ErrLocked if another process
// already holds it.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("statefile: open lockfile %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("statefile: flock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lockfile. pcapdb_shutdown releases this
// lock only after every capture interface has stopped and most memory
// has been freed, signaling that a new capture process may now start; a
// caller here should wait for the equivalent point in its own shutdown
// sequence before calling Release.
func (l *Lock) Release() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
