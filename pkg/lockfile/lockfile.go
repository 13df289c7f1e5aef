// Package lockfile implements a cross-process advisory lock scoped to a
// file. The lock is a sibling file named ".lock.<basename>" created with
// exclusive-create semantics; whoever manages to create it holds the lock.
package lockfile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultAttempts is the default number of acquisition tries.
	DefaultAttempts = 10
	// DefaultSleep is the default pause between acquisition tries.
	DefaultSleep = 100 * time.Millisecond
)

// Lock is an advisory lock for the file at Target. Two locks for the same
// target serialize; locks for different targets are independent.
type Lock struct {
	path     string
	attempts int
	sleep    time.Duration
}

// New returns a lock guarding target. attempts and sleep control the
// acquisition retry loop; non-positive values select the defaults.
func New(target string, attempts int, sleep time.Duration) *Lock {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if sleep <= 0 {
		sleep = DefaultSleep
	}
	dir, base := filepath.Split(target)
	return &Lock{
		path:     filepath.Join(dir, ".lock."+base),
		attempts: attempts,
		sleep:    sleep,
	}
}

// Path returns the location of the lock file.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock, retrying up to the configured number of attempts.
// On success it returns a release function that must be called on every
// exit path; releasing deletes the lock file.
func (l *Lock) Acquire() (func() error, error) {
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			_ = f.Close()
			return l.release, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "creating lock file %s", l.path)
		}
		lastErr = err
		time.Sleep(l.sleep)
	}
	return nil, errors.Wrapf(lastErr, "lock %s still held after %d attempts", l.path, l.attempts)
}

func (l *Lock) release() error {
	if err := os.Remove(l.path); err != nil {
		return errors.Wrapf(err, "removing lock file %s", l.path)
	}
	return nil
}
