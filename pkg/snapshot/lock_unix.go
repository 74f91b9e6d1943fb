//go:build unix

package snapshot

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"iprange/pkg/model"
)

// Lock takes an advisory exclusive flock on f for the duration of a
// snapshot write, so that a concurrent reduce-and-rewrite of the same
// snapshot file doesn't interleave with a writer. It blocks until the
// lock is available or ctx-equivalent cancellation isn't supported by
// flock, so callers needing a timeout should wrap the call in their own
// goroutine/select.
func Lock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("%w: flock: %v", model.ErrIO, err)
	}
	return nil
}

// Unlock releases a lock taken with Lock.
func Unlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("%w: funlock: %v", model.ErrIO, err)
	}
	return nil
}
