//go:build !unix

package snapshot

import "os"

// Lock is a no-op on platforms without flock; snapshot writes on these
// platforms are not protected against concurrent writers.
func Lock(f *os.File) error { return nil }

// Unlock is a no-op on platforms without flock.
func Unlock(f *os.File) error { return nil }
