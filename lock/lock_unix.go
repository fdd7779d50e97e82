//go:build unix

package lock

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes a non-blocking exclusive flock(2) on f.
// Advisory locks are released by the kernel if the process dies, so a
// crashed writer never leaves a stale lock behind.
func flockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrContended
	}
	return err
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
