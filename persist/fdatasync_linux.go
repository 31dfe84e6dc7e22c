package persist

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync skips the metadata flush that f.Sync would also do.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
