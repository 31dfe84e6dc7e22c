//go:build unix

package persist

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// viewFile maps the file read-only and passes the mapping to fn. The mapping
// is released when fn returns.
func viewFile(path string, fn func(raw []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	size := st.Size()
	if size == 0 {
		return fn(nil)
	}
	if int64(int(size)) != size {
		return fmt.Errorf("%s: %d bytes does not fit in memory", path, size)
	}

	m, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", path, err)
	}
	defer unix.Munmap(m)
	if err := unix.Madvise(m, unix.MADV_SEQUENTIAL); err != nil && err != syscall.ENOSYS {
		return fmt.Errorf("madvise %s: %w", path, err)
	}
	return fn(m)
}
