//go:build linux

package buffer

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// allocate backs each buffer with a memfd so the buffer carries a
// real descriptor, the same shape a dmabuf from a camera driver has.
func allocate(id uint64, size int) ([]byte, int, error) {
	fd, err := unix.MemfdCreate(fmt.Sprintf("framecoder-buf-%d", id), unix.MFD_CLOEXEC)
	if err != nil {
		return nil, -1, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("ftruncate: %w", err)
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("mmap: %w", err)
	}
	return mem, fd, nil
}

func release(mem []byte, fd int) error {
	var errs []error
	if mem != nil {
		if err := unix.Munmap(mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
	}
	if fd >= 0 {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", fd, err))
		}
	}
	return errors.Join(errs...)
}
