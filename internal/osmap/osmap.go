// Package osmap is the allocator's sole boundary with the host operating
// system: it requests and releases anonymous, page-granular memory regions.
// Every sub-allocator's pool growth ultimately calls through here.
package osmap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapAnonymous reserves a contiguous region of size bytes of anonymous,
// private, read/write memory from the OS and returns its base address.
// Execute permission is deliberately not requested: the allocator never
// runs code out of its pools.
func MapAnonymous(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, fmt.Errorf("osmap: zero-size mapping requested")
	}

	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("osmap: mmap %d bytes: %w", size, err)
	}

	return unsafe.Pointer(&data[0]), nil
}

// Unmap releases a region previously returned by MapAnonymous. base and size
// must exactly match a prior mapping.
func Unmap(base unsafe.Pointer, size uintptr) error {
	if base == nil || size == 0 {
		return fmt.Errorf("osmap: invalid unmap request")
	}

	region := unsafe.Slice((*byte)(base), int(size))
	if err := unix.Munmap(region); err != nil {
		return fmt.Errorf("osmap: munmap %d bytes: %w", size, err)
	}

	return nil
}
