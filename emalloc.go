// Package emalloc is a three-tier process-private memory allocator: a
// fixed-chunk pool for small requests, a binary-buddy allocator for medium
// requests, and direct OS mapping for large requests, unified under one
// header/footer envelope and one dispatch lock.
//
// It is the complete runtime memory provider for a program that links
// against it. Allocate and Release are its two core operations;
// AllocateZeroed and Snapshot are additional helpers built on the same
// arena.
package emalloc

import (
	"unsafe"

	"github.com/emalloc-go/emalloc/internal/arena"
	"github.com/emalloc-go/emalloc/internal/buddy"
	"github.com/emalloc-go/emalloc/internal/envelope"
	"github.com/emalloc-go/emalloc/internal/largealloc"
	"github.com/emalloc-go/emalloc/internal/logx"
	"github.com/emalloc-go/emalloc/internal/sizeclass"
	"github.com/emalloc-go/emalloc/internal/smallpool"
)

var globalArena = arena.New()

// Stats is a read-only point-in-time view of arena bookkeeping, exposed for
// external harnesses and tests; see internal/arena.Stats.
type Stats = arena.Stats

// Snapshot returns the current arena Stats. It takes the allocator lock
// like any other operation but performs no allocation and does not affect
// allocator state.
func Snapshot() Stats {
	return globalArena.Snapshot()
}

// Allocate returns a pointer to a contiguous region of at least n bytes,
// aligned to at least 8 bytes. A request of n == 0 returns nil and
// performs no OS mapping. Any other failure (the allocator has run out of
// address space the host OS is willing to grant it) terminates the
// process; Allocate itself never returns an error value because there is
// nothing a caller could usefully do with one.
func Allocate(n uintptr) unsafe.Pointer {
	if n == 0 {
		return nil
	}

	globalArena.Lock()
	defer globalArena.Unlock()

	switch sizeclass.Classify(uint64(n)) {
	case sizeclass.Small:
		return smallpool.Allocate(&globalArena.Small)
	case sizeclass.Medium:
		return buddy.Allocate(&globalArena.Buddy, uint64(n))
	default:
		return largealloc.Allocate(uint64(n))
	}
}

// AllocateZeroed behaves like Allocate but zeroes the returned region
// first. A freshly OS-mapped region (large allocations, and the portion of
// a fresh small/medium pool growth a caller lands on) is already
// zero-filled by the kernel, but a reused chunk or buddy block still
// carries whatever its previous occupant left behind, so this is not
// redundant with Allocate in general.
func AllocateZeroed(n uintptr) unsafe.Pointer {
	p := Allocate(n)
	if p == nil {
		return nil
	}

	zero(p, n)
	return p
}

func zero(p unsafe.Pointer, n uintptr) {
	buf := unsafe.Slice((*byte)(p), int(n))
	for i := range buf {
		buf[i] = 0
	}
}

// Release returns p, previously obtained from Allocate and not already
// released, to the allocator. Envelope corruption (an out-of-bounds write
// by the caller, or a double release) is detected best-effort and is
// fatal: an allocator that has lost track of its own bookkeeping cannot
// reliably service further requests.
func Release(p unsafe.Pointer) {
	if p == nil {
		return
	}

	globalArena.Lock()
	defer globalArena.Unlock()

	a, err := envelope.Verify(p)
	if err != nil {
		logx.Fatal("envelope verify", logx.Err(err))
	}

	switch a.Class {
	case envelope.ClassSmall:
		smallpool.Release(&globalArena.Small, a)
	case envelope.ClassMedium:
		buddy.Release(&globalArena.Buddy, a)
	case envelope.ClassLarge:
		largealloc.Release(a)
	}
}
