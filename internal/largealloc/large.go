// Package largealloc implements the direct-mapping path for requests at or
// above sizeclass.LMin: each allocation owns its own OS mapping for its
// entire lifetime, with no shared arena state.
package largealloc

import (
	"unsafe"

	"github.com/emalloc-go/emalloc/internal/envelope"
	"github.com/emalloc-go/emalloc/internal/logx"
	"github.com/emalloc-go/emalloc/internal/osmap"
	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

// Allocate maps n+32 bytes anonymously and returns the envelope-stamped
// user pointer. A mapping failure is fatal.
func Allocate(n uint64) unsafe.Pointer {
	physSize := sizeclass.LargePhysicalSize(n)

	base, err := osmap.MapAnonymous(uintptr(physSize))
	if err != nil {
		logx.Fatal("large alloc", logx.Err(err), logx.Uint64("size", physSize))
	}

	return envelope.Stamp(base, physSize, envelope.ClassLarge)
}

// Release unmaps the allocation's entire envelope-reported region, fully
// returning it to the OS. An unmap failure is fatal.
func Release(a envelope.Alloc) {
	if err := osmap.Unmap(a.Base, uintptr(a.PhysSize)); err != nil {
		logx.Fatal("large free", logx.Err(err), logx.Uint64("size", a.PhysSize))
	}
}
