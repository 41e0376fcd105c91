// Package smallpool implements the fixed-chunk allocator for requests up
// to sizeclass.SMax bytes. Every request, regardless of its exact size,
// consumes one sizeclass.ChunkSize-byte chunk; chunks are never coalesced
// and are never returned to the OS.
package smallpool

import (
	"unsafe"

	"github.com/emalloc-go/emalloc/internal/arena"
	"github.com/emalloc-go/emalloc/internal/envelope"
	"github.com/emalloc-go/emalloc/internal/logx"
	"github.com/emalloc-go/emalloc/internal/osmap"
	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

// firstGrowthChunks is the chunk count of the first pool grown; every
// subsequent growth doubles it.
const firstGrowthChunks = 128

func nextPtr(chunk unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(chunk)
}

func setNextPtr(chunk, next unsafe.Pointer) {
	*(*unsafe.Pointer)(chunk) = next
}

// grow requests a new region from the OS sized (ChunkSize*128)*2^Exp bytes,
// links its chunks into a fresh free list in order, and installs it as the
// pool head. s.Head must be nil on entry (the pool is only grown on empty).
func grow(s *arena.SmallState) {
	regionSize := uintptr(sizeclass.ChunkSize) * firstGrowthChunks << s.Exp

	region, err := osmap.MapAnonymous(regionSize)
	if err != nil {
		logx.Fatal("small growth", logx.Err(err), logx.Uint64("size", uint64(regionSize)))
	}
	s.Exp++

	chunks := int(regionSize / sizeclass.ChunkSize)
	for i := 0; i < chunks; i++ {
		chunk := unsafe.Pointer(uintptr(region) + uintptr(i*sizeclass.ChunkSize))
		if i+1 < chunks {
			setNextPtr(chunk, unsafe.Pointer(uintptr(region)+uintptr((i+1)*sizeclass.ChunkSize)))
		} else {
			setNextPtr(chunk, nil)
		}
	}

	s.Head = region

	logx.Debug("small pool grew", logx.Int("exponent", int(s.Exp)), logx.Int("chunks", chunks))
}

// Allocate pops a chunk off the free list, growing the pool first if it is
// empty, and returns the envelope-stamped user pointer. The raw requested
// size is not needed beyond routing: every small allocation occupies
// exactly sizeclass.ChunkSize bytes.
func Allocate(s *arena.SmallState) unsafe.Pointer {
	if s.Head == nil {
		grow(s)
	}

	chunk := s.Head
	s.Head = nextPtr(chunk)

	return envelope.Stamp(chunk, sizeclass.ChunkSize, envelope.ClassSmall)
}

// Release pushes a to the head of the free list. There is no coalescing
// and no validation of which pool the chunk originated from beyond the
// envelope check the dispatcher already performed.
func Release(s *arena.SmallState, a envelope.Alloc) {
	setNextPtr(a.Base, s.Head)
	s.Head = a.Base
}
