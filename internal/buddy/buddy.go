// Package buddy implements the medium-class binary-buddy allocator: a
// free-list table over power-of-two blocks, grown from the OS in
// geometrically larger over-mapped regions and split/coalesced on
// allocate/release.
package buddy

import (
	"unsafe"

	"github.com/emalloc-go/emalloc/internal/arena"
	"github.com/emalloc-go/emalloc/internal/envelope"
	"github.com/emalloc-go/emalloc/internal/logx"
	"github.com/emalloc-go/emalloc/internal/osmap"
	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

func nextPtr(block unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(block)
}

func setNextPtr(block, next unsafe.Pointer) {
	*(*unsafe.Pointer)(block) = next
}

// grow requests 2*2^(E0+Exp) bytes from the OS, aligns the usable region to
// a 2^(E0+Exp) boundary by discarding a leading prefix of at most one
// pool-size worth of address space, deposits the aligned block at the top
// of the table, and bumps Exp. The discarded prefix is a one-time,
// permanent, bounded leak of address space: it is never touched, so it is
// never backed by physical memory, which page-aligned mapping with explicit
// trimming could not guarantee.
func grow(s *arena.BuddyState) {
	targetExp := sizeclass.E0 + s.Exp
	blockSize := uintptr(1) << targetExp

	region, err := osmap.MapAnonymous(blockSize * 2)
	if err != nil {
		logx.Fatal("medium growth", logx.Err(err), logx.Uint64("size", uint64(blockSize*2)))
	}

	// Always advance by (blockSize - misalignment), even when region is
	// already blockSize-aligned; that lucky case discards a full
	// blockSize prefix. The 2x over-mapping guarantees a whole aligned
	// block still fits after the discard either way.
	misalignment := uintptr(region) % blockSize
	aligned := unsafe.Pointer(uintptr(region) + (blockSize - misalignment))

	s.SetHead(targetExp, aligned)
	s.Exp++

	logx.Debug("medium pool grew", logx.Int("exponent", int(targetExp)), logx.Uint64("block_size", uint64(blockSize)))
}

// findBlock returns a free block of exactly 2^target bytes, splitting a
// larger free block as needed and growing the pool (possibly more than
// once) when nothing large enough exists yet.
//
// A single growth call only ever raises the table's top index by one
// (grow's own doubling step). A cold arena, or a request whose target
// index is more than one growth ahead of the current top, therefore needs
// repeated growth until the table can reach at least target. Growing only
// once here would stamp an envelope claiming 2^target bytes over a smaller
// region: silent corruption, not an allocation failure.
func findBlock(s *arena.BuddyState, target uint) unsafe.Pointer {
	for s.Exp == 0 || target > s.MaxIndex() {
		grow(s)
	}

	found, ok := s.NextPopulated(target)
	if !ok {
		grow(s)
		found = s.MaxIndex()
	}

	block := s.Head(found)
	s.SetHead(found, nextPtr(block))

	for found > target {
		found--
		upper := unsafe.Pointer(uintptr(block) + (uintptr(1) << found))
		setNextPtr(upper, s.Head(found))
		s.SetHead(found, upper)
	}

	return block
}

// Allocate services a raw request of n bytes by finding (or splitting down
// to, or growing into) a block of sizeclass.MediumIndex(n), and returns the
// envelope-stamped user pointer.
func Allocate(s *arena.BuddyState, n uint64) unsafe.Pointer {
	target := sizeclass.MediumIndex(n)
	block := findBlock(s, target)
	return envelope.Stamp(block, uint64(1)<<target, envelope.ClassMedium)
}

// Release coalesces a as far up the buddy tree as it can, first-match on
// each level's free list with insertion-order (LIFO) tie-break, and inserts
// the resulting block at the head of its level. The top-level block
// (MaxIndex) is never coalesced upward: it has no buddy.
func Release(s *arena.BuddyState, a envelope.Alloc) {
	level := sizeclass.ExactLog2(a.PhysSize)
	block := a.Base

	for level < s.MaxIndex() {
		buddy := unsafe.Pointer(uintptr(block) ^ (uintptr(1) << level))

		if !removeIfPresent(s, level, buddy) {
			break
		}

		if uintptr(buddy) < uintptr(block) {
			block = buddy
		}
		level++
	}

	setNextPtr(block, s.Head(level))
	s.SetHead(level, block)
}

// removeIfPresent walks buddy_table[level]'s free list looking for target
// and unlinks it if found, stitching the predecessor to target's next.
func removeIfPresent(s *arena.BuddyState, level uint, target unsafe.Pointer) bool {
	head := s.Head(level)
	if head == nil {
		return false
	}
	if head == target {
		s.SetHead(level, nextPtr(target))
		return true
	}

	prev := head
	for {
		next := nextPtr(prev)
		if next == nil {
			return false
		}
		if next == target {
			setNextPtr(prev, nextPtr(target))
			return true
		}
		prev = next
	}
}
