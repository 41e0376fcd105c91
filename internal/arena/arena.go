// Package arena holds the process-wide allocator state: the small pool's
// free-list head, the buddy free-list table, and the growth exponents that
// drive small/medium pool expansion. It is a singleton guarded by a single
// mutex: the dispatcher acquires it once per Allocate/Release call and
// every sub-allocator mutates the state it's handed while that lock is
// held. No sub-allocator keeps its own lock.
package arena

import (
	"sync"
	"unsafe"

	"github.com/bits-and-blooms/bitset"

	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

// SmallState is the small chunk pool's free-list head and the exponent
// used to size its next OS-backed growth.
type SmallState struct {
	Head unsafe.Pointer
	Exp  uint
}

// BuddyState is the binary-buddy free-list table and the exponent used to
// size the next medium pool growth. Once every medium allocation has been
// released, each grown pool's whole block is back at its own entry E0+g
// (g = 0..Exp-1), the newest at E0+Exp-1; mid-life, splits can populate any
// lower entry.
type BuddyState struct {
	table     [sizeclass.T]unsafe.Pointer
	occupancy *bitset.BitSet
	Exp       uint
}

// Head returns the current free-list head for buddy_table[i].
func (b *BuddyState) Head(i uint) unsafe.Pointer {
	return b.table[i]
}

// SetHead updates buddy_table[i]'s free-list head and keeps the occupancy
// bitset in sync so that the populated-list count and the next-non-empty
// search never have to scan the table.
func (b *BuddyState) SetHead(i uint, p unsafe.Pointer) {
	b.table[i] = p
	if p == nil {
		b.occupancy.Clear(i)
	} else {
		b.occupancy.Set(i)
	}
}

// NextPopulated returns the smallest index >= from whose free list is
// non-empty, answered from the occupancy bitset rather than a table walk.
func (b *BuddyState) NextPopulated(from uint) (uint, bool) {
	return b.occupancy.NextSet(from)
}

// MaxIndex returns the highest buddy_table index ever grown into, i.e.
// E0+Exp-1. Callers must not query this before the first medium growth.
func (b *BuddyState) MaxIndex() uint {
	return sizeclass.E0 + b.Exp - 1
}

// State is the process-wide allocator singleton.
type State struct {
	mu    sync.Mutex
	Small SmallState
	Buddy BuddyState
}

// New builds a zero-initialized arena: no heads, both exponents zero.
func New() *State {
	return &State{
		Buddy: BuddyState{occupancy: bitset.New(sizeclass.T)},
	}
}

// Lock acquires the single process-wide allocator mutex. Every Allocate and
// Release call acquires it on entry and releases it on every exit path.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the mutex acquired by Lock.
func (s *State) Unlock() { s.mu.Unlock() }

// PopulatedBuddyLists counts non-empty buddy free lists. It is a pure debug
// helper with no effect on allocator state. Callers must hold the state
// lock.
func (s *State) PopulatedBuddyLists() int {
	return int(s.Buddy.occupancy.Count())
}

// Stats is a read-only snapshot of arena state for external harnesses and
// tests. It is never consulted by Allocate/Release and adds no tracking to
// the hot allocation path.
type Stats struct {
	SmallExp            uint
	MediumExp           uint
	PopulatedBuddyLists int
}

// Snapshot takes the lock and returns a point-in-time Stats.
func (s *State) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SmallExp:            s.Small.Exp,
		MediumExp:           s.Buddy.Exp,
		PopulatedBuddyLists: int(s.Buddy.occupancy.Count()),
	}
}
