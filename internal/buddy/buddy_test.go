package buddy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emalloc-go/emalloc/internal/arena"
	"github.com/emalloc-go/emalloc/internal/envelope"
	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

func newState(t *testing.T) *arena.BuddyState {
	t.Helper()
	st := arena.New()
	return &st.Buddy
}

func TestAllocateGrowsColdArena(t *testing.T) {
	s := newState(t)
	require.Equal(t, uint(0), s.Exp)

	p := Allocate(s, 1000)
	require.NotNil(t, p)
	assert.Equal(t, uint(1), s.Exp)
}

func TestAllocateReturnsPowerOfTwoEnvelope(t *testing.T) {
	s := newState(t)

	// 65 bytes + 32-byte envelope = 97, rounds to 128 = 2^7.
	p := Allocate(s, 65)
	a, err := envelope.Verify(p)
	require.NoError(t, err)
	assert.Equal(t, envelope.ClassMedium, a.Class)
	assert.Equal(t, uint64(128), a.PhysSize)
}

func TestSplitThenCoalesceReturnsToSingleFreeBlock(t *testing.T) {
	s := newState(t)

	// Force a growth, then allocate something far smaller than the grown
	// block size so findBlock must split its way down.
	p := Allocate(s, 100) // target index 8 (256 bytes)
	a, err := envelope.Verify(p)
	require.NoError(t, err)

	top := s.MaxIndex()
	populatedBefore := countPopulated(s, top)

	Release(s, a)

	// After releasing the only live allocation, coalescing must walk all
	// the way back up to a single free block at the top level.
	assert.NotNil(t, s.Head(top))
	populatedAfter := countPopulated(s, top)
	assert.LessOrEqual(t, populatedAfter, populatedBefore+1)
}

func TestAllocateTwoThenReleaseBothCoalesces(t *testing.T) {
	s := newState(t)

	p1 := Allocate(s, sizeclass.SMax+1)
	p2 := Allocate(s, sizeclass.SMax+1)
	a1, err := envelope.Verify(p1)
	require.NoError(t, err)
	a2, err := envelope.Verify(p2)
	require.NoError(t, err)

	Release(s, a1)
	Release(s, a2)

	top := s.MaxIndex()
	assert.NotNil(t, s.Head(top), "buddies freed in either order must fully coalesce")
}

func TestColdArenaLargeJumpGrowsRepeatedly(t *testing.T) {
	s := newState(t)

	// A single allocation whose target index is several growths ahead of
	// a cold (Exp==0) arena must grow the pool in a loop, not just once.
	target := sizeclass.MediumIndex(1 << 19)
	p := Allocate(s, 1<<19)
	a, err := envelope.Verify(p)
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<target, a.PhysSize)
	assert.GreaterOrEqual(t, s.MaxIndex(), target)
}

func countPopulated(s *arena.BuddyState, top uint) int {
	n := 0
	for i := uint(0); i <= top; i++ {
		if s.Head(i) != nil {
			n++
		}
	}
	return n
}
