package arena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

func pointerTo(b []byte) unsafe.Pointer { return unsafe.Pointer(&b[0]) }

func TestNewArenaIsZeroInitialized(t *testing.T) {
	s := New()
	assert.Nil(t, s.Small.Head)
	assert.Equal(t, uint(0), s.Small.Exp)
	assert.Equal(t, uint(0), s.Buddy.Exp)
	assert.Equal(t, 0, s.PopulatedBuddyLists())
}

func TestSetHeadTracksOccupancy(t *testing.T) {
	s := New()
	dummy := make([]byte, 8)

	s.Buddy.SetHead(sizeclass.E0, nil)
	assert.Equal(t, 0, s.PopulatedBuddyLists())

	s.Buddy.SetHead(sizeclass.E0, nil)
	s.Buddy.Exp = 1
	assert.Equal(t, uint(sizeclass.E0), s.Buddy.MaxIndex())

	s.Buddy.SetHead(sizeclass.E0, pointerTo(dummy))
	assert.Equal(t, 1, s.PopulatedBuddyLists())

	s.Buddy.SetHead(sizeclass.E0, nil)
	assert.Equal(t, 0, s.PopulatedBuddyLists())
}

func TestNextPopulatedFindsSmallestNonEmptyIndex(t *testing.T) {
	s := New()
	dummy := make([]byte, 8)

	_, ok := s.Buddy.NextPopulated(0)
	assert.False(t, ok)

	s.Buddy.SetHead(sizeclass.E0+3, pointerTo(dummy))

	idx, ok := s.Buddy.NextPopulated(sizeclass.E0)
	assert.True(t, ok)
	assert.Equal(t, uint(sizeclass.E0+3), idx)

	_, ok = s.Buddy.NextPopulated(sizeclass.E0 + 4)
	assert.False(t, ok)
}

func TestSnapshotReflectsState(t *testing.T) {
	s := New()
	s.Small.Exp = 3
	s.Buddy.Exp = 2

	snap := s.Snapshot()
	assert.Equal(t, uint(3), snap.SmallExp)
	assert.Equal(t, uint(2), snap.MediumExp)
	assert.Equal(t, 0, snap.PopulatedBuddyLists)
}

func TestLockUnlockDoesNotDeadlock(t *testing.T) {
	s := New()
	s.Lock()
	s.Unlock()
	s.Lock()
	s.Unlock()
}
