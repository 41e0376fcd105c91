package largealloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emalloc-go/emalloc/internal/envelope"
	"github.com/emalloc-go/emalloc/internal/sizeclass"
)

func TestAllocateStampsLargeEnvelope(t *testing.T) {
	p := Allocate(sizeclass.LMin)
	defer func() {
		a, err := envelope.Verify(p)
		require.NoError(t, err)
		Release(a)
	}()

	a, err := envelope.Verify(p)
	require.NoError(t, err)
	assert.Equal(t, envelope.ClassLarge, a.Class)
	assert.Equal(t, uint64(sizeclass.LMin+32), a.PhysSize)
}

func TestAllocateIsIndependentPerCall(t *testing.T) {
	p1 := Allocate(sizeclass.LMin)
	p2 := Allocate(sizeclass.LMin * 2)

	a1, err := envelope.Verify(p1)
	require.NoError(t, err)
	a2, err := envelope.Verify(p2)
	require.NoError(t, err)

	assert.NotEqual(t, a1.Base, a2.Base)
	assert.Equal(t, uint64(sizeclass.LMin*2+32), a2.PhysSize)

	Release(a1)
	Release(a2)
}
