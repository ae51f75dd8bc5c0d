package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowRef struct {
	Table uint32
	Slot  uint32
	Gen   uint64
}

func TestAllocator_Allocate(t *testing.T) {
	reg := NewRegistry(WithChecking(true))
	defer func() { require.NoError(t, reg.Close()) }()

	a, err := NewAllocator[rowRef](reg)
	require.NoError(t, err)
	assert.Equal(t, 16, a.ElemSize())

	t.Run("zero count", func(t *testing.T) {
		s, err := a.Allocate(0)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Empty(t, reg.Sizes(), "no pool may be created for an empty request")
		a.Deallocate(nil, 0)
	})

	t.Run("single element", func(t *testing.T) {
		s, err := a.Allocate(1)
		require.NoError(t, err)
		require.Len(t, s, 1)

		a.Construct(&s[0], rowRef{Table: 7, Slot: 9, Gen: 1})
		assert.Equal(t, rowRef{Table: 7, Slot: 9, Gen: 1}, s[0])

		p, ok := reg.Lookup(16)
		require.True(t, ok)
		assert.Equal(t, 1, p.InUse())

		a.Destroy(&s[0])
		assert.Equal(t, rowRef{}, s[0])
		a.Deallocate(s, 1)
		assert.Zero(t, p.InUse())
	})

	t.Run("run of elements is one block", func(t *testing.T) {
		s, err := a.Allocate(10)
		require.NoError(t, err)
		require.Len(t, s, 10)
		for i := range s {
			s[i].Slot = uint32(i)
		}

		p, ok := reg.Lookup(160)
		require.True(t, ok, "a run is keyed by elemSize*count")
		assert.Equal(t, 1, p.InUse())

		a.Deallocate(s, 10)
		assert.Zero(t, p.InUse())
	})
}

func TestAllocator_RejectsPointerTypes(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	type withString struct {
		ID   int
		Name string
	}

	_, err := NewAllocator[*int](reg)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = NewAllocator[withString](reg)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = NewAllocator[[4][]byte](reg)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = NewAllocator[struct{}](reg)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewAllocator[[4]uint64](reg)
	assert.NoError(t, err)
}

func TestAllocator_Equal(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()
	defer r1.Close()
	defer r2.Close()

	a1, err := NewAllocator[uint64](r1)
	require.NoError(t, err)
	b1, err := NewAllocator[uint64](r1)
	require.NoError(t, err)
	a2, err := NewAllocator[uint64](r2)
	require.NoError(t, err)

	assert.True(t, a1.Equal(b1))
	assert.False(t, a1.Equal(a2))
}

func TestAllocator_ReleasedPool(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	a, err := NewAllocator[uint64](reg)
	require.NoError(t, err)

	p, err := reg.GetExact(8)
	require.NoError(t, err)
	p.released = true

	_, err = a.Allocate(1)
	assert.ErrorIs(t, err, ErrClosed)
}
