package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(1 << 16)
	require.NoError(t, err)

	data := m.Bytes()
	require.Len(t, data, 1<<16)
	assert.Equal(t, 1<<16, m.Size())

	for _, b := range data[:128] {
		assert.Zero(t, b)
	}

	data[0], data[len(data)-1] = 0xAB, 0xCD
	assert.Equal(t, byte(0xAB), m.Bytes()[0])
	assert.Equal(t, byte(0xCD), m.Bytes()[len(data)-1])

	require.NoError(t, m.Advise(AccessWillNeed))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close must be idempotent")

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessDefault), ErrClosed)
}

func TestMapAnon_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := MapAnon(size)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
}
