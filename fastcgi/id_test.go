package fastcgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPoolAllocSequence(t *testing.T) {
	p := newIDs(10)

	for want := uint16(1); want <= 10; want++ {
		id, err := p.Alloc()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	_, err := p.Alloc()
	assert.Error(t, err, "pool exhausted")
}

func TestIDPoolReuseSmallestFirst(t *testing.T) {
	p := newIDs(10)

	for i := 0; i < 5; i++ {
		_, err := p.Alloc()
		require.NoError(t, err)
	}

	require.NoError(t, p.Release(2))
	require.NoError(t, p.Release(4))

	id, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id)

	id, err = p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), id)
}

func TestIDPoolShrinksCeiling(t *testing.T) {
	p := newIDs(10)

	for i := 0; i < 3; i++ {
		_, err := p.Alloc()
		require.NoError(t, err)
	}

	//free the middle, then the top: both slots must come back out below
	//any fresh id
	require.NoError(t, p.Release(2))
	require.NoError(t, p.Release(3))

	id, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id)
}

func TestIDPoolReleaseFailures(t *testing.T) {
	p := newIDs(10)

	id, err := p.Alloc()
	require.NoError(t, err)

	assert.Error(t, p.Release(0))
	assert.Error(t, p.Release(id+1), "never allocated")

	require.NoError(t, p.Release(id))
	assert.Error(t, p.Release(id), "double release")
}
