package varcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjmonk/varmsg/errors"
	"github.com/tjmonk/varmsg/varstore"
)

func TestCache_AddPreservesOrder(t *testing.T) {
	c := New(4, 4)

	require.NoError(t, c.Add(varstore.Handle(3)))
	require.NoError(t, c.Add(varstore.Handle(1)))
	require.NoError(t, c.Add(varstore.Handle(2)))

	assert.Equal(t, []varstore.Handle{3, 1, 2}, c.Handles())
	assert.Equal(t, 3, c.Len())
}

func TestCache_AddDeduplicates(t *testing.T) {
	c := New(4, 4)

	require.NoError(t, c.Add(varstore.Handle(7)))
	require.NoError(t, c.Add(varstore.Handle(7)))
	require.NoError(t, c.Add(varstore.Handle(7)))

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(varstore.Handle(7)))
}

func TestCache_AddInvalidHandle(t *testing.T) {
	c := New(4, 4)
	assert.ErrorIs(t, c.Add(varstore.InvalidHandle), errors.ErrInvalidHandle)
}

func TestCache_GrowsPastInitialCapacity(t *testing.T) {
	c := New(2, 2)

	for i := 1; i <= 10; i++ {
		require.NoError(t, c.Add(varstore.Handle(i)))
	}

	assert.Equal(t, 10, c.Len())
	for i := 1; i <= 10; i++ {
		assert.Equal(t, varstore.Handle(i), c.Handles()[i-1])
	}
}

func TestCache_ForEachAbortsOnError(t *testing.T) {
	c := New(4, 4)
	require.NoError(t, c.Add(varstore.Handle(1)))
	require.NoError(t, c.Add(varstore.Handle(2)))
	require.NoError(t, c.Add(varstore.Handle(3)))

	var visited []varstore.Handle
	err := c.ForEach(func(h varstore.Handle) error {
		visited = append(visited, h)
		if h == 2 {
			return errors.ErrWriteFailed
		}
		return nil
	})

	assert.ErrorIs(t, err, errors.ErrWriteFailed)
	assert.Equal(t, []varstore.Handle{1, 2}, visited)
}

func TestCache_Reset(t *testing.T) {
	c := New(4, 4)
	require.NoError(t, c.Add(varstore.Handle(1)))
	require.NoError(t, c.Add(varstore.Handle(2)))

	c.Reset()

	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains(varstore.Handle(1)))

	require.NoError(t, c.Add(varstore.Handle(1)))
	assert.Equal(t, []varstore.Handle{1}, c.Handles())
}
