package workspace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorNextIsMonotonic(t *testing.T) {
	layout := New(t.TempDir())
	require.NoError(t, layout.Ensure())
	alloc := NewAllocator(layout)

	first, err := alloc.Next()
	require.NoError(t, err)
	assert.Equal(t, "REQ-1", first)

	second, err := alloc.Next()
	require.NoError(t, err)
	assert.Equal(t, "REQ-2", second)
}

func TestAllocatorCurrentBeforeAnyNextIsZero(t *testing.T) {
	layout := New(t.TempDir())
	require.NoError(t, layout.Ensure())
	alloc := NewAllocator(layout)

	n, err := alloc.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAllocatorConcurrentNextYieldsDistinctIDs(t *testing.T) {
	layout := New(t.TempDir())
	require.NoError(t, layout.Ensure())
	alloc := NewAllocator(layout)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = alloc.Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for i, err := range errs {
		require.NoError(t, err)
		assert.False(t, seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}
	assert.Len(t, seen, workers)
}
