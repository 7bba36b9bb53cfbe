package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLen(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 3; i++ {
		b.Append(i)
	}
	assert.Equal(t, 3, b.Len())
}

// P2: len == min(K, C), tail == K-1, head == max(0, K-C).
func TestP2CapacityInvariant(t *testing.T) {
	cases := []struct{ capacity, appends int }{
		{4, 2}, {4, 4}, {4, 10}, {1, 1}, {100, 37},
	}
	for _, c := range cases {
		b := New[int](c.capacity)
		for i := 0; i < c.appends; i++ {
			b.Append(i)
		}
		expectedLen := c.appends
		if expectedLen > c.capacity {
			expectedLen = c.capacity
		}
		assert.Equal(t, expectedLen, b.Len())

		tail, ok := b.TailIndex()
		require.True(t, ok)
		assert.EqualValues(t, c.appends-1, tail)

		head, ok := b.HeadIndex()
		require.True(t, ok)
		expectedHead := c.appends - c.capacity
		if expectedHead < 0 {
			expectedHead = 0
		}
		assert.EqualValues(t, expectedHead, head)

		assert.Equal(t, tail-head+1, uint64(b.Len()))
	}
}

// Boundary: ring buffer at capacity 4 receiving 10 appends retains {6,7,8,9}.
func TestBoundaryRetainedIndices(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 10; i++ {
		b.Append(i)
	}
	latest := b.Latest(10)
	require.Len(t, latest, 4)
	assert.Equal(t, []int{6, 7, 8, 9}, latest)

	for _, idx := range []uint64{6, 7, 8, 9} {
		_, ok := b.Get(idx)
		assert.True(t, ok)
	}
	_, ok := b.Get(5)
	assert.False(t, ok)
}

func TestGetOutOfRange(t *testing.T) {
	b := New[string](4)
	_, ok := b.Get(0)
	assert.False(t, ok, "empty buffer has no valid indices")

	b.Append("a")
	_, ok = b.Get(1)
	assert.False(t, ok)
}

func TestLatestOrderingOldestFirst(t *testing.T) {
	b := New[int](5)
	for i := 0; i < 5; i++ {
		b.Append(i)
	}
	assert.Equal(t, []int{2, 3, 4}, b.Latest(3))
}

func TestSliceFromClipsToHeadAndTail(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 10; i++ {
		b.Append(i)
	}
	// head=6, tail=9; asking from abs 0 clips to head
	got := b.SliceFrom(0, 100)
	assert.Equal(t, []int{6, 7, 8, 9}, got)

	got = b.SliceFrom(8, 10)
	assert.Equal(t, []int{8, 9}, got)
}

func TestReversedNewestToOldest(t *testing.T) {
	b := New[int](3)
	for i := 0; i < 3; i++ {
		b.Append(i)
	}
	var seen []int
	b.Reversed(func(absIdx uint64, item int) bool {
		seen = append(seen, item)
		return true
	})
	assert.Equal(t, []int{2, 1, 0}, seen)
}

func TestReversedEarlyStop(t *testing.T) {
	b := New[int](5)
	for i := 0; i < 5; i++ {
		b.Append(i)
	}
	var seen []int
	b.Reversed(func(absIdx uint64, item int) bool {
		seen = append(seen, item)
		return len(seen) < 2
	})
	assert.Equal(t, []int{4, 3}, seen)
}

func TestEmptyBufferHasNoHeadOrTail(t *testing.T) {
	b := New[int](4)
	_, ok := b.HeadIndex()
	assert.False(t, ok)
	_, ok = b.TailIndex()
	assert.False(t, ok)
}
