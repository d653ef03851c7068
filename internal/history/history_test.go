package history

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingPartiallyFilled(t *testing.T) {
	r := New[int](5)
	require.True(t, r.Empty())
	require.Equal(t, 0, r.Size())

	for i := 1; i <= 3; i++ {
		r.Insert(i)
	}
	require.False(t, r.Empty())
	require.False(t, r.Filled())
	require.Equal(t, 3, r.Size())
	require.Equal(t, []int{1, 2, 3}, r.Snapshot())

	latest, ok := r.Latest()
	require.True(t, ok)
	require.Equal(t, 3, latest)
}

func TestRingWrapKeepsNewest(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 10; i++ {
		r.Insert(i)
	}
	require.True(t, r.Filled())
	require.Equal(t, 4, r.Size())
	require.Equal(t, []int{7, 8, 9, 10}, r.Snapshot())

	latest, ok := r.Latest()
	require.True(t, ok)
	require.Equal(t, 10, latest)
}

func TestRingExactlyFull(t *testing.T) {
	r := New[string](2)
	r.Insert("a")
	r.Insert("b")
	require.True(t, r.Filled())
	require.Equal(t, []string{"a", "b"}, r.Snapshot())
}

func TestRingLatestOnEmpty(t *testing.T) {
	r := New[int](3)
	_, ok := r.Latest()
	require.False(t, ok)
	require.Empty(t, r.Snapshot())
}
