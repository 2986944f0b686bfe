package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRU[int, string](2, 0)
	c.Put(1, "a")
	c.Put(2, "b")

	// touching 1 makes 2 the eviction candidate
	_, ok := c.Get(1)
	require.True(t, ok)

	c.Put(3, "c")
	require.Equal(t, 2, c.Len())

	_, ok = c.Get(2)
	require.False(t, ok)
	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestLRUUpdateKeepsSingleEntry(t *testing.T) {
	c := NewLRU[int, string](2, 0)
	c.Put(1, "a")
	c.Put(1, "a2")
	require.Equal(t, 1, c.Len())
	v, _ := c.Get(1)
	require.Equal(t, "a2", v)
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU[int, string](4, 20*time.Millisecond)
	c.Put(1, "a")
	_, ok := c.Get(1)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(1)
	require.False(t, ok)
}
