package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	t.Run("Reads do not reorder", func(t *testing.T) {
		fifo := NewFIFO[string]()
		fifo.OnSet("key1")
		fifo.OnSet("key2")
		fifo.OnSet("key3")
		fifo.OnGet("key1")
		fifo.OnSet("key1")

		key, ok := fifo.Evict()
		require.True(t, ok)
		require.Equal(t, "key1", key)
		require.Equal(t, []string{"key3", "key2"}, fifo.Keys())
	})

	t.Run("Delete and clear", func(t *testing.T) {
		fifo := NewFIFO[int]()
		fifo.OnSet(1)
		fifo.OnSet(2)
		fifo.OnDelete(1)
		require.Equal(t, 1, fifo.Size())

		fifo.OnClear()
		_, ok := fifo.Evict()
		require.False(t, ok)
	})
}
