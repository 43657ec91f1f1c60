package ppolag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpisodeCostWindow(t *testing.T) {
	t.Run("empty window means zero", func(t *testing.T) {
		w := NewEpisodeCostWindow(4)

		assert.Zero(t, w.Mean())
		assert.Zero(t, w.Len())
	})

	t.Run("mean over partial fill", func(t *testing.T) {
		w := NewEpisodeCostWindow(4)
		w.Push(1, 2, 3)

		assert.Equal(t, 3, w.Len())
		assert.InDelta(t, 2.0, w.Mean(), 1e-9)
	})

	t.Run("oldest samples are evicted at capacity", func(t *testing.T) {
		w := NewEpisodeCostWindow(3)
		w.Push(10, 20, 30)
		w.Push(60)

		assert.Equal(t, 3, w.Len())
		assert.InDelta(t, (60.0+20+30)/3, w.Mean(), 1e-9)
	})

	t.Run("capacity floor is one", func(t *testing.T) {
		w := NewEpisodeCostWindow(0)
		w.Push(5, 7)

		assert.Equal(t, 1, w.Capacity())
		assert.InDelta(t, 7.0, w.Mean(), 1e-9)
	})
}
