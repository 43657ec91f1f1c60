package ppolag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeStreams(t *testing.T) {
	logProbs := [][]float64{{0.5, 0.3}}
	refLogProbs := [][]float64{{0.2, 0.1}}

	t.Run("kl streams carry opposite signs", func(t *testing.T) {
		mask := [][]bool{{true, true}}
		out := ShapeStreams(logProbs, refLogProbs, mask, []float64{0}, []float64{0}, 0.1, 50)

		require.Len(t, out.KL, 1)
		assert.InDelta(t, 0.3, out.KL[0][0], 1e-9)
		assert.InDelta(t, 0.2, out.KL[0][1], 1e-9)
		assert.InDelta(t, -0.03, out.Rewards[0][0], 1e-9)
		assert.InDelta(t, 0.03, out.Costs[0][0], 1e-9)
	})

	t.Run("scalar scores land on the last valid position", func(t *testing.T) {
		mask := [][]bool{{true, true}}
		out := ShapeStreams(logProbs, refLogProbs, mask, []float64{2}, []float64{3}, 0.1, 50)

		assert.InDelta(t, -0.03, out.Rewards[0][0], 1e-9)
		assert.InDelta(t, 1.98, out.Rewards[0][1], 1e-9)
		assert.InDelta(t, 0.03, out.Costs[0][0], 1e-9)
		assert.InDelta(t, 3.02, out.Costs[0][1], 1e-9)
	})

	t.Run("scatter index follows the mask", func(t *testing.T) {
		mask := [][]bool{{true, false}}
		out := ShapeStreams(logProbs, refLogProbs, mask, []float64{2}, []float64{3}, 0.1, 50)

		assert.InDelta(t, 1.97, out.Rewards[0][0], 1e-9)
		assert.InDelta(t, -0.02, out.Rewards[0][1], 1e-9)
		assert.InDelta(t, 3.03, out.Costs[0][0], 1e-9)
	})

	t.Run("clamp applies after the scatter", func(t *testing.T) {
		mask := [][]bool{{true, true}}
		out := ShapeStreams(logProbs, refLogProbs, mask, []float64{2}, []float64{3}, 0.1, 1)

		assert.InDelta(t, 1.0, out.Rewards[0][1], 1e-9)
		assert.InDelta(t, 1.0, out.Costs[0][1], 1e-9)
	})

	t.Run("all false mask drops the scalar score", func(t *testing.T) {
		mask := [][]bool{{false, false}}
		out := ShapeStreams(logProbs, refLogProbs, mask, []float64{2}, []float64{3}, 0.1, 50)

		assert.InDelta(t, -0.03, out.Rewards[0][0], 1e-9)
		assert.InDelta(t, -0.02, out.Rewards[0][1], 1e-9)
	})
}
