package ppolag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safealign/safealign/internal/platform/training/tensor"
)

func TestBlendAdvantages(t *testing.T) {
	rewardAdv := [][]float64{{1, 2}}
	costAdv := [][]float64{{0.5, -1}}

	t.Run("zero lambda keeps the reward advantage", func(t *testing.T) {
		out := BlendAdvantages(rewardAdv, costAdv, 0)

		assert.InDelta(t, 1.0, out[0][0], 1e-9)
		assert.InDelta(t, 2.0, out[0][1], 1e-9)
	})

	t.Run("large lambda is dominated by the cost advantage", func(t *testing.T) {
		out := BlendAdvantages(rewardAdv, costAdv, 1e9)

		assert.InDelta(t, -0.5, out[0][0], 1e-6)
		assert.InDelta(t, 1.0, out[0][1], 1e-6)
	})

	t.Run("unit lambda averages the streams", func(t *testing.T) {
		out := BlendAdvantages(rewardAdv, costAdv, 1)

		assert.InDelta(t, (1.0-0.5)/2, out[0][0], 1e-9)
		assert.InDelta(t, (2.0+1.0)/2, out[0][1], 1e-9)
	})
}

func TestActorLoss(t *testing.T) {
	t.Run("unit ratio reduces to negative mean advantage", func(t *testing.T) {
		logProbs := [][]float64{{-1.0, -2.0}}
		advantages := [][]float64{{1.0, 3.0}}
		mask := [][]bool{{true, true}}

		loss := ActorLoss(logProbs, logProbs, advantages, mask, 0.2)

		assert.InDelta(t, -2.0, loss.Value, 1e-9)
		assert.InDelta(t, -0.5, loss.Grads[0][0], 1e-9)
		assert.InDelta(t, -1.5, loss.Grads[0][1], 1e-9)
	})

	t.Run("clipped loss never falls below the unclipped loss", func(t *testing.T) {
		oldLogProbs := [][]float64{{-1.0, -1.5, -0.5}}
		logProbs := [][]float64{{-0.2, -2.5, -0.45}}
		advantages := [][]float64{{1.0, -2.0, 0.5}}
		mask := [][]bool{{true, true, true}}

		loss := ActorLoss(logProbs, oldLogProbs, advantages, mask, 0.2)

		unclipped := 0.0
		for tt := range logProbs[0] {
			ratio := math.Exp(logProbs[0][tt] - oldLogProbs[0][tt])
			unclipped += advantages[0][tt] * ratio
		}
		unclipped = -unclipped / 3

		assert.GreaterOrEqual(t, loss.Value+1e-12, unclipped)
	})

	t.Run("clipped positions have zero gradient", func(t *testing.T) {
		// ratio = e^1,大幅超出截断区间,正优势被截断
		logProbs := [][]float64{{0.0}}
		oldLogProbs := [][]float64{{-1.0}}
		advantages := [][]float64{{2.0}}
		mask := [][]bool{{true}}

		loss := ActorLoss(logProbs, oldLogProbs, advantages, mask, 0.2)

		assert.InDelta(t, -2.0*1.2, loss.Value, 1e-9)
		assert.Zero(t, loss.Grads[0][0])
	})

	t.Run("masked positions contribute nothing", func(t *testing.T) {
		logProbs := [][]float64{{-1.0, -1.0}}
		advantages := [][]float64{{1.0, 100.0}}
		mask := [][]bool{{true, false}}

		loss := ActorLoss(logProbs, logProbs, advantages, mask, 0.2)

		assert.InDelta(t, -1.0, loss.Value, 1e-9)
		assert.Zero(t, loss.Grads[0][1])
	})

	t.Run("all false mask yields zero loss", func(t *testing.T) {
		logProbs := [][]float64{{-1.0}}
		mask := [][]bool{{false}}

		loss := ActorLoss(logProbs, logProbs, [][]float64{{1.0}}, mask, 0.2)

		assert.Zero(t, loss.Value)
	})
}

func TestLogitGrads(t *testing.T) {
	t.Run("uniform logits split the upstream gradient", func(t *testing.T) {
		// softmax 均匀为 1/3:标签分量 3*(1-1/3)=2,其余 -1
		logits := [][][]float64{{{0, 0, 0}}}
		labels := [][]int64{{1}}
		upstream := [][]float64{{3.0}}

		out := LogitGrads(logits, labels, upstream)

		assert.InDelta(t, -1.0, out[0][0][0], 1e-9)
		assert.InDelta(t, 2.0, out[0][0][1], 1e-9)
		assert.InDelta(t, -1.0, out[0][0][2], 1e-9)
	})

	t.Run("gradients sum to zero over the vocabulary", func(t *testing.T) {
		logits := [][][]float64{{{0.3, -1.2, 2.0, 0.1}}}
		labels := [][]int64{{2}}
		upstream := [][]float64{{-0.7}}

		out := LogitGrads(logits, labels, upstream)

		sum := 0.0
		for _, g := range out[0][0] {
			sum += g
		}
		assert.InDelta(t, 0.0, sum, 1e-9)
	})

	t.Run("zero upstream leaves zero vectors", func(t *testing.T) {
		logits := [][][]float64{{{1, 2}, {3, 4}}}
		labels := [][]int64{{0, 1}}
		upstream := [][]float64{{0, 0}}

		out := LogitGrads(logits, labels, upstream)

		require.Len(t, out[0], 2)
		assert.Equal(t, []float64{0, 0}, out[0][0])
		assert.Equal(t, []float64{0, 0}, out[0][1])
	})
}

func TestCriticLoss(t *testing.T) {
	t.Run("unclipped branch", func(t *testing.T) {
		values := [][]float64{{2.0}}
		oldValues := [][]float64{{0.0}}
		returns := [][]float64{{0.0}}
		mask := [][]bool{{true}}

		loss := CriticLoss(values, oldValues, returns, mask, 1.0)

		// vclip = 1, max((2-0)^2, (1-0)^2) = 4
		assert.InDelta(t, 2.0, loss.Value, 1e-9)
		assert.InDelta(t, 2.0, loss.Grads[0][0], 1e-9)
	})

	t.Run("clipped branch has zero gradient", func(t *testing.T) {
		values := [][]float64{{2.0}}
		oldValues := [][]float64{{0.0}}
		returns := [][]float64{{3.0}}
		mask := [][]bool{{true}}

		loss := CriticLoss(values, oldValues, returns, mask, 1.0)

		// vclip = 1, max((2-3)^2, (1-3)^2) = 4,截断值主导
		assert.InDelta(t, 2.0, loss.Value, 1e-9)
		assert.Zero(t, loss.Grads[0][0])
	})

	t.Run("exact value gives zero loss", func(t *testing.T) {
		values := [][]float64{{1.5}}
		mask := [][]bool{{true}}

		loss := CriticLoss(values, values, tensor.Clone(values), mask, 1.0)

		assert.Zero(t, loss.Value)
		assert.Zero(t, loss.Grads[0][0])
	})

	t.Run("masked mean over multiple positions", func(t *testing.T) {
		values := [][]float64{{1.0, 9.0}}
		oldValues := [][]float64{{1.0, 9.0}}
		returns := [][]float64{{0.0, 0.0}}
		mask := [][]bool{{true, false}}

		loss := CriticLoss(values, oldValues, returns, mask, 100.0)

		require.NotNil(t, loss)
		assert.InDelta(t, 0.5, loss.Value, 1e-9)
		assert.Zero(t, loss.Grads[0][1])
	})
}
