package ppolag

import (
	"github.com/safealign/safealign/internal/platform/training/tensor"
)

// ShapedStreams 是 KL 正则化后的逐位置奖励与代价流
type ShapedStreams struct {
	// Rewards 逐位置奖励:KL 惩罚叠加末位置的标量奖励
	Rewards [][]float64

	// Costs 逐位置代价:KL 奖励叠加末位置的标量代价
	Costs [][]float64

	// KL 逐位置 KL 散度估计 log_probs - ref_log_probs
	KL [][]float64
}

// ShapeStreams 把标量奖励/代价与 KL 惩罚合成为逐位置双流。
// 每个位置先得到 KL 项(奖励流取 -klCoeff*KL,代价流取 +klCoeff*KL),
// 然后把轨迹的标量分数加到最后一个有效位置(由掩码推得),最后将
// 两个流整体截断到 [-clipRangeScore, clipRangeScore]。全假掩码的行
// 没有有效末位置,标量分数被丢弃。
func ShapeStreams(logProbs, refLogProbs [][]float64, mask [][]bool, reward, cost []float64, klCoeff, clipRangeScore float64) *ShapedStreams {
	n := len(logProbs)
	out := &ShapedStreams{
		Rewards: make([][]float64, n),
		Costs:   make([][]float64, n),
		KL:      make([][]float64, n),
	}

	for i := 0; i < n; i++ {
		span := len(logProbs[i])
		kl := make([]float64, span)
		rewards := make([]float64, span)
		costs := make([]float64, span)

		for t := 0; t < span; t++ {
			kl[t] = logProbs[i][t] - refLogProbs[i][t]
			rewards[t] = -klCoeff * kl[t]
			costs[t] = klCoeff * kl[t]
		}

		if end := tensor.RowLastTrue(mask[i]); end >= 0 {
			rewards[end] += reward[i]
			costs[end] += cost[i]
		}

		for t := 0; t < span; t++ {
			rewards[t] = tensor.Clip(rewards[t], -clipRangeScore, clipRangeScore)
			costs[t] = tensor.Clip(costs[t], -clipRangeScore, clipRangeScore)
		}

		out.KL[i] = kl
		out.Rewards[i] = rewards
		out.Costs[i] = costs
	}

	return out
}
