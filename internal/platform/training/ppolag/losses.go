package ppolag

import (
	"math"

	"github.com/safealign/safealign/internal/platform/model"
	"github.com/safealign/safealign/internal/platform/training/tensor"
)

// ============================================================================
// Actor Loss
// ============================================================================

// BlendAdvantages 把奖励优势与代价优势按当前乘子合成单一优势:
// A = (A_reward - lambda*A_cost) / (1 + lambda)。
// lambda 趋近 0 时退化为纯奖励优势,lambda 很大时由代价项主导。
func BlendAdvantages(rewardAdv, costAdv [][]float64, lambda float64) [][]float64 {
	out := make([][]float64, len(rewardAdv))
	scale := 1.0 / (1.0 + lambda)
	for i := range rewardAdv {
		row := make([]float64, len(rewardAdv[i]))
		for t := range row {
			row[t] = (rewardAdv[i][t] - lambda*costAdv[i][t]) * scale
		}
		out[i] = row
	}
	return out
}

// ActorLoss 计算截断替代目标的策略损失及其对新对数概率的梯度。
// ratio = exp(logProbs - oldLogProbs),替代项取
// min(A*ratio, A*clip(ratio, 1-eps, 1+eps)),损失为其掩码均值的相反数。
// 返回的梯度与 logProbs 同形,掩码外为零,可直接交给模型侧反向传播。
func ActorLoss(logProbs, oldLogProbs, advantages [][]float64, mask [][]bool, clipEps float64) *model.LossNode {
	count := tensor.MaskedCount(mask)
	grads := tensor.Zeros(len(logProbs), spanOf(logProbs))
	if count == 0 {
		return &model.LossNode{Value: 0, Grads: grads}
	}

	lo, hi := 1.0-clipEps, 1.0+clipEps
	sum := 0.0
	inv := 1.0 / float64(count)

	for i := range logProbs {
		for t := range logProbs[i] {
			if !mask[i][t] {
				continue
			}
			adv := advantages[i][t]
			ratio := math.Exp(logProbs[i][t] - oldLogProbs[i][t])
			clipped := tensor.Clip(ratio, lo, hi)

			surr1 := adv * ratio
			surr2 := adv * clipped
			if surr1 <= surr2 {
				sum += surr1
				grads[i][t] = -adv * ratio * inv
			} else {
				sum += surr2
				// 截断分支:ratio 在区间内时与 surr1 同梯度,越界时梯度为零
				if ratio > lo && ratio < hi {
					grads[i][t] = -adv * ratio * inv
				}
			}
		}
	}

	return &model.LossNode{Value: -sum * inv, Grads: grads}
}

// LogitGrads 把策略损失对 gather 后对数概率的梯度展开到 logit 空间:
// d logp[label] / d logit[v] = 1[v=label] - softmax(logit)[v]。
// upstream 为零的位置(掩码外)保持零向量,模型侧无需区分。
func LogitGrads(logits [][][]float64, labels [][]int64, upstream [][]float64) [][][]float64 {
	out := make([][][]float64, len(logits))
	for i := range logits {
		out[i] = make([][]float64, len(logits[i]))
		for t := range logits[i] {
			vocab := len(logits[i][t])
			g := make([]float64, vocab)
			out[i][t] = g

			up := upstream[i][t]
			if up == 0 {
				continue
			}

			lp := tensor.LogSoftmax(logits[i][t])
			for v := range g {
				g[v] = -up * math.Exp(lp[v])
			}
			g[labels[i][t]] += up
		}
	}
	return out
}

// ============================================================================
// Critic Loss
// ============================================================================

// CriticLoss 计算带值截断的评论家损失及其对当前值估计的梯度。
// vclip = clamp(v, old-c, old+c),损失为
// 0.5 * maskedMean(max((v-ret)^2, (vclip-ret)^2))。
func CriticLoss(values, oldValues, returns [][]float64, mask [][]bool, clipRangeValue float64) *model.LossNode {
	count := tensor.MaskedCount(mask)
	grads := tensor.Zeros(len(values), spanOf(values))
	if count == 0 {
		return &model.LossNode{Value: 0, Grads: grads}
	}

	sum := 0.0
	inv := 1.0 / float64(count)

	for i := range values {
		for t := range values[i] {
			if !mask[i][t] {
				continue
			}
			v := values[i][t]
			old := oldValues[i][t]
			ret := returns[i][t]

			vclip := tensor.Clip(v, old-clipRangeValue, old+clipRangeValue)
			err1 := v - ret
			err2 := vclip - ret
			sq1 := err1 * err1
			sq2 := err2 * err2

			if sq1 >= sq2 {
				sum += sq1
				grads[i][t] = err1 * inv
			} else {
				sum += sq2
				// vclip 未被截断时 dvclip/dv = 1,否则梯度为零
				if v > old-clipRangeValue && v < old+clipRangeValue {
					grads[i][t] = err2 * inv
				}
			}
		}
	}

	return &model.LossNode{Value: 0.5 * sum * inv, Grads: grads}
}

func spanOf(x [][]float64) int {
	if len(x) == 0 {
		return 0
	}
	return len(x[0])
}
