package ppolag

import (
	"github.com/safealign/safealign/internal/platform/training/tensor"
)

// EstimateAdvantages 对一个批次做广义优势估计(GAE)。
// values 与 rewards 形状为 [batch, span],先按掩码置零,再自右向左
// 递推:delta_t = r_t + gamma*V_{t+1} - V_t,A_t = delta_t +
// gamma*lam*A_{t+1},末位置之后的值视为 0。returns = A + V。
// 输入不被修改;掩码全假的行得到全零输出。
func EstimateAdvantages(values, rewards [][]float64, mask [][]bool, gamma, lam float64) (advantages, returns [][]float64) {
	v := tensor.ApplyMask(values, mask)
	r := tensor.ApplyMask(rewards, mask)

	advantages = make([][]float64, len(v))
	returns = make([][]float64, len(v))

	for i := range v {
		span := len(v[i])
		adv := make([]float64, span)
		ret := make([]float64, span)

		lastGAE := 0.0
		for t := span - 1; t >= 0; t-- {
			nextValue := 0.0
			if t+1 < span {
				nextValue = v[i][t+1]
			}
			delta := r[i][t] + gamma*nextValue - v[i][t]
			lastGAE = delta + gamma*lam*lastGAE
			adv[t] = lastGAE
			ret[t] = lastGAE + v[i][t]
		}

		advantages[i] = adv
		returns[i] = ret
	}

	return advantages, returns
}
