// Package tensor 提供训练核心使用的轻量数值原语。
// 所有操作都作用在 [][]float64 / [][]bool 形状的批次张量上,
// 行对应样本,列对应序列位置。
package tensor

import "math"

// Clip 将标量限制在 [lo, hi] 区间内
func Clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Zeros 返回 rows x cols 的零矩阵
func Zeros(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

// Clone 返回矩阵的深拷贝
func Clone(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// ApplyMask 返回逐元素乘以掩码后的新矩阵,掩码为假的位置置零
func ApplyMask(x [][]float64, mask [][]bool) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if mask[i][j] {
				out[i][j] = v
			}
		}
	}
	return out
}

// MaskedMean 计算掩码位置上的均值,掩码全假时返回 0
func MaskedMean(x [][]float64, mask [][]bool) float64 {
	sum := 0.0
	count := 0
	for i, row := range x {
		for j, v := range row {
			if mask[i][j] {
				sum += v
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// MaskedSumMean 先对每一行求掩码位置之和,再对行求均值。
// 与 MaskedMean 不同,短序列与长序列在行间权重相同。
func MaskedSumMean(x [][]float64, mask [][]bool) float64 {
	if len(x) == 0 {
		return 0
	}
	total := 0.0
	for i, row := range x {
		for j, v := range row {
			if mask[i][j] {
				total += v
			}
		}
	}
	return total / float64(len(x))
}

// MaskedCount 返回掩码中真值的个数
func MaskedCount(mask [][]bool) int {
	count := 0
	for _, row := range mask {
		for _, m := range row {
			if m {
				count++
			}
		}
	}
	return count
}

// Mean 计算切片均值,空切片返回 0
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// Max 返回切片最大值,空切片返回负无穷
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}
	max := xs[0]
	for _, v := range xs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// RowLastTrue 返回一行掩码中最后一个真值的下标,全假返回 -1
func RowLastTrue(mask []bool) int {
	for j := len(mask) - 1; j >= 0; j-- {
		if mask[j] {
			return j
		}
	}
	return -1
}

// LogSoftmax 对一个 logit 向量计算对数 softmax,数值上做最大值平移
func LogSoftmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := Max(logits)
	sum := 0.0
	for _, v := range logits {
		sum += math.Exp(v - max)
	}
	lse := max + math.Log(sum)

	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = v - lse
	}
	return out
}

// GatherLogProbs 对 [batch, span, vocab] 的 logits 做逐位置对数 softmax,
// 再按 labels 取出realized token 的对数概率,输出形状 [batch, span]。
func GatherLogProbs(logits [][][]float64, labels [][]int64) [][]float64 {
	out := make([][]float64, len(logits))
	for i := range logits {
		row := make([]float64, len(logits[i]))
		for t := range logits[i] {
			lp := LogSoftmax(logits[i][t])
			row[t] = lp[labels[i][t]]
		}
		out[i] = row
	}
	return out
}

// PadTokenRows 将每一行 token 右侧补齐到 width 长度
func PadTokenRows(x [][]int64, width int, pad int64) [][]int64 {
	out := make([][]int64, len(x))
	for i, row := range x {
		padded := make([]int64, width)
		for j := range padded {
			padded[j] = pad
		}
		copy(padded, row)
		out[i] = padded
	}
	return out
}
