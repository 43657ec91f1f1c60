package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	assert.Equal(t, 0.8, Clip(0.5, 0.8, 1.2))
	assert.Equal(t, 1.2, Clip(2.0, 0.8, 1.2))
	assert.Equal(t, 1.0, Clip(1.0, 0.8, 1.2))
}

func TestMaskedMean(t *testing.T) {
	t.Run("only masked positions count", func(t *testing.T) {
		x := [][]float64{{1, 100}, {3, 200}}
		mask := [][]bool{{true, false}, {true, false}}

		assert.InDelta(t, 2.0, MaskedMean(x, mask), 1e-9)
	})

	t.Run("all false mask yields zero", func(t *testing.T) {
		x := [][]float64{{1, 2}}
		mask := [][]bool{{false, false}}

		assert.Zero(t, MaskedMean(x, mask))
	})
}

func TestApplyMask(t *testing.T) {
	x := [][]float64{{1, 2}, {3, 4}}
	mask := [][]bool{{true, false}, {false, true}}

	out := ApplyMask(x, mask)

	assert.Equal(t, [][]float64{{1, 0}, {0, 4}}, out)
	// 原矩阵保持不变
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, x)
}

func TestMeanAndMax(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, Mean(nil))
	assert.Equal(t, 3.0, Max([]float64{1, 3, 2}))
	assert.True(t, math.IsInf(Max(nil), -1))
}

func TestRowLastTrue(t *testing.T) {
	assert.Equal(t, 2, RowLastTrue([]bool{true, false, true, false}))
	assert.Equal(t, -1, RowLastTrue([]bool{false, false}))
}

func TestPadTokenRows(t *testing.T) {
	out := PadTokenRows([][]int64{{5}, {6, 7}}, 3, 0)

	assert.Equal(t, [][]int64{{5, 0, 0}, {6, 7, 0}}, out)
}

func TestMaskedSumMean(t *testing.T) {
	t.Run("rows weigh equally regardless of length", func(t *testing.T) {
		// 行和分别为 3 与 4,行均值 3.5;逐元素均值会是 7/3
		x := [][]float64{{1, 2, 50}, {4, 60, 70}}
		mask := [][]bool{{true, true, false}, {true, false, false}}

		assert.InDelta(t, 3.5, MaskedSumMean(x, mask), 1e-9)
		assert.InDelta(t, 7.0/3.0, MaskedMean(x, mask), 1e-9)
	})

	t.Run("empty input yields zero", func(t *testing.T) {
		assert.Zero(t, MaskedSumMean(nil, nil))
	})

	t.Run("all false rows contribute zero sums", func(t *testing.T) {
		x := [][]float64{{5, 5}, {1, 2}}
		mask := [][]bool{{false, false}, {true, true}}

		assert.InDelta(t, 1.5, MaskedSumMean(x, mask), 1e-9)
	})
}

func TestLogSoftmax(t *testing.T) {
	t.Run("output exponentiates to a distribution", func(t *testing.T) {
		out := LogSoftmax([]float64{1, 2, 3})

		sum := 0.0
		for _, lp := range out {
			sum += math.Exp(lp)
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("shift invariant", func(t *testing.T) {
		a := LogSoftmax([]float64{1, 2, 3})
		b := LogSoftmax([]float64{101, 102, 103})

		for i := range a {
			assert.InDelta(t, a[i], b[i], 1e-9)
		}
	})

	t.Run("stable for large magnitudes", func(t *testing.T) {
		out := LogSoftmax([]float64{1000, 999})

		assert.False(t, math.IsNaN(out[0]))
		assert.False(t, math.IsInf(out[0], 0))
		assert.InDelta(t, -math.Log(1+math.Exp(-1)), out[0], 1e-9)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, LogSoftmax(nil))
	})
}

func TestGatherLogProbs(t *testing.T) {
	// 两个位置、词表大小 3;标签取不同下标
	logits := [][][]float64{{
		{0, 0, math.Log(2)},
		{math.Log(3), 0, 0},
	}}
	labels := [][]int64{{2, 0}}

	out := GatherLogProbs(logits, labels)

	assert.InDelta(t, math.Log(2.0/4.0), out[0][0], 1e-9)
	assert.InDelta(t, math.Log(3.0/5.0), out[0][1], 1e-9)
}
