package ppolag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safealign/safealign/internal/platform/model"
)

func TestSplitPromptBatch(t *testing.T) {
	t.Run("text batch splits by rows", func(t *testing.T) {
		batch := &model.Batch{
			InputIDs:      [][]int64{{1}, {2}, {3}, {4}, {5}},
			AttentionMask: [][]bool{{true}, {true}, {true}, {true}, {true}},
		}

		out := splitPromptBatch(batch, 2)

		require.Len(t, out, 3)
		assert.Equal(t, 2, out[0].Size())
		assert.Equal(t, 2, out[1].Size())
		assert.Equal(t, 1, out[2].Size())
		assert.Equal(t, int64(5), out[2].InputIDs[0][0])
	})

	t.Run("pixel rows follow their samples", func(t *testing.T) {
		// 三个样本分别占 2、1、3 行 patch
		batch := &model.Batch{
			InputIDs:      [][]int64{{1}, {2}, {3}},
			AttentionMask: [][]bool{{true}, {true}, {true}},
			PixelValues: [][]float64{
				{0.1}, {0.2}, // 样本 0
				{0.3},        // 样本 1
				{0.4}, {0.5}, {0.6}, // 样本 2
			},
			ImageSizes: []int{2, 1, 3},
		}

		out := splitPromptBatch(batch, 2)

		require.Len(t, out, 2)

		first := out[0]
		assert.Equal(t, []int{2, 1}, first.ImageSizes)
		require.Len(t, first.PixelValues, 3)
		assert.Equal(t, 0.1, first.PixelValues[0][0])
		assert.Equal(t, 0.3, first.PixelValues[2][0])

		second := out[1]
		assert.Equal(t, []int{3}, second.ImageSizes)
		require.Len(t, second.PixelValues, 3)
		assert.Equal(t, 0.4, second.PixelValues[0][0])
		assert.Equal(t, 0.6, second.PixelValues[2][0])
	})

	t.Run("single oversized batch stays whole", func(t *testing.T) {
		batch := &model.Batch{
			InputIDs:      [][]int64{{1}, {2}},
			AttentionMask: [][]bool{{true}, {true}},
		}

		out := splitPromptBatch(batch, 10)

		require.Len(t, out, 1)
		assert.Equal(t, 2, out[0].Size())
	})
}

func TestRealizedTokens(t *testing.T) {
	// 提示长度 2,窗口从下标 1 开始:位置 t 的 logits 预测 token t+2,
	// 因此标签是 seq[2:5]
	seqs := &model.Batch{InputIDs: [][]int64{{10, 11, 12, 13, 14}}}

	labels := realizedTokens(seqs, 1, 3)

	require.Len(t, labels, 1)
	assert.Equal(t, []int64{12, 13, 14}, labels[0])
}
