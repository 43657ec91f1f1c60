package training

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokenizer 把每个空白分隔的词编码为一个 token,长度决定 ID
type wordTokenizer struct {
	fingerprint string
}

func (tk *wordTokenizer) Encode(text string) ([]int64, error) {
	words := strings.Fields(text)
	ids := make([]int64, len(words))
	for i, w := range words {
		ids[i] = int64(100 + len(w))
	}
	return ids, nil
}

func (tk *wordTokenizer) Decode(ids []int64) (string, error) {
	return strings.Repeat("x ", len(ids)), nil
}

func (tk *wordTokenizer) PadTokenID() int64 { return 0 }
func (tk *wordTokenizer) EOSTokenID() int64 { return 2 }
func (tk *wordTokenizer) BOSTokenID() int64 { return 1 }
func (tk *wordTokenizer) UnkTokenID() int64 { return -1 }
func (tk *wordTokenizer) Fingerprint() string {
	if tk.fingerprint != "" {
		return tk.fingerprint
	}
	return "word-v1"
}

func TestTextPromptSource(t *testing.T) {
	tok := &wordTokenizer{}
	ctx := context.Background()

	t.Run("rejects empty datasets", func(t *testing.T) {
		_, err := NewTextPromptSource(nil, tok, 2, false, 1)
		assert.Error(t, err)
	})

	t.Run("prompts are left padded to a shared length", func(t *testing.T) {
		src, err := NewTextPromptSource([]string{"a bb ccc", "dd"}, tok, 2, false, 1)
		require.NoError(t, err)
		src.Reset()

		batch, err := src.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, batch)

		assert.Equal(t, 2, batch.Size())
		assert.Equal(t, 3, batch.SeqLen())
		assert.Equal(t, []int64{101, 102, 103}, batch.InputIDs[0])
		assert.Equal(t, []int64{0, 0, 102}, batch.InputIDs[1])
		assert.Equal(t, []bool{true, true, true}, batch.AttentionMask[0])
		assert.Equal(t, []bool{false, false, true}, batch.AttentionMask[1])
	})

	t.Run("iteration ends with nil and restarts after reset", func(t *testing.T) {
		src, err := NewTextPromptSource([]string{"one", "two", "three"}, tok, 2, false, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, src.Len())

		src.Reset()
		first, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, first.Size())

		second, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, second.Size())

		end, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Nil(t, end)

		src.Reset()
		again, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, again.Size())
	})

	t.Run("shuffle is deterministic per seed", func(t *testing.T) {
		prompts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

		a, err := NewTextPromptSource(prompts, tok, 5, true, 7)
		require.NoError(t, err)
		b, err := NewTextPromptSource(prompts, tok, 5, true, 7)
		require.NoError(t, err)

		a.Reset()
		b.Reset()
		batchA, err := a.Next(ctx)
		require.NoError(t, err)
		batchB, err := b.Next(ctx)
		require.NoError(t, err)

		assert.Equal(t, batchA.InputIDs, batchB.InputIDs)
	})

	t.Run("cancelled context stops iteration", func(t *testing.T) {
		src, err := NewTextPromptSource([]string{"one"}, tok, 1, false, 1)
		require.NoError(t, err)
		src.Reset()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = src.Next(cancelled)
		assert.Error(t, err)
	})
}
