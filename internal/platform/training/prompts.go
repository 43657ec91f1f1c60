package training

import (
	"bufio"
	"context"
	"math/rand"
	"os"
	"strings"

	"github.com/safealign/safealign/internal/platform/model"
	"github.com/safealign/safealign/pkg/errors"
)

// ============================================================================
// Text Prompt Source
// ============================================================================

// TextPromptSource 从内存中的文本提示列表构造批次。提示在编码后
// 左侧 padding 对齐,使同一批次共享提示长度,回复从同一位置开始。
// 每轮遍历可选打乱顺序。
type TextPromptSource struct {
	prompts   []string
	tok       model.Tokenizer
	batchSize int

	shuffle bool
	rng     *rand.Rand
	order   []int
	pos     int
}

// NewTextPromptSource 创建提示源
func NewTextPromptSource(prompts []string, tok model.Tokenizer, batchSize int, shuffle bool, seed int64) (*TextPromptSource, error) {
	if len(prompts) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter,
			"prompt dataset is empty")
	}
	if batchSize < 1 {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter,
			"prompt batch size must be positive")
	}

	order := make([]int, len(prompts))
	for i := range order {
		order[i] = i
	}

	return &TextPromptSource{
		prompts:   prompts,
		tok:       tok,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     order,
	}, nil
}

// NewTextPromptSourceFromFile 从文本文件加载提示,每行一条,空行跳过
func NewTextPromptSourceFromFile(path string, tok model.Tokenizer, batchSize int, shuffle bool, seed int64) (*TextPromptSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrConfigNotFound)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapCode(err, errors.ErrConfigInvalid)
	}

	return NewTextPromptSource(prompts, tok, batchSize, shuffle, seed)
}

// Reset 开始新一轮遍历
func (s *TextPromptSource) Reset() {
	s.pos = 0
	if s.shuffle {
		s.rng.Shuffle(len(s.order), func(i, j int) {
			s.order[i], s.order[j] = s.order[j], s.order[i]
		})
	}
}

// Len 返回每轮的批次数
func (s *TextPromptSource) Len() int {
	return (len(s.prompts) + s.batchSize - 1) / s.batchSize
}

// Next 返回下一个提示批次,本轮耗尽时返回 nil
func (s *TextPromptSource) Next(ctx context.Context) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCancelled, "prompt iteration cancelled")
	}
	if s.pos >= len(s.order) {
		return nil, nil
	}

	end := s.pos + s.batchSize
	if end > len(s.order) {
		end = len(s.order)
	}

	rows := make([][]int64, 0, end-s.pos)
	width := 0
	for _, idx := range s.order[s.pos:end] {
		ids, err := s.tok.Encode(s.prompts[idx])
		if err != nil {
			return nil, errors.WrapCode(err, errors.ErrTrainGeneration)
		}
		rows = append(rows, ids)
		if len(ids) > width {
			width = len(ids)
		}
	}
	s.pos = end

	// 左侧 padding:批内提示右对齐,回复从共享的位置开始
	padID := s.tok.PadTokenID()
	inputIDs := make([][]int64, len(rows))
	masks := make([][]bool, len(rows))
	for i, ids := range rows {
		padded := make([]int64, width)
		mask := make([]bool, width)
		offset := width - len(ids)
		for j := 0; j < offset; j++ {
			padded[j] = padID
		}
		copy(padded[offset:], ids)
		for j := offset; j < width; j++ {
			mask[j] = true
		}
		inputIDs[i] = padded
		masks[i] = mask
	}

	return &model.Batch{InputIDs: inputIDs, AttentionMask: masks}, nil
}
