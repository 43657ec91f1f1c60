package training

import (
	"github.com/safealign/safealign/pkg/errors"
)

// ============================================================================
// Sequence Alignment
// ============================================================================
//
// 自回归模型在位置 i 的输出预测 token i+1。因此对于提示长度 P、回复
// 长度 R 的序列,回复 token 是 seq[P : P+R],而对应的对数概率与值
// 估计取自位移窗口 [P-1, P-1+R)。本文件集中实现这一对齐约定,
// 训练核心的其余部分不再直接做下标运算。

// SpanStart 返回位移窗口的起始下标
func SpanStart(promptLen int) int {
	return promptLen - 1
}

// ResponseLength 返回去掉尾部 padding 后的回复长度
func ResponseLength(seq []int64, promptLen int, padID int64) int {
	end := len(seq)
	for end > promptLen && seq[end-1] == padID {
		end--
	}
	return end - promptLen
}

// ResponseTokens 返回序列中realized 的回复 token
func ResponseTokens(seq []int64, promptLen, responseLen int) []int64 {
	return seq[promptLen : promptLen+responseLen]
}

// AttentionMask 由 token 内容重建注意力掩码,padding 与 unknown
// token 记为无效。unkID 为负表示分词器没有 unknown token。
func AttentionMask(seq []int64, padID, unkID int64) []bool {
	mask := make([]bool, len(seq))
	for i, tok := range seq {
		mask[i] = tok != padID && (unkID < 0 || tok != unkID)
	}
	return mask
}

// BuildResponseMask 由各轨迹的回复长度构建 [batch, span] 掩码
func BuildResponseMask(responseLens []int, span int) [][]bool {
	mask := make([][]bool, len(responseLens))
	for i, rlen := range responseLens {
		row := make([]bool, span)
		for t := 0; t < rlen && t < span; t++ {
			row[t] = true
		}
		mask[i] = row
	}
	return mask
}

// ValidateSequence 校验生成序列相对提示长度是否可用
func ValidateSequence(seqLen, promptLen int) error {
	if promptLen < 1 {
		return errors.NewFromCode(errors.ErrTrainShortSequence).
			WithDetails("prompt_len", promptLen)
	}
	if seqLen <= promptLen {
		return errors.NewFromCode(errors.ErrTrainShortSequence).
			WithDetails("seq_len", seqLen).
			WithDetails("prompt_len", promptLen)
	}
	return nil
}

// ValidateSpanShapes 校验逐位置张量与掩码形状一致
func ValidateSpanShapes(span int, rows ...[][]float64) error {
	for _, mat := range rows {
		for _, row := range mat {
			if len(row) != span {
				return errors.NewFromCode(errors.ErrTrainLengthMismatch).
					WithDetails("want", span).
					WithDetails("got", len(row))
			}
		}
	}
	return nil
}
