package ppolag

import (
	"context"

	"github.com/safealign/safealign/internal/observability/logging"
	"github.com/safealign/safealign/internal/platform/model"
	"github.com/safealign/safealign/internal/platform/training"
	"github.com/safealign/safealign/internal/platform/training/tensor"
	"github.com/safealign/safealign/pkg/errors"
)

// ============================================================================
// Rollout Phase
// ============================================================================

// splitPromptBatch 把提示批次按微批次大小切分。视觉输入的 patch 行
// 按每个样本的行数(ImageSizes)累计切片,保证图像与其样本同行。
func splitPromptBatch(batch *model.Batch, size int) []*model.Batch {
	n := batch.Size()
	var out []*model.Batch

	pixelOffset := 0
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}

		mb := &model.Batch{
			InputIDs:      batch.InputIDs[start:end],
			AttentionMask: batch.AttentionMask[start:end],
		}

		if batch.HasVision() {
			rows := 0
			for _, s := range batch.ImageSizes[start:end] {
				rows += s
			}
			mb.PixelValues = batch.PixelValues[pixelOffset : pixelOffset+rows]
			mb.ImageSizes = batch.ImageSizes[start:end]
			pixelOffset += rows
		}

		out = append(out, mb)
	}

	return out
}

// realizedTokens 取出位移窗口内每个位置实际生成的 token:
// 位置 t 的 logits 预测下一个 token,对应序列下标 spanStart+1+t。
func realizedTokens(seqs *model.Batch, spanStart, span int) [][]int64 {
	out := make([][]int64, seqs.Size())
	for i, row := range seqs.InputIDs {
		labels := make([]int64, span)
		for t := 0; t < span; t++ {
			labels[t] = row[spanStart+1+t]
		}
		out[i] = labels
	}
	return out
}

// rollout 对一个提示批次完成生成与打分,产出训练微批次。
// 每个微批次依次经过:策略解码、注意力掩码重建、新旧对数概率计算、
// 奖励与代价打分、评论家值估计。代价标量同时写入滑动窗口。
func (t *Trainer) rollout(ctx context.Context, prompts *model.Batch) ([]*training.MicroBatch, error) {
	ctx, span := t.tracer.Start(ctx, "Trainer.rollout")
	defer span.End()

	t.models.Actor.SetTrain(false)

	var out []*training.MicroBatch
	for _, mb := range splitPromptBatch(prompts, t.cfg.Train.PerDeviceTrainBatchSize) {
		micro, err := t.rolloutMicro(ctx, mb)
		if err != nil {
			return nil, err
		}
		out = append(out, micro)
	}

	t.models.Actor.SetTrain(true)
	return out, nil
}

func (t *Trainer) rolloutMicro(ctx context.Context, prompts *model.Batch) (*training.MicroBatch, error) {
	tok := t.models.Actor.Tokenizer()
	promptLen := prompts.SeqLen()

	seqs, err := t.models.Actor.Generate(ctx, prompts, t.genCfg)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainGeneration)
	}

	// 生成后的注意力掩码由 token 内容重建,padding 与 unknown 记为无效
	seqs.AttentionMask = make([][]bool, seqs.Size())
	responseLens := make([]int, seqs.Size())
	for i, row := range seqs.InputIDs {
		if err := training.ValidateSequence(len(row), promptLen); err != nil {
			return nil, err
		}
		seqs.AttentionMask[i] = training.AttentionMask(row, tok.PadTokenID(), tok.UnkTokenID())
		responseLens[i] = training.ResponseLength(row, promptLen, tok.PadTokenID())
	}

	span := 0
	for _, r := range responseLens {
		if r > span {
			span = r
		}
	}
	spanStart := training.SpanStart(promptLen)
	mask := training.BuildResponseMask(responseLens, span)
	labels := realizedTokens(seqs, spanStart, span)

	logits, err := t.models.Actor.Logits(ctx, seqs, spanStart, span)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainGeneration)
	}
	refLogits, err := t.models.Reference.Logits(ctx, seqs, spanStart, span)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainGeneration)
	}
	logProbs := tensor.GatherLogProbs(logits, labels)
	refLogProbs := tensor.GatherLogProbs(refLogits, labels)
	if err := training.ValidateSpanShapes(span, logProbs, refLogProbs); err != nil {
		return nil, err
	}

	reward, err := t.score(ctx, t.models.Reward, seqs, spanStart, span)
	if err != nil {
		return nil, err
	}
	cost, err := t.score(ctx, t.models.Cost, seqs, spanStart, span)
	if err != nil {
		return nil, err
	}
	t.window.Push(cost...)

	rewardOut, err := t.models.RewardCritic.Score(ctx, seqs, spanStart, span)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainScoring)
	}
	costOut, err := t.models.CostCritic.Score(ctx, seqs, spanStart, span)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainScoring)
	}
	if err := training.ValidateSpanShapes(span, rewardOut.Values, costOut.Values); err != nil {
		return nil, err
	}

	t.logger.WithContext(ctx).Debug("rollout micro batch complete",
		logging.Int("batch", seqs.Size()),
		logging.Int("span", span),
	)

	return &training.MicroBatch{
		Sequences:    seqs,
		PromptLen:    promptLen,
		ResponseLens: responseLens,
		ResponseMask: mask,
		LogProbs:     logProbs,
		RefLogProbs:  refLogProbs,
		Reward:       reward,
		Cost:         cost,
		RewardValues: rewardOut.Values,
		CostValues:   costOut.Values,
	}, nil
}

// score 用评分模型给完整序列打分,返回每条轨迹的末端标量。
// 评分模型的分词器与 actor 不同时,先经 Retokenizer 换到其 token 空间。
func (t *Trainer) score(ctx context.Context, scorer model.ValueModel, seqs *model.Batch, spanStart, span int) ([]float64, error) {
	batch := seqs
	if !model.SameTokenizer(scorer.Tokenizer(), t.models.Actor.Tokenizer()) {
		retok, err := t.retokenize(ctx, seqs, scorer.Tokenizer())
		if err != nil {
			return nil, err
		}
		batch = retok
	}

	out, err := scorer.Score(ctx, batch, spanStart, span)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainScoring)
	}
	return out.EndScores, nil
}

// retokenize 把整个批次转换到目标分词器的 token 空间并重新 padding
func (t *Trainer) retokenize(ctx context.Context, seqs *model.Batch, to model.Tokenizer) (*model.Batch, error) {
	from := t.models.Actor.Tokenizer()

	rows := make([][]int64, seqs.Size())
	width := 0
	for i, row := range seqs.InputIDs {
		ids, err := t.models.Retokenizer.Retokenize(ctx, row, from, to)
		if err != nil {
			return nil, errors.WrapCode(err, errors.ErrTrainScoring)
		}
		rows[i] = ids
		if len(ids) > width {
			width = len(ids)
		}
	}

	padded := tensor.PadTokenRows(rows, width, to.PadTokenID())
	masks := make([][]bool, len(padded))
	for i, row := range padded {
		masks[i] = training.AttentionMask(row, to.PadTokenID(), to.UnkTokenID())
	}

	return &model.Batch{
		InputIDs:      padded,
		AttentionMask: masks,
		PixelValues:   seqs.PixelValues,
		ImageSizes:    seqs.ImageSizes,
	}, nil
}
