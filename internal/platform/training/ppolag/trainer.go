package ppolag

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/safealign/safealign/internal/observability/logging"
	"github.com/safealign/safealign/internal/observability/metrics"
	"github.com/safealign/safealign/internal/observability/trace"
	"github.com/safealign/safealign/internal/platform/dist"
	"github.com/safealign/safealign/internal/platform/model"
	"github.com/safealign/safealign/internal/platform/training"
	"github.com/safealign/safealign/internal/platform/training/tensor"
	"github.com/safealign/safealign/pkg/config"
	"github.com/safealign/safealign/pkg/errors"
	"github.com/safealign/safealign/pkg/types"
)

// ============================================================================
// Trainer
// ============================================================================

// Trainer 驱动受约束 PPO 的完整训练流程:rollout 生成与打分、
// 对偶变量同步、双流优势估计与三个模型的梯度更新。
type Trainer struct {
	cfg     *config.Config
	models  *model.Set
	backend dist.Backend

	logger    logging.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	publisher training.StepPublisher
	ckptSink  training.CheckpointSink
	runs      training.RunRecorder

	prompts  training.PromptSource
	window   *EpisodeCostWindow
	lagrange *LagrangeController
	genCfg   model.GenerationConfig

	runID      string
	globalStep int
}

// Options 汇集 Trainer 的全部依赖。Publisher、CheckpointSink、
// RunRecorder 可为 nil,表示对应的外部系统未启用。
type Options struct {
	Config  *config.Config
	Models  *model.Set
	Backend dist.Backend
	Prompts training.PromptSource

	Logger  logging.Logger
	Metrics *metrics.Collector
	Tracer  trace.Tracer

	Publisher      training.StepPublisher
	CheckpointSink training.CheckpointSink
	RunRecorder    training.RunRecorder

	// RunID 为空时自动生成
	RunID string
}

// NewTrainer 构建训练器并做启动前校验。
// 两个评论家必须与 actor 共用分词器,否则直接失败;奖励/代价评分
// 模型允许不同的分词器,但此时必须提供 Retokenizer。
func NewTrainer(opts Options) (*Trainer, error) {
	cfg := opts.Config
	m := opts.Models

	actorTok := m.Actor.Tokenizer()
	if !model.SameTokenizer(m.RewardCritic.Tokenizer(), actorTok) ||
		!model.SameTokenizer(m.CostCritic.Tokenizer(), actorTok) {
		return nil, errors.NewFromCode(errors.ErrTokenizerMismatch)
	}
	needsRetok := !model.SameTokenizer(m.Reward.Tokenizer(), actorTok) ||
		!model.SameTokenizer(m.Cost.Tokenizer(), actorTok)
	if needsRetok && m.Retokenizer == nil {
		return nil, errors.NewFromCode(errors.ErrConfigInvalid).
			WithDetails("reason", "scoring tokenizer differs from actor but no retokenizer configured")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.Noop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracer()
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	state := NewLagrangeState(LagrangeOptions{
		Init:      cfg.Lambda.Init,
		Max:       cfg.Lambda.Max,
		LR:        cfg.Lambda.LR,
		Threshold: cfg.Lambda.Threshold,
	})

	return &Trainer{
		cfg:       cfg,
		models:    m,
		backend:   opts.Backend,
		logger:    logger,
		metrics:   collector,
		tracer:    tracer,
		publisher: opts.Publisher,
		ckptSink:  opts.CheckpointSink,
		runs:      opts.RunRecorder,
		prompts:   opts.Prompts,
		window:    NewEpisodeCostWindow(cfg.Lambda.CostWindowSize),
		lagrange:  NewLagrangeController(state, opts.Backend, cfg.Lambda.UpdateDelaySteps),
		genCfg: model.GenerationConfig{
			MaxLength:         cfg.Model.MaxLength,
			Temperature:       cfg.Model.Temperature,
			TopP:              cfg.Model.TopP,
			RepetitionPenalty: cfg.Model.RepetitionPenalty,
			DoSample:          true,
			BOSTokenID:        actorTok.BOSTokenID(),
			EOSTokenID:        actorTok.EOSTokenID(),
			PadTokenID:        actorTok.PadTokenID(),
		},
		runID: runID,
	}, nil
}

// RunID 返回本次训练的标识
func (t *Trainer) RunID() string { return t.runID }

// SetCostThreshold 运行中调整代价阈值
func (t *Trainer) SetCostThreshold(v float64) {
	t.lagrange.State().SetThreshold(v)
}

// LogLambda 返回当前 log_lambda,供外部观测
func (t *Trainer) LogLambda() float64 {
	return t.lagrange.State().LogLambda()
}

// ============================================================================
// Training Loop
// ============================================================================

// Train 执行完整的多轮训练
func (t *Trainer) Train(ctx context.Context) error {
	ctx = logging.WithRunID(ctx, t.runID)
	ctx = logging.WithWorkerRank(ctx, t.backend.Rank())
	log := t.logger.WithContext(ctx)

	log.Info("starting constrained ppo training",
		logging.String("training_type", types.TrainingTypePPOLag.String()),
		logging.Int("epochs", t.cfg.Train.Epochs),
		logging.Int("world_size", t.backend.WorldSize()),
		logging.Float64("lambda_init", t.cfg.Lambda.Init),
		logging.Float64("cost_threshold", t.cfg.Lambda.Threshold),
	)

	// 所有 worker 在此对齐,保证无人抢跑进入第一个 rollout
	if err := t.backend.Barrier(ctx); err != nil {
		return errors.WrapCode(err, errors.ErrTrainStopped)
	}

	if t.runs != nil && t.backend.IsCoordinator() {
		if err := t.runs.Start(ctx, t.runID, t.cfg.Run.Name); err != nil {
			return err
		}
	}

	err := t.trainEpochs(ctx)

	if t.runs != nil && t.backend.IsCoordinator() {
		status := types.RunStatusCompleted
		if err != nil {
			status = types.RunStatusFailed
			if errors.Is(err, errors.ErrTrainStopped.Code) {
				status = types.RunStatusCancelled
			}
		}
		if ferr := t.runs.Finish(context.WithoutCancel(ctx), t.runID, status.String()); ferr != nil {
			log.Error("failed to record run status", logging.Error(ferr))
		}
	}

	return err
}

func (t *Trainer) trainEpochs(ctx context.Context) error {
	for epoch := 0; epoch < t.cfg.Train.Epochs; epoch++ {
		if err := t.trainEpoch(ctx, epoch); err != nil {
			return err
		}
		if err := t.saveCheckpoint(ctx, epochTag(epoch)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int) error {
	log := t.logger.WithContext(ctx)
	t.prompts.Reset()

	for {
		if ctx.Err() != nil {
			return errors.WrapCode(ctx.Err(), errors.ErrTrainStopped)
		}

		prompts, err := t.prompts.Next(ctx)
		if err != nil {
			return err
		}
		if prompts == nil {
			break
		}

		micros, err := t.rollout(ctx, prompts)
		if err != nil {
			return err
		}

		for iter := 0; iter < t.cfg.Train.UpdateIters; iter++ {
			for _, micro := range micros {
				start := time.Now()
				info, err := t.rlStep(ctx, micro)
				if err != nil {
					return err
				}
				t.globalStep++
				t.metrics.ObserveStepDuration(time.Since(start).Seconds())
				t.emit(ctx, epoch, info)

				if t.globalStep%t.cfg.Train.SaveInterval == 0 {
					if err := t.saveCheckpoint(ctx, stepTag(t.globalStep)); err != nil {
						return err
					}
				}
			}
		}

		log.Debug("prompt batch processed",
			logging.Int("epoch", epoch),
			logging.Int("global_step", t.globalStep),
		)
	}

	return nil
}

// ============================================================================
// RL Step
// ============================================================================

// rlStep 在一个微批次上执行一次完整的强化学习更新:
// 同步对偶变量、合成双流、估计优势、依次更新 actor 与两个评论家,
// 最后做指标全局归约并在屏障处对齐各 worker。
func (t *Trainer) rlStep(ctx context.Context, micro *training.MicroBatch) (map[string]float64, error) {
	ctx, span := t.tracer.Start(ctx, "Trainer.rlStep")
	defer span.End()

	mask := micro.ResponseMask
	spanStart := training.SpanStart(micro.PromptLen)
	spanLen := micro.Span()
	cfg := t.cfg.Train

	logLambda, _, err := t.lagrange.Step(ctx, t.window.Mean(), t.globalStep)
	if err != nil {
		return nil, err
	}
	lambda := math.Exp(logLambda)

	shaped := ShapeStreams(micro.LogProbs, micro.RefLogProbs, mask,
		micro.Reward, micro.Cost, cfg.KLCoeff, cfg.ClipRangeScore)

	rewardAdv, rewardRet := EstimateAdvantages(micro.RewardValues, shaped.Rewards, mask, cfg.Gamma, cfg.GAELambda)
	costAdv, costRet := EstimateAdvantages(micro.CostValues, shaped.Costs, mask, cfg.Gamma, cfg.GAELambda)

	// Actor 更新:重算 logits,gather 当前策略下realized token 的
	// 对数概率,再把损失梯度展开回 logit 空间交给模型侧
	newLogits, err := t.models.Actor.Logits(ctx, micro.Sequences, spanStart, spanLen)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainGeneration)
	}
	labels := realizedTokens(micro.Sequences, spanStart, spanLen)
	newLogProbs := tensor.GatherLogProbs(newLogits, labels)
	blended := BlendAdvantages(rewardAdv, costAdv, lambda)
	actorLoss := ActorLoss(newLogProbs, micro.LogProbs, blended, mask, cfg.ClipRangeRatio)
	actorLoss.LogitGrads = LogitGrads(newLogits, labels, actorLoss.Grads)
	if err := t.models.Actor.Backward(ctx, actorLoss); err != nil {
		return nil, err
	}
	if err := t.models.Actor.Step(ctx); err != nil {
		return nil, err
	}

	// 奖励评论家更新
	rewardOut, err := t.models.RewardCritic.Score(ctx, micro.Sequences, spanStart, spanLen)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainScoring)
	}
	rewardCriticLoss := CriticLoss(rewardOut.Values, micro.RewardValues, rewardRet, mask, cfg.ClipRangeValue)
	if err := t.models.RewardCritic.Backward(ctx, rewardCriticLoss); err != nil {
		return nil, err
	}
	if err := t.models.RewardCritic.Step(ctx); err != nil {
		return nil, err
	}

	// 代价评论家更新
	costOut, err := t.models.CostCritic.Score(ctx, micro.Sequences, spanStart, spanLen)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrTrainScoring)
	}
	costCriticLoss := CriticLoss(costOut.Values, micro.CostValues, costRet, mask, cfg.ClipRangeValue)
	if err := t.models.CostCritic.Backward(ctx, costCriticLoss); err != nil {
		return nil, err
	}
	if err := t.models.CostCritic.Step(ctx); err != nil {
		return nil, err
	}

	genLens := make([]float64, len(micro.ResponseLens))
	for i, r := range micro.ResponseLens {
		genLens[i] = float64(r)
	}

	info := map[string]float64{
		"train/actor_loss":              actorLoss.Value,
		"train/reward_critic_loss":      rewardCriticLoss.Value,
		"train/cost_critic_loss":        costCriticLoss.Value,
		"train/reward":                  tensor.Mean(micro.Reward),
		"train/cost":                    tensor.Mean(micro.Cost),
		"train/log_lambda":              logLambda,
		"train/reward_with_kl_penalty":  tensor.MaskedSumMean(shaped.Rewards, mask),
		"train/cost_with_kl_penalty":    tensor.MaskedSumMean(shaped.Costs, mask),
		"train/reward_advantage":        tensor.MaskedMean(rewardAdv, mask),
		"train/cost_advantage":          tensor.MaskedMean(costAdv, mask),
		"train/reward_return":           tensor.MaskedMean(rewardRet, mask),
		"train/cost_return":             tensor.MaskedMean(costRet, mask),
		"train/reward_value":            tensor.MaskedMean(rewardOut.Values, mask),
		"train/cost_value":              tensor.MaskedMean(costOut.Values, mask),
		"train/kl_divergence":           tensor.MaskedMean(shaped.KL, mask),
		"train/mean_generated_length":   tensor.Mean(genLens),
		"train/max_generated_length":    tensor.Max(genLens),
	}

	if err := t.reduceMetrics(ctx, info); err != nil {
		return nil, err
	}
	if err := t.backend.Barrier(ctx); err != nil {
		return nil, err
	}

	return info, nil
}

// reduceMetrics 对指标做全局归约,生成长度上限取最大值,其余取均值
func (t *Trainer) reduceMetrics(ctx context.Context, info map[string]float64) error {
	for _, key := range metricKeys {
		var (
			reduced float64
			err     error
		)
		if key == "train/max_generated_length" {
			reduced, err = t.backend.AllReduceMax(ctx, info[key])
		} else {
			reduced, err = t.backend.AllReduceMean(ctx, info[key])
		}
		if err != nil {
			return err
		}
		info[key] = reduced
	}
	return nil
}

// metricKeys 固定归约顺序,保证各 worker 的集合调用一一对应
var metricKeys = []string{
	"train/actor_loss",
	"train/reward_critic_loss",
	"train/cost_critic_loss",
	"train/reward",
	"train/cost",
	"train/log_lambda",
	"train/reward_with_kl_penalty",
	"train/cost_with_kl_penalty",
	"train/reward_advantage",
	"train/cost_advantage",
	"train/reward_return",
	"train/cost_return",
	"train/reward_value",
	"train/cost_value",
	"train/kl_divergence",
	"train/mean_generated_length",
	"train/max_generated_length",
}

// ============================================================================
// Emission and Checkpoints
// ============================================================================

// emit 把一步的指标写到日志、Prometheus 与可选的外部发布器
func (t *Trainer) emit(ctx context.Context, epoch int, info map[string]float64) {
	log := t.logger.WithContext(ctx)
	log.Info("training step",
		logging.Int("global_step", t.globalStep),
		logging.Int("epoch", epoch),
		logging.Float64("actor_loss", info["train/actor_loss"]),
		logging.Float64("reward", info["train/reward"]),
		logging.Float64("cost", info["train/cost"]),
		logging.Float64("log_lambda", info["train/log_lambda"]),
	)

	t.metrics.RecordStep(t.runID, info)

	if !t.backend.IsCoordinator() {
		return
	}

	if t.publisher != nil {
		record := &training.StepRecord{
			RunID:     t.runID,
			Step:      t.globalStep,
			Epoch:     epoch,
			Metrics:   info,
			Timestamp: time.Now().UTC(),
		}
		if err := t.publisher.Publish(ctx, record); err != nil {
			log.Warn("failed to publish step record", logging.Error(err))
		}
	}

	if t.runs != nil {
		if err := t.runs.Progress(ctx, t.runID, t.globalStep); err != nil {
			log.Warn("failed to record run progress", logging.Error(err))
		}
	}
}

// saveCheckpoint 保存三个可训练模型并登记清单
func (t *Trainer) saveCheckpoint(ctx context.Context, tag string) error {
	log := t.logger.WithContext(ctx)

	paths := make([]string, 0, 3)
	for _, m := range []model.Trainable{t.models.Actor, t.models.RewardCritic, t.models.CostCritic} {
		path, err := m.Save(ctx, tag)
		if err != nil {
			return errors.WrapCode(err, errors.ErrInfraCheckpoint)
		}
		paths = append(paths, path)
	}

	if t.ckptSink != nil && t.backend.IsCoordinator() {
		ckpt := &training.Checkpoint{
			RunID:   t.runID,
			Tag:     tag,
			Step:    t.globalStep,
			Paths:   paths,
			SavedAt: time.Now().UTC(),
		}
		if err := t.ckptSink.Record(ctx, ckpt); err != nil {
			log.Warn("failed to record checkpoint manifest", logging.Error(err))
		}
	}

	log.Info("checkpoint saved", logging.String("tag", tag), logging.Int("global_step", t.globalStep))
	return t.backend.Barrier(ctx)
}

func epochTag(epoch int) string {
	return "epoch_" + strconv.Itoa(epoch)
}

func stepTag(step int) string {
	return "step_" + strconv.Itoa(step)
}
