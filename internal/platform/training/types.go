// Package training 定义强化学习训练核心的共享类型与外部协作接口。
// 具体的受约束 PPO 算法在子包 ppolag 中实现。
package training

import (
	"context"
	"time"

	"github.com/safealign/safealign/internal/platform/model"
)

// ============================================================================
// Rollout Data
// ============================================================================

// MicroBatch 是一次 rollout 切分出的训练微批次。所有逐位置张量的形状
// 都是 [batch, span],span 是该微批次中最长回复的长度,各行以
// ResponseMask 标记有效区间。
type MicroBatch struct {
	// Sequences 完整生成序列(提示在前,回复在后)及其注意力掩码
	Sequences *model.Batch

	// PromptLen 该微批次共享的提示长度 P
	PromptLen int

	// ResponseLens 每条轨迹的回复长度 R_i(去掉尾部 padding)
	ResponseLens []int

	// ResponseMask [batch, span],位置 t 在 t < R_i 时为真
	ResponseMask [][]bool

	// LogProbs 采样时 actor 对realized token 的对数概率
	LogProbs [][]float64

	// RefLogProbs 参考模型对相同 token 的对数概率
	RefLogProbs [][]float64

	// Reward 每条轨迹的标量奖励分数
	Reward []float64

	// Cost 每条轨迹的标量代价分数
	Cost []float64

	// RewardValues 采样时奖励评论家的逐位置值估计
	RewardValues [][]float64

	// CostValues 采样时代价评论家的逐位置值估计
	CostValues [][]float64
}

// Size 返回微批次中的轨迹数
func (m *MicroBatch) Size() int {
	return len(m.ResponseLens)
}

// Span 返回逐位置张量的列数
func (m *MicroBatch) Span() int {
	if len(m.ResponseMask) == 0 {
		return 0
	}
	return len(m.ResponseMask[0])
}

// ============================================================================
// Collaborator Interfaces
// ============================================================================

// PromptSource 按轮次提供提示批次
type PromptSource interface {
	// Reset 开始新一轮遍历
	Reset()

	// Next 返回下一个提示批次,本轮耗尽时返回 nil
	Next(ctx context.Context) (*model.Batch, error)

	// Len 返回每轮的批次数
	Len() int
}

// StepRecord 是一次全局步的指标快照
type StepRecord struct {
	RunID     string             `json:"run_id"`
	Step      int                `json:"step"`
	Epoch     int                `json:"epoch"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

// StepPublisher 将每步指标发布到外部系统
type StepPublisher interface {
	Publish(ctx context.Context, record *StepRecord) error
	Close() error
}

// Checkpoint 描述一次已保存的模型检查点
type Checkpoint struct {
	RunID   string    `json:"run_id" yaml:"run_id"`
	Tag     string    `json:"tag" yaml:"tag"`
	Step    int       `json:"step" yaml:"step"`
	Paths   []string  `json:"paths" yaml:"paths"`
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`
}

// CheckpointSink 登记检查点清单
type CheckpointSink interface {
	Record(ctx context.Context, ckpt *Checkpoint) error
}

// RunRecorder 持久化训练运行的生命周期状态
type RunRecorder interface {
	Start(ctx context.Context, runID, name string) error
	Progress(ctx context.Context, runID string, step int) error
	Finish(ctx context.Context, runID string, status string) error
}
