// Package model 定义训练器与外部模型服务之间的契约。
// 策略、参考、评分与评论家模型都通过窄接口接入，训练核心只依赖
// 这些接口而不关心模型的实际执行位置(本地进程、gRPC 服务或推理集群)。
package model

import (
	"context"
)

// ============================================================================
// Tokenizer
// ============================================================================

// Tokenizer 暴露训练核心需要的分词器属性与编解码操作
type Tokenizer interface {
	// Encode 将文本编码为 token 序列
	Encode(text string) ([]int64, error)

	// Decode 将 token 序列解码为文本,跳过特殊 token
	Decode(ids []int64) (string, error)

	// PadTokenID 返回 padding token 的 ID
	PadTokenID() int64

	// EOSTokenID 返回序列结束 token 的 ID
	EOSTokenID() int64

	// BOSTokenID 返回序列起始 token 的 ID,无则返回 -1
	BOSTokenID() int64

	// UnkTokenID 返回未知 token 的 ID,无则返回 -1
	UnkTokenID() int64

	// Fingerprint 返回词表指纹,用于判断两个分词器是否等价
	Fingerprint() string
}

// SameTokenizer 判断两个分词器是否产生相同的 token 空间
func SameTokenizer(a, b Tokenizer) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Fingerprint() == b.Fingerprint()
}

// ============================================================================
// Batches
// ============================================================================

// Batch 是一个右侧对齐的 token 批次,可选携带视觉输入。
// AttentionMask 与 InputIDs 形状一致,真值标记有效 token。
type Batch struct {
	// InputIDs 形状为 [batch, seq_len] 的 token 矩阵
	InputIDs [][]int64

	// AttentionMask 与 InputIDs 同形,标记非 padding 位置
	AttentionMask [][]bool

	// PixelValues 扁平化的图像 patch 行,按样本顺序拼接
	PixelValues [][]float64

	// ImageSizes 每个样本占用的 patch 行数,与 PixelValues 的切分对应。
	// 为空时表示纯文本批次。
	ImageSizes []int
}

// Size 返回批次中的样本数
func (b *Batch) Size() int {
	return len(b.InputIDs)
}

// SeqLen 返回批次的序列长度,空批次返回 0
func (b *Batch) SeqLen() int {
	if len(b.InputIDs) == 0 {
		return 0
	}
	return len(b.InputIDs[0])
}

// HasVision 判断批次是否携带视觉输入
func (b *Batch) HasVision() bool {
	return len(b.ImageSizes) > 0
}

// ============================================================================
// Generation
// ============================================================================

// GenerationConfig 控制解码行为。特殊 token 由调用方从分词器契约
// 装配,解码器不依赖策略内部绑定的分词器。
type GenerationConfig struct {
	// MaxLength 提示与回复的总长度上限
	MaxLength int

	// Temperature 采样温度
	Temperature float64

	// TopP 核采样阈值
	TopP float64

	// RepetitionPenalty 重复惩罚系数
	RepetitionPenalty float64

	// DoSample 为真时随机采样,否则贪心解码
	DoSample bool

	// BOSTokenID 序列起始 token,无则为 -1
	BOSTokenID int64

	// EOSTokenID 序列结束 token
	EOSTokenID int64

	// PadTokenID 解码后右侧填充使用的 token
	PadTokenID int64
}

// ============================================================================
// Policy Models
// ============================================================================

// Policy 是可生成、可求对数概率的语言模型句柄
type Policy interface {
	// Generate 从提示批次解码完整序列(提示在前,回复在后,右侧 padding)
	Generate(ctx context.Context, batch *Batch, cfg GenerationConfig) (*Batch, error)

	// Logits 返回位移窗口内逐位置的词表 logits,形状
	// [batch, span, vocab]。位置 t 的 logits 预测 token
	// spanStart+1+t;对数概率的提取(log-softmax 与按realized
	// token 的 gather)由训练核心完成。
	Logits(ctx context.Context, batch *Batch, spanStart, spanLen int) ([][][]float64, error)

	// Tokenizer 返回该模型绑定的分词器
	Tokenizer() Tokenizer
}

// Trainable 是支持梯度更新的模型句柄
type Trainable interface {
	// Backward 对给定标量损失做反向传播并累积梯度
	Backward(ctx context.Context, loss *LossNode) error

	// Step 应用累积梯度并清零
	Step(ctx context.Context) error

	// SetTrain 切换训练/评估模式
	SetTrain(train bool)

	// Save 将当前权重保存到 tag 命名的检查点
	Save(ctx context.Context, tag string) (string, error)
}

// TrainablePolicy 组合策略推理与梯度更新能力
type TrainablePolicy interface {
	Policy
	Trainable
}

// ============================================================================
// Value Models
// ============================================================================

// ScoreOutput 是评分模型一次前向的输出
type ScoreOutput struct {
	// EndScores 每个序列最后有效位置的标量分数
	EndScores []float64

	// Values 每个位置的标量值估计,形状 [batch, span]
	Values [][]float64
}

// ValueModel 是输出逐位置标量值的模型句柄(评分模型与评论家共用)
type ValueModel interface {
	// Score 返回批次在给定位移窗口内的逐位置值与末端分数
	Score(ctx context.Context, batch *Batch, spanStart, spanLen int) (*ScoreOutput, error)

	// Tokenizer 返回该模型绑定的分词器
	Tokenizer() Tokenizer
}

// TrainableValueModel 组合值估计与梯度更新能力
type TrainableValueModel interface {
	ValueModel
	Trainable
}

// ============================================================================
// Loss Graph Handle
// ============================================================================

// LossNode 是一次前向计算返回的损失句柄。训练核心计算出标量损失值
// 与上游梯度,供外部执行引擎完成链式法则。
type LossNode struct {
	// Value 标量损失值
	Value float64

	// Grads 对逐位置标量输出(值估计或 gather 后的对数概率)的梯度,
	// 形状 [batch, span]
	Grads [][]float64

	// LogitGrads 策略损失在 logit 空间的展开梯度,形状
	// [batch, span, vocab];值模型损失不设置该字段
	LogitGrads [][][]float64
}

// ============================================================================
// Model Set and Loader
// ============================================================================

// Retokenizer 在两个 token 空间之间转换序列(先解码再重编码)
type Retokenizer interface {
	Retokenize(ctx context.Context, ids []int64, from, to Tokenizer) ([]int64, error)
}

// Set 汇集一次受约束 PPO 训练所需的全部模型句柄
type Set struct {
	// Actor 被优化的策略
	Actor TrainablePolicy

	// Reference 冻结的 KL 参考策略
	Reference Policy

	// Reward 奖励评分模型
	Reward ValueModel

	// RewardCritic 奖励值函数
	RewardCritic TrainableValueModel

	// Cost 代价评分模型
	Cost ValueModel

	// CostCritic 代价值函数
	CostCritic TrainableValueModel

	// Retokenizer 当评分模型分词器与 actor 不同时使用,可为 nil
	Retokenizer Retokenizer
}

// LoaderFunc 按配置构建一组模型句柄
type LoaderFunc func(ctx context.Context, opts LoaderOptions) (*Set, error)

// LoaderOptions 传递给模型加载器的参数
type LoaderOptions struct {
	ActorPath        string
	RewardPath       string
	RewardCriticPath string
	CostPath         string
	CostCriticPath   string
}

var loaders = map[string]LoaderFunc{}

// RegisterLoader 注册一个命名的模型加载器
func RegisterLoader(name string, fn LoaderFunc) {
	loaders[name] = fn
}

// GetLoader 按名称查找模型加载器
func GetLoader(name string) (LoaderFunc, bool) {
	fn, ok := loaders[name]
	return fn, ok
}
