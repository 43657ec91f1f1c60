package ppolag

import (
	"context"
	"math"
	"sync"

	"github.com/safealign/safealign/internal/platform/dist"
)

// lossBound 限制对偶损失的数值范围,越界时梯度饱和为零
const lossBound = 1e6

// ============================================================================
// Lagrange Multiplier State
// ============================================================================

// LagrangeState 维护对偶变量 lambda。为保证 lambda 恒正,优化发生在
// 对数空间:对 log_lambda 做 SGD,步后再施加上界。
type LagrangeState struct {
	mu sync.Mutex

	logLambda float64
	lr        float64
	logMax    float64 // 上界的对数,+Inf 表示无界
	threshold float64
}

// LagrangeOptions 配置对偶变量更新规则
type LagrangeOptions struct {
	// Init 初始乘子值(lambda 本身,非对数)
	Init float64

	// Max 乘子上界,0 表示无界
	Max float64

	// LR 对 log_lambda 的学习率
	LR float64

	// Threshold 期望代价阈值
	Threshold float64
}

// NewLagrangeState 创建对偶变量状态
func NewLagrangeState(opts LagrangeOptions) *LagrangeState {
	logMax := math.Inf(1)
	if opts.Max > 0 {
		logMax = math.Log(opts.Max)
	}
	return &LagrangeState{
		logLambda: math.Log(opts.Init),
		lr:        opts.LR,
		logMax:    logMax,
		threshold: opts.Threshold,
	}
}

// LogLambda 返回当前 log_lambda
func (s *LagrangeState) LogLambda() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logLambda
}

// Lambda 返回当前乘子值
func (s *LagrangeState) Lambda() float64 {
	return math.Exp(s.LogLambda())
}

// SetLogLambda 覆盖 log_lambda,用于广播同步
func (s *LagrangeState) SetLogLambda(v float64) {
	s.mu.Lock()
	s.logLambda = v
	s.mu.Unlock()
}

// Threshold 返回当前代价阈值
func (s *LagrangeState) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// SetThreshold 更新代价阈值,支持运行中调整
func (s *LagrangeState) SetThreshold(v float64) {
	s.mu.Lock()
	s.threshold = v
	s.mu.Unlock()
}

// Update 对给定的全局平均代价执行一步对偶上升。
// 对偶损失 L = -(cost - threshold) * lambda;当损失越出数值边界时
// 视为饱和,梯度为零,乘子保持不变。
func (s *LagrangeState) Update(meanCost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lambda := math.Exp(s.logLambda)
	loss := -(meanCost - s.threshold) * lambda
	if loss <= -lossBound || loss >= lossBound {
		return
	}

	grad := -(meanCost - s.threshold) * lambda
	s.logLambda -= s.lr * grad

	if s.logLambda > s.logMax {
		s.logLambda = s.logMax
	}
}

// ============================================================================
// Distributed Controller
// ============================================================================

// LagrangeController 把对偶更新嵌入数据并行流程:先对各 worker 的窗口
// 均值做全局平均,协调者独自更新乘子,再把 log_lambda 广播回所有
// worker,保证全组一致。
type LagrangeController struct {
	state   *LagrangeState
	backend dist.Backend

	// delaySteps 之前的全局步不做对偶更新
	delaySteps int
}

// NewLagrangeController 创建分布式对偶控制器
func NewLagrangeController(state *LagrangeState, backend dist.Backend, delaySteps int) *LagrangeController {
	return &LagrangeController{
		state:      state,
		backend:    backend,
		delaySteps: delaySteps,
	}
}

// State 返回底层对偶状态
func (c *LagrangeController) State() *LagrangeState {
	return c.state
}

// Step 用本 worker 的窗口均值推进对偶变量,返回同步后的 log_lambda
// 与归约后的全局平均代价。
func (c *LagrangeController) Step(ctx context.Context, localMeanCost float64, globalStep int) (logLambda, globalCost float64, err error) {
	globalCost, err = c.backend.AllReduceMean(ctx, localMeanCost)
	if err != nil {
		return 0, 0, err
	}

	if c.backend.IsCoordinator() && globalStep >= c.delaySteps {
		c.state.Update(globalCost)
	}

	logLambda, err = c.backend.Broadcast(ctx, c.state.LogLambda(), 0)
	if err != nil {
		return 0, 0, err
	}
	c.state.SetLogLambda(logLambda)

	return logLambda, globalCost, nil
}
