// Package ppolag 实现带拉格朗日乘子的受约束 PPO 训练核心。
// 算法在最大化奖励的同时,通过对偶上升将期望代价压到阈值以下。
package ppolag

import "sync"

// EpisodeCostWindow 是一个固定容量的滑动窗口,保存最近若干条轨迹的
// 标量代价。窗口满时丢弃最旧的样本。rollout 阶段写入,更新阶段读取
// 均值,两者可能来自不同 goroutine,故内部加锁。
type EpisodeCostWindow struct {
	mu    sync.Mutex
	buf   []float64
	next  int
	count int
}

// NewEpisodeCostWindow 创建容量为 capacity 的窗口
func NewEpisodeCostWindow(capacity int) *EpisodeCostWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &EpisodeCostWindow{buf: make([]float64, capacity)}
}

// Push 追加一批代价样本
func (w *EpisodeCostWindow) Push(costs ...float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range costs {
		w.buf[w.next] = c
		w.next = (w.next + 1) % len(w.buf)
		if w.count < len(w.buf) {
			w.count++
		}
	}
}

// Mean 返回窗口内样本的均值,空窗口返回 0
func (w *EpisodeCostWindow) Mean() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	return sum / float64(w.count)
}

// Len 返回窗口内的样本数
func (w *EpisodeCostWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Capacity 返回窗口容量
func (w *EpisodeCostWindow) Capacity() int {
	return len(w.buf)
}
