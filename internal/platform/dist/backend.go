// Package dist 提供数据并行训练所需的集合通信原语。
// 后端抽象了 worker 之间的同步与归约,训练核心通过它完成
// 指标聚合、对偶变量广播与阶段屏障。
package dist

import "context"

// Backend 定义分布式训练后端接口
type Backend interface {
	// Rank 返回当前 worker 的序号
	Rank() int

	// WorldSize 返回参与训练的 worker 总数
	WorldSize() int

	// IsCoordinator 判断当前 worker 是否为协调者(rank 0)
	IsCoordinator() bool

	// Barrier 阻塞直到所有 worker 到达
	Barrier(ctx context.Context) error

	// AllReduceMean 对标量求全局均值,所有 worker 返回同一结果
	AllReduceMean(ctx context.Context, value float64) (float64, error)

	// AllReduceMax 对标量求全局最大值,所有 worker 返回同一结果
	AllReduceMax(ctx context.Context, value float64) (float64, error)

	// Broadcast 将 root worker 的标量分发给所有 worker
	Broadcast(ctx context.Context, value float64, root int) (float64, error)

	// Cleanup 释放后端资源
	Cleanup() error
}
