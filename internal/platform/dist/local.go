package dist

import "context"

// LocalBackend 是单机单 worker 的退化实现,所有集合操作都是恒等变换
type LocalBackend struct{}

// NewLocalBackend 创建本地后端
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Rank() int           { return 0 }
func (b *LocalBackend) WorldSize() int      { return 1 }
func (b *LocalBackend) IsCoordinator() bool { return true }

func (b *LocalBackend) Barrier(ctx context.Context) error { return ctx.Err() }

func (b *LocalBackend) AllReduceMean(ctx context.Context, value float64) (float64, error) {
	return value, ctx.Err()
}

func (b *LocalBackend) AllReduceMax(ctx context.Context, value float64) (float64, error) {
	return value, ctx.Err()
}

func (b *LocalBackend) Broadcast(ctx context.Context, value float64, root int) (float64, error) {
	return value, ctx.Err()
}

func (b *LocalBackend) Cleanup() error { return nil }
