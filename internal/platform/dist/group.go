package dist

import (
	"context"
	"sync"

	"github.com/safealign/safealign/pkg/errors"
)

// ============================================================================
// In-Process Group Backend
// ============================================================================

// Group 是一个进程内的通信组,供同一进程中的多个 worker goroutine
// 以数据并行方式协作。每个集合操作是一轮会合:全部 worker 到达后由
// 最后一个到达者完成归约,结果对所有参与者可见。
type Group struct {
	n   int
	mu  sync.Mutex
	cur *round
}

type round struct {
	values  []float64
	arrived int
	result  float64
	done    chan struct{}
}

func newRound(n int) *round {
	return &round{
		values: make([]float64, n),
		done:   make(chan struct{}),
	}
}

// NewGroup 创建一个容纳 n 个 worker 的通信组
func NewGroup(n int) *Group {
	return &Group{n: n, cur: newRound(n)}
}

// Worker 返回绑定到给定 rank 的后端视图
func (g *Group) Worker(rank int) (*GroupBackend, error) {
	if rank < 0 || rank >= g.n {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter,
			"worker rank out of range")
	}
	return &GroupBackend{group: g, rank: rank}, nil
}

// collect 执行一轮会合,reduce 在最后一个到达者持锁时求值
func (g *Group) collect(ctx context.Context, rank int, value float64, reduce func([]float64) float64) (float64, error) {
	g.mu.Lock()
	r := g.cur
	r.values[rank] = value
	r.arrived++
	if r.arrived == g.n {
		r.result = reduce(r.values)
		g.cur = newRound(g.n)
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return 0, errors.Wrap(ctx.Err(), errors.CodeCancelled,
			"collective operation cancelled")
	}
}

// ============================================================================
// Per-Worker Backend View
// ============================================================================

// GroupBackend 实现 Backend,将集合操作委托给所属的通信组
type GroupBackend struct {
	group *Group
	rank  int
}

func (b *GroupBackend) Rank() int           { return b.rank }
func (b *GroupBackend) WorldSize() int      { return b.group.n }
func (b *GroupBackend) IsCoordinator() bool { return b.rank == 0 }

// Barrier 阻塞直到组内所有 worker 到达
func (b *GroupBackend) Barrier(ctx context.Context) error {
	_, err := b.group.collect(ctx, b.rank, 0, func([]float64) float64 { return 0 })
	return err
}

// AllReduceMean 求组内标量均值
func (b *GroupBackend) AllReduceMean(ctx context.Context, value float64) (float64, error) {
	return b.group.collect(ctx, b.rank, value, func(vs []float64) float64 {
		sum := 0.0
		for _, v := range vs {
			sum += v
		}
		return sum / float64(len(vs))
	})
}

// AllReduceMax 求组内标量最大值
func (b *GroupBackend) AllReduceMax(ctx context.Context, value float64) (float64, error) {
	return b.group.collect(ctx, b.rank, value, func(vs []float64) float64 {
		max := vs[0]
		for _, v := range vs[1:] {
			if v > max {
				max = v
			}
		}
		return max
	})
}

// Broadcast 将 root 的标量分发给所有 worker
func (b *GroupBackend) Broadcast(ctx context.Context, value float64, root int) (float64, error) {
	if root < 0 || root >= b.group.n {
		return 0, errors.NewValidationError(errors.CodeInvalidParameter,
			"broadcast root out of range")
	}
	return b.group.collect(ctx, b.rank, value, func(vs []float64) float64 {
		return vs[root]
	})
}

func (b *GroupBackend) Cleanup() error { return nil }
