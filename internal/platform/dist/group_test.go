package dist

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackend(t *testing.T) {
	b := NewLocalBackend()
	ctx := context.Background()

	assert.Equal(t, 0, b.Rank())
	assert.Equal(t, 1, b.WorldSize())
	assert.True(t, b.IsCoordinator())

	mean, err := b.AllReduceMean(ctx, 3.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, mean)

	out, err := b.Broadcast(ctx, 1.25, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.25, out)

	assert.NoError(t, b.Barrier(ctx))
	assert.NoError(t, b.Cleanup())
}

func TestGroupBackend(t *testing.T) {
	const workers = 4
	ctx := context.Background()

	newBackends := func(t *testing.T) []*GroupBackend {
		group := NewGroup(workers)
		backends := make([]*GroupBackend, workers)
		for rank := 0; rank < workers; rank++ {
			b, err := group.Worker(rank)
			require.NoError(t, err)
			backends[rank] = b
		}
		return backends
	}

	t.Run("rank out of range is rejected", func(t *testing.T) {
		group := NewGroup(2)
		_, err := group.Worker(2)
		assert.Error(t, err)
		_, err = group.Worker(-1)
		assert.Error(t, err)
	})

	t.Run("all reduce mean", func(t *testing.T) {
		backends := newBackends(t)
		results := make([]float64, workers)

		var wg sync.WaitGroup
		for rank, b := range backends {
			wg.Add(1)
			go func(rank int, b *GroupBackend) {
				defer wg.Done()
				out, err := b.AllReduceMean(ctx, float64(rank))
				assert.NoError(t, err)
				results[rank] = out
			}(rank, b)
		}
		wg.Wait()

		for _, r := range results {
			assert.InDelta(t, 1.5, r, 1e-9)
		}
	})

	t.Run("all reduce max", func(t *testing.T) {
		backends := newBackends(t)
		results := make([]float64, workers)

		var wg sync.WaitGroup
		for rank, b := range backends {
			wg.Add(1)
			go func(rank int, b *GroupBackend) {
				defer wg.Done()
				out, err := b.AllReduceMax(ctx, float64(-rank))
				assert.NoError(t, err)
				results[rank] = out
			}(rank, b)
		}
		wg.Wait()

		for _, r := range results {
			assert.Zero(t, r)
		}
	})

	t.Run("broadcast takes the root value", func(t *testing.T) {
		backends := newBackends(t)
		results := make([]float64, workers)

		var wg sync.WaitGroup
		for rank, b := range backends {
			wg.Add(1)
			go func(rank int, b *GroupBackend) {
				defer wg.Done()
				out, err := b.Broadcast(ctx, float64(rank*10), 2)
				assert.NoError(t, err)
				results[rank] = out
			}(rank, b)
		}
		wg.Wait()

		for _, r := range results {
			assert.Equal(t, 20.0, r)
		}
	})

	t.Run("rounds can be reused back to back", func(t *testing.T) {
		backends := newBackends(t)

		var wg sync.WaitGroup
		for _, b := range backends {
			wg.Add(1)
			go func(b *GroupBackend) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					out, err := b.AllReduceMean(ctx, float64(i))
					assert.NoError(t, err)
					assert.InDelta(t, float64(i), out, 1e-9)
				}
			}(b)
		}
		wg.Wait()
	})

	t.Run("cancellation unblocks a waiting worker", func(t *testing.T) {
		group := NewGroup(2)
		b, err := group.Worker(0)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			_, err := b.AllReduceMean(cancelled, 1)
			done <- err
		}()

		cancel()
		assert.Error(t, <-done)
	})
}
