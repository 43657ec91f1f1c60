package ppolag

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safealign/safealign/internal/platform/dist"
)

func newTestState(max float64) *LagrangeState {
	return NewLagrangeState(LagrangeOptions{
		Init:      1.0,
		Max:       max,
		LR:        0.1,
		Threshold: 0.0,
	})
}

func TestLagrangeState(t *testing.T) {
	t.Run("multiplier grows when cost exceeds threshold", func(t *testing.T) {
		s := newTestState(20)
		before := s.LogLambda()

		s.Update(1.0)

		assert.Greater(t, s.LogLambda(), before)
		assert.InDelta(t, 0.1, s.LogLambda(), 1e-9)
	})

	t.Run("multiplier shrinks when cost is below threshold", func(t *testing.T) {
		s := newTestState(20)
		before := s.LogLambda()

		s.Update(-1.0)

		assert.Less(t, s.LogLambda(), before)
		assert.InDelta(t, -0.1, s.LogLambda(), 1e-9)
	})

	t.Run("multiplier is clamped to its upper bound", func(t *testing.T) {
		s := newTestState(1.05)

		s.Update(5.0)

		assert.InDelta(t, math.Log(1.05), s.LogLambda(), 1e-9)
		assert.InDelta(t, 1.05, s.Lambda(), 1e-9)
	})

	t.Run("zero max means unbounded", func(t *testing.T) {
		s := newTestState(0)

		s.Update(100.0)

		assert.InDelta(t, 10.0, s.LogLambda(), 1e-9)
	})

	t.Run("saturated dual loss freezes the multiplier", func(t *testing.T) {
		s := newTestState(0)

		s.Update(2e6)

		assert.Zero(t, s.LogLambda())
	})

	t.Run("threshold shifts the update direction", func(t *testing.T) {
		s := newTestState(20)
		s.SetThreshold(2.0)

		s.Update(1.0)

		// cost 1.0 is below the threshold of 2.0, so lambda decays
		assert.Less(t, s.LogLambda(), 0.0)
	})
}

func TestLagrangeController(t *testing.T) {
	t.Run("delay postpones the first update", func(t *testing.T) {
		c := NewLagrangeController(newTestState(20), dist.NewLocalBackend(), 2)

		logLambda, cost, err := c.Step(context.Background(), 1.0, 0)
		require.NoError(t, err)
		assert.Zero(t, logLambda)
		assert.InDelta(t, 1.0, cost, 1e-9)

		logLambda, _, err = c.Step(context.Background(), 1.0, 2)
		require.NoError(t, err)
		assert.InDelta(t, 0.1, logLambda, 1e-9)
	})

	t.Run("group workers converge on the coordinator value", func(t *testing.T) {
		const workers = 4
		group := dist.NewGroup(workers)
		state := make([]*LagrangeState, workers)
		results := make([]float64, workers)

		done := make(chan error, workers)
		for rank := 0; rank < workers; rank++ {
			backend, err := group.Worker(rank)
			require.NoError(t, err)
			state[rank] = newTestState(20)

			go func(rank int, backend dist.Backend) {
				c := NewLagrangeController(state[rank], backend, 0)
				// 各 worker 的本地代价不同,归约后均值为 1.0
				local := float64(rank) - 0.5
				logLambda, _, err := c.Step(context.Background(), local, 0)
				results[rank] = logLambda
				done <- err
			}(rank, backend)
		}

		for i := 0; i < workers; i++ {
			require.NoError(t, <-done)
		}

		// 全局均值 (−0.5+0.5+1.5+2.5)/4 = 1.0,协调者步进后广播
		for rank := 0; rank < workers; rank++ {
			assert.InDelta(t, 0.1, results[rank], 1e-9)
			assert.InDelta(t, 0.1, state[rank].LogLambda(), 1e-9)
		}
	})
}
