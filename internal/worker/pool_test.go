package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedConsumesInIndexOrder(t *testing.T) {
	for _, workers := range []int{1, 3, 8, 50} {
		pool := NewPool(workers, nil)
		results := make([]int, 20)
		var consumed []int

		err := pool.Ordered(context.Background(), len(results),
			func(_ context.Context, i int) error {
				results[i] = i * i
				return nil
			},
			func(i int) error {
				consumed = append(consumed, results[i])
				return nil
			})
		require.NoError(t, err)

		require.Len(t, consumed, 20)
		for i, v := range consumed {
			assert.Equal(t, i*i, v, "workers=%d", workers)
		}
	}
}

func TestOrderedBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, nil)
	var inFlight, peak int32

	err := pool.Ordered(context.Background(), 10,
		func(_ context.Context, _ int) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&inFlight, -1)
			return nil
		},
		func(int) error { return nil })
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestOrderedStopsOnError(t *testing.T) {
	pool := NewPool(1, nil)
	boom := errors.New("boom")
	consumed := 0

	err := pool.Ordered(context.Background(), 5,
		func(_ context.Context, i int) error {
			if i == 2 {
				return boom
			}
			return nil
		},
		func(int) error { consumed++; return nil })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, consumed)
}

func TestOrderedHonoursCancellation(t *testing.T) {
	pool := NewPool(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	consumed := 0

	err := pool.Ordered(ctx, 5,
		func(context.Context, int) error { return nil },
		func(i int) error {
			consumed++
			if i == 1 {
				cancel()
			}
			return nil
		})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, consumed)
}

func TestNewPoolClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, NewPool(0, nil).Workers())
	assert.Equal(t, 4, NewPool(4, nil).Workers())
}
