package parallel_test

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/paveg/escalation/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()
	assert.Equal(t, runtime.NumCPU(), pool.Size())

	pool2 := parallel.NewWorkerPool(4)
	defer pool2.Close()
	assert.Equal(t, 4, pool2.Size())
	assert.NoError(t, pool2.Err())
}

func TestProcessIndexed(t *testing.T) {
	pool := parallel.NewWorkerPool(3)
	defer pool.Close()

	input := []int{5, 4, 3, 2, 1, 0}
	results := parallel.ProcessIndexed(pool, input, func(i int, x int) int {
		return i*10 + x*x
	})
	assert.Equal(t, []int{25, 26, 29, 34, 41, 50}, results)

	assert.Nil(t, parallel.ProcessIndexed(pool, []int{}, func(int, int) int { return 0 }))
}

func TestRange(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	var calls atomic.Int64
	err := parallel.Range(pool, 100, func(int) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), calls.Load())

	errFirst := errors.New("tree 3 failed")
	err = parallel.Range(pool, 10, func(i int) error {
		switch i {
		case 3:
			return errFirst
		case 7:
			return errors.New("tree 7 failed")
		}
		return nil
	})
	assert.ErrorIs(t, err, errFirst)
}

func TestCancelledPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := parallel.NewWorkerPoolContext(ctx, 2)
	defer pool.Close()

	err := parallel.Range(pool, 50, func(int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
