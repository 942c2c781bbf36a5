package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run(t *testing.T) {
	pool := New()
	require.True(t, pool.IsEnabled())
	require.Equal(t, runtime.NumCPU(), pool.MaxParallelism())

	for _, parallelism := range []int{-1, 0, 1, 3, 100} {
		pool.SetMaxParallelism(parallelism)
		const numTasks = 37
		var visited [numTasks]atomic.Int32
		var count atomic.Int32
		pool.Run(numTasks, func(taskIdx int) {
			visited[taskIdx].Add(1)
			count.Add(1)
			runtime.Gosched()
		})
		assert.Equal(t, int32(numTasks), count.Load(), "parallelism=%d", parallelism)
		for ii := range visited {
			assert.Equal(t, int32(1), visited[ii].Load(), "task %d, parallelism=%d", ii, parallelism)
		}
	}

	// No tasks is a no-op.
	pool.Run(0, func(int) { t.Fatal("no task should run") })
}

func TestPool_Concurrency(t *testing.T) {
	pool := New().SetMaxParallelism(2)
	var running, maxRunning atomic.Int32
	pool.Run(20, func(int) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		runtime.Gosched()
		running.Add(-1)
	})
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))
	assert.True(t, pool.SetMaxParallelism(-1).IsUnlimited())
}
