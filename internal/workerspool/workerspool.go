// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent indexed tasks (typically one per image plane) with bounded parallelism.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool limits the number of goroutines used to run tasks.
//
// A Pool is stateless between calls to Run, and it can be shared by concurrent callers: each call to Run
// uses at most MaxParallelism goroutines of its own.
type Pool struct {
	// maxParallelism is the limit of goroutines used by each call to Run.
	// If 0 tasks run inline, if < 0 there is one goroutine per task.
	maxParallelism int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism returns the limit of goroutines used by Run.
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism. It returns the Pool itself, so calls can be cascaded.
//
// It should not be changed while Run is executing.
func (w *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	w.maxParallelism = maxParallelism
	return w
}

// Run calls task(ii) for every ii in [0, numTasks), and waits for all of them to finish.
// The order of execution is not defined.
//
// If parallelism is disabled, or there is only one task, they are executed inline.
func (w *Pool) Run(numTasks int, task func(taskIdx int)) {
	if numTasks <= 0 {
		return
	}
	numWorkers := w.maxParallelism
	if w.IsUnlimited() || numWorkers > numTasks {
		numWorkers = numTasks
	}
	if numWorkers <= 1 {
		for ii := range numTasks {
			task(ii)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for {
				taskIdx := int(next.Add(1) - 1)
				if taskIdx >= numTasks {
					return
				}
				task(taskIdx)
			}
		}()
	}
	wg.Wait()
}
