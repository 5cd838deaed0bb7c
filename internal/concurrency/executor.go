// File: internal/concurrency/executor.go
// Package concurrency implements a task executor for off-loop work.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across a fixed set of worker goroutines. Reactors
// use it for operations that may block, such as dialing a remote endpoint,
// so that no reactor goroutine is ever suspended.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-mq/api"
)

var _ api.Executor = (*Executor)(nil)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	queue      chan TaskFunc
	closed     atomic.Bool
	numWorkers int32
	wg         sync.WaitGroup
	submitMu   sync.RWMutex

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers, queueSize int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 64
	}
	e := &Executor{
		queue:      make(chan TaskFunc, queueSize),
		numWorkers: int32(numWorkers),
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run()
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if the
// executor is closed or its queue is saturated.
func (e *Executor) Submit(task func()) error {
	e.submitMu.RLock()
	defer e.submitMu.RUnlock()
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	select {
	case e.queue <- task:
		e.totalTasks.Add(1)
		return nil
	default:
		return ErrExecutorSaturated
	}
}

// NumWorkers returns the number of workers.
func (e *Executor) NumWorkers() int {
	return int(e.numWorkers)
}

// Close stops accepting tasks, runs what is already queued, and waits for
// workers to exit.
func (e *Executor) Close() {
	e.submitMu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.submitMu.Unlock()
		e.wg.Wait()
		return
	}
	close(e.queue)
	e.submitMu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.NumWorkers()),
	}
}

func (e *Executor) run() {
	defer e.wg.Done()
	for task := range e.queue {
		e.execute(task)
	}
}

// execute runs the task and updates statistics, recovering from panics.
func (e *Executor) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
		}
		e.completedTasks.Add(1)
	}()
	task()
}
