// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Executor runs tasks under the heartbeat discipline.  Submitted
// tasks run synchronously on the calling goroutine; parallelism
// arises only when a heartbeat promotes an outstanding fork onto its
// own worker.  Workers are goroutines; a pool semaphore of capacity
// WorkerCount bounds how many promoted or asynchronously dispatched
// tasks run concurrently.  When the pool is saturated a fork simply
// stays sequential, which is always correct.
type Executor struct {
	config Config
	clock  clock.Clock
	log    *logrus.Logger

	// slots is the worker pool semaphore.  A token is held for the
	// lifetime of each promoted or asynchronously dispatched worker.
	slots chan struct{}

	wg   sync.WaitGroup
	down int32

	// Executor-wide statistics.  These are the only mutable state
	// shared across workers, so they are atomics.
	tasksSubmitted uint64
	tasksCompleted uint64
	promotions     uint64
	workersSpawned uint64
	activeWorkers  int64
	operations     uint64
	polls          uint64
}

// New creates an executor.  The configuration is defaulted, then
// validated; construction fails fast on a bad configuration.
func New(config Config) (*Executor, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		config: config,
		clock:  config.Clock,
		log:    config.Logger,
		slots:  make(chan struct{}, config.WorkerCount),
	}, nil
}

// Config returns the executor's configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Submit runs a task to completion on the calling goroutine, with a
// fresh worker context installed, and returns its result or its
// error.  Forks inside the task may be promoted onto other workers as
// heartbeats fire.  After Shutdown, Submit returns ErrShutdown.
func (e *Executor) Submit(ctx context.Context, task *Task) (interface{}, error) {
	if task == nil {
		panic(ErrNilTask)
	}
	if atomic.LoadInt32(&e.down) != 0 {
		return nil, ErrShutdown
	}
	if !atomic.CompareAndSwapInt32(&task.state, taskCreated, taskSequential) {
		panic(ErrTaskReused)
	}
	atomic.AddUint64(&e.tasksSubmitted, 1)
	task.executor = e

	e.wg.Add(1)
	defer e.wg.Done()
	e.runOnFreshWorker(ctx, task)
	return task.result, task.err
}

// SubmitAsync dispatches a task onto a pool worker and returns a
// future for its result.  The semantics otherwise match Submit: the
// task runs with a fresh worker context, and errors (including a
// recovered panic) complete the future exceptionally.
func (e *Executor) SubmitAsync(ctx context.Context, task *Task) (*Future, error) {
	if task == nil {
		panic(ErrNilTask)
	}
	if atomic.LoadInt32(&e.down) != 0 {
		return nil, ErrShutdown
	}
	if !atomic.CompareAndSwapInt32(&task.state, taskCreated, taskSequential) {
		panic(ErrTaskReused)
	}
	atomic.AddUint64(&e.tasksSubmitted, 1)
	task.executor = e

	fut := newFuture()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.slots <- struct{}{}
		defer func() { <-e.slots }()
		atomic.AddUint64(&e.workersSpawned, 1)
		e.runOnFreshWorker(ctx, task)
		fut.complete(task.result, task.err)
	}()
	return fut, nil
}

// runOnFreshWorker installs a fresh worker context on the current
// goroutine, runs the task, and folds the worker's counters back into
// the executor.
func (e *Executor) runOnFreshWorker(ctx context.Context, task *Task) {
	worker, err := NewWorkerContext(e.config)
	if err != nil {
		// The configuration was validated at construction; a failure
		// here is unreachable short of memory corruption.
		panic(err)
	}
	atomic.AddInt64(&e.activeWorkers, 1)
	defer atomic.AddInt64(&e.activeWorkers, -1)

	tc := &TaskContext{ctx: ctx, executor: e, worker: worker}
	task.run(tc)
	atomic.AddUint64(&e.tasksCompleted, 1)
	e.absorb(worker)
}

// promoteOldest performs at most one promotion in response to a
// heartbeat on the given worker.  It reserves a pool slot first; if
// the pool is saturated the heartbeat is forfeited and the fork stays
// sequential.  The task elevated is the one belonging to the frame
// the tracker actually returns: the oldest outstanding fork, which
// is not necessarily the fork that triggered the heartbeat.
func (e *Executor) promoteOldest(tc *TaskContext) {
	select {
	case e.slots <- struct{}{}:
	default:
		return
	}
	frame := tc.worker.Tracker().PromoteOldest()
	if frame == nil {
		<-e.slots
		return
	}

	task := frame.Task()
	fut := newFuture()
	task.promoted = fut
	atomic.StoreInt32(&task.state, taskPromoted)
	tc.worker.RecordPromotion()
	atomic.AddUint64(&e.promotions, 1)
	atomic.AddUint64(&e.workersSpawned, 1)
	e.log.WithFields(logrus.Fields{
		"scope":  task.Scope(),
		"worker": tc.worker.ID(),
		"age":    e.clock.Now().Sub(frame.CreatedAt()),
	}).Debug("promoting oldest fork")

	ctx := tc.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.slots }()
		e.runOnFreshWorker(ctx, task)
		fut.complete(task.result, task.err)
	}()
}

// absorb folds a finished worker's counters into the executor-wide
// statistics, if statistics are enabled.
func (e *Executor) absorb(worker *WorkerContext) {
	if !e.config.StatsEnabled {
		return
	}
	atomic.AddUint64(&e.operations, worker.operations)
	atomic.AddUint64(&e.polls, worker.polls)
}

// Shutdown stops admission of new tasks.  In-flight tasks, including
// any workers they promote, run to completion; promoted work is never
// cancelled once started.
func (e *Executor) Shutdown() {
	if atomic.CompareAndSwapInt32(&e.down, 0, 1) {
		e.log.Debug("executor shutting down")
	}
}

// AwaitTermination blocks until every in-flight task and worker has
// finished, or until the timeout elapses, reporting whether the pool
// quiesced.
func (e *Executor) AwaitTermination(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-e.clock.After(timeout):
		return false
	}
}

// Stats returns a snapshot of the executor-wide counters.  Operation
// and poll counts cover finished workers only; counts for workers
// still running are folded in when they complete.
func (e *Executor) Stats() ExecutorStats {
	stats := ExecutorStats{
		TasksSubmitted: atomic.LoadUint64(&e.tasksSubmitted),
		TasksCompleted: atomic.LoadUint64(&e.tasksCompleted),
		Promotions:     atomic.LoadUint64(&e.promotions),
		WorkersSpawned: atomic.LoadUint64(&e.workersSpawned),
		ActiveWorkers:  atomic.LoadInt64(&e.activeWorkers),
		Operations:     atomic.LoadUint64(&e.operations),
		Polls:          atomic.LoadUint64(&e.polls),
	}
	if stats.Operations > 0 {
		stats.PromotionRate = float64(stats.Promotions) / float64(stats.Operations)
	}
	return stats
}
