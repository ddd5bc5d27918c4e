// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

// Package heartbeat implements heartbeat scheduling for nested
// fork/join parallelism, after Acar, Charguéraud, Guatto, Rainey, and
// Sieczkowski, "Heartbeat Scheduling: Provable Efficiency for Nested
// Parallelism".
//
// Programs express fine-grained parallelism freely: every Fork is
// recorded but runs sequentially by default, on the worker that forked
// it.  Once per heartbeat period N, the oldest still-sequential fork on
// a worker is promoted to its own worker (a goroutine), and the
// matching Join waits on the promoted result instead of running the
// child inline.  For a measured promotion cost τ this bounds sequential
// overhead by τ/N and span inflation by 1 + N/τ, with no user-supplied
// cutoff thresholds.
//
// The entry point is the Executor.  User computations are Tasks; a
// task's compute function receives a TaskContext through which it may
// Fork, Join, and Invoke child tasks:
//
//	ex, err := heartbeat.New(heartbeat.NewConfig())
//	if err != nil { ... }
//	var fib func(n int) heartbeat.ComputeFunc
//	fib = func(n int) heartbeat.ComputeFunc {
//		return func(tc *heartbeat.TaskContext) (interface{}, error) {
//			if n < 2 {
//				return n, nil
//			}
//			left := tc.Fork(heartbeat.NewTask("fib", fib(n-1)))
//			right, err := tc.Invoke(heartbeat.NewTask("fib", fib(n-2)))
//			if err != nil {
//				return nil, err
//			}
//			l, err := tc.Join(left)
//			if err != nil {
//				return nil, err
//			}
//			return l.(int) + right.(int), nil
//		}
//	}
//	result, err := ex.Submit(context.Background(), heartbeat.NewTask("fib", fib(20)))
//
// In general, objects here are confined to a single worker: the Timer,
// PollingStrategy, PromotionTracker, and WorkerContext belonging to a
// worker must only be touched from that worker's goroutine.  The only
// cross-worker coordination is the one-shot completion of a promoted
// task's Future and the executor-wide statistics counters.
package heartbeat
