// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

// Statistics snapshots for heartbeat scheduling objects.

package heartbeat

import "time"

// TimerStats is a read-only snapshot of a heartbeat timer.
type TimerStats struct {
	// Period is the configured heartbeat period N.
	Period time.Duration

	// SinceLastPromotion is the elapsed time since the last recorded
	// promotion.
	SinceLastPromotion time.Duration

	// Credits is the accumulated polling credit count.
	Credits uint64
}

// TrackerStats is a read-only snapshot of a promotion tracker.  The
// counters conserve: Pushes = Pops + Promotions + Size.
type TrackerStats struct {
	Size       int
	Pushes     uint64
	Pops       uint64
	Promotions uint64

	// OldestAge is how long the oldest outstanding frame has been
	// waiting, or zero with no outstanding frames.
	OldestAge time.Duration
}

// ContextStats is a read-only snapshot of one worker's counters.
// Operations >= Polls >= Promotions always holds: every poll is an
// operation and every promotion required a poll.
type ContextStats struct {
	WorkerID   string
	Operations uint64
	Polls      uint64
	Promotions uint64
	Tracker    TrackerStats
	Timer      TimerStats
}

// ExecutorStats is a read-only snapshot of the executor-wide
// counters.
type ExecutorStats struct {
	// TasksSubmitted counts tasks entering the executor through
	// Submit and SubmitAsync.  TasksCompleted counts tasks finished
	// on their own worker: submitted tasks and promoted children.
	TasksSubmitted uint64
	TasksCompleted uint64

	// Promotions counts heartbeats that actually elevated a fork.
	Promotions uint64

	// WorkersSpawned counts pool workers started, for promotions and
	// asynchronous submissions.
	WorkersSpawned uint64

	// ActiveWorkers is the number of workers currently running.
	ActiveWorkers int64

	// Operations and Polls aggregate the per-worker counters of
	// finished workers.
	Operations uint64
	Polls      uint64

	// PromotionRate is Promotions per Operation, zero before any
	// operations complete.
	PromotionRate float64
}
