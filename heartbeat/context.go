// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"github.com/benbjohnson/clock"
	uuid "github.com/satori/go.uuid"
)

// WorkerContext binds the heartbeat timer, polling strategy, and
// promotion tracker belonging to one worker, along with its
// counters.  A context is installed when a worker begins executing a
// task and torn down when it finishes; every promoted worker receives
// a freshly initialized context derived from the shared Config,
// never the parent's.  (Inheriting would alias the timer and tracker
// across workers and reset the parent's polling counter from afar.)
//
// A context must only be used from its own worker's goroutine.
type WorkerContext struct {
	id       string
	config   Config
	clock    clock.Clock
	timer    *Timer
	strategy PollingStrategy
	tracker  *PromotionTracker

	operations uint64
	polls      uint64
	promotions uint64
}

// NewWorkerContext creates a fresh worker context from a
// configuration.  The configuration is defaulted and validated the
// same way Executor construction does.
func NewWorkerContext(config Config) (*WorkerContext, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timer, err := NewTimer(config.Clock, config.HeartbeatPeriod)
	if err != nil {
		return nil, err
	}
	var strategy PollingStrategy
	if config.PollInterval > 0 {
		strategy, err = NewTimePolling(config.Clock, config.PollInterval)
	} else {
		strategy, err = NewCountPolling(config.PollCount)
	}
	if err != nil {
		return nil, err
	}

	return &WorkerContext{
		id:       uuid.NewV4().String(),
		config:   config,
		clock:    config.Clock,
		timer:    timer,
		strategy: strategy,
		tracker:  NewPromotionTracker(config.Clock),
	}, nil
}

// ID returns the worker's identifier.
func (w *WorkerContext) ID() string {
	return w.id
}

// Timer returns the worker's heartbeat timer.
func (w *WorkerContext) Timer() *Timer {
	return w.timer
}

// Tracker returns the worker's promotion tracker.
func (w *WorkerContext) Tracker() *PromotionTracker {
	return w.tracker
}

// CheckHeartbeat is the heartbeat entrypoint, run on every fork.  It
// counts the operation, asks the polling strategy whether the timer
// is worth consulting, and if so consults it.  It returns true when a
// promotion may be admitted; the caller performs the promotion and
// then calls RecordPromotion.
func (w *WorkerContext) CheckHeartbeat() bool {
	w.operations++
	if !w.strategy.ShouldPoll() {
		return false
	}
	w.polls++
	w.strategy.RecordPoll()
	return w.timer.ShouldPromote()
}

// RecordPromotion notes that a promotion actually happened, resetting
// the timer interval.
func (w *WorkerContext) RecordPromotion() {
	w.timer.RecordPromotion()
	w.promotions++
}

// Reset restores the timer, the polling strategy, the tracker, and
// the counters to their freshly constructed state.  Any frames still
// in the tracker are detached and dropped.
func (w *WorkerContext) Reset() {
	w.timer.Reset()
	w.strategy.Reset()
	w.tracker.Clear()
	w.operations = 0
	w.polls = 0
	w.promotions = 0
}

// Stats returns a snapshot of the worker's counters.  The
// conservation property operations >= polls >= promotions always holds.
func (w *WorkerContext) Stats() ContextStats {
	return ContextStats{
		WorkerID:   w.id,
		Operations: w.operations,
		Polls:      w.polls,
		Promotions: w.promotions,
		Tracker:    w.tracker.Stats(),
		Timer:      w.timer.Stats(),
	}
}
