// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import "errors"

// ErrNonPositivePeriod is returned from configuration validation if
// the heartbeat period is zero or negative.
var ErrNonPositivePeriod = errors.New("heartbeat period must be positive")

// ErrNonPositiveCost is returned from configuration validation if the
// promotion cost is zero or negative.
var ErrNonPositiveCost = errors.New("promotion cost must be positive")

// ErrPeriodNotAboveCost is returned from configuration validation if
// the heartbeat period does not exceed the promotion cost.  A period
// at or below the promotion cost would make promotion overhead exceed
// the work being amortized.
var ErrPeriodNotAboveCost = errors.New("heartbeat period must exceed promotion cost")

// ErrNoWorkers is returned from configuration validation if the worker
// count is zero or negative.
var ErrNoWorkers = errors.New("worker count must be at least 1")

// ErrBadOverheadPercent is returned when a target overhead percentage
// is not strictly between 0 and 100.
var ErrBadOverheadPercent = errors.New("target overhead percent must be in (0, 100)")

// ErrNonPositiveInterval is returned when a polling strategy is
// constructed with a zero or negative interval.
var ErrNonPositiveInterval = errors.New("polling interval must be positive")

// ErrShutdown is returned from Submit and SubmitAsync after Shutdown
// has been called.  In-flight tasks still run to completion.
var ErrShutdown = errors.New("executor is shut down")

// ErrInterrupted is returned from a join whose wait was cancelled by
// the caller's context before the promoted child completed.  The child
// itself still runs to completion on its worker.
var ErrInterrupted = errors.New("join wait interrupted")

// The errors below are contract violations: programmer errors in the
// use of the API.  They are raised as panics and are fatal to the
// offending worker.

// ErrNilTask is the panic value when a nil task is submitted, forked,
// or joined.
var ErrNilTask = errors.New("task must not be nil")

// ErrNilFrame is the panic value when a nil frame is pushed onto a
// promotion tracker.
var ErrNilFrame = errors.New("frame must not be nil")

// ErrFrameAttached is the panic value when a frame that already sits
// in a tracker is pushed again.
var ErrFrameAttached = errors.New("frame is already in a tracker")

// ErrAlreadyPromoted is the panic value when a frame whose promoted
// flag is already set is promoted a second time.
var ErrAlreadyPromoted = errors.New("frame is already promoted")

// ErrTaskReused is the panic value when a task object is forked or
// submitted more than once.  Each task may be forked once and joined
// at most once.
var ErrTaskReused = errors.New("task has already been forked or submitted")

// ErrUnbalancedJoin is the panic value when a join of an unpromoted
// child does not find that child's frame at the head of the tracker.
// This happens only if forks and joins are not properly nested.
var ErrUnbalancedJoin = errors.New("join does not match the most recent fork")

// ErrCounterUnderflow is the panic value when a JoinCounter is
// decremented below zero.
var ErrCounterUnderflow = errors.New("join counter decremented below zero")
