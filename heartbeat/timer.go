// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is the authority for the heartbeat rate bound: a promotion may
// be admitted only when at least one heartbeat period has elapsed
// since the previous promotion on the same worker, so at most
// elapsed/N promotions occur in any window.
//
// A Timer belongs to exactly one worker and must not be shared.
type Timer struct {
	clock         clock.Clock
	period        time.Duration
	lastPromotion time.Time
	credits       uint64
}

// NewTimer creates a heartbeat timer with the given period.  A nil
// clock uses real wall-clock time.
func NewTimer(clk clock.Clock, period time.Duration) (*Timer, error) {
	if period <= 0 {
		return nil, ErrNonPositivePeriod
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Timer{
		clock:         clk,
		period:        period,
		lastPromotion: clk.Now(),
	}, nil
}

// Period returns the heartbeat period.
func (t *Timer) Period() time.Duration {
	return t.period
}

// ShouldPromote reports whether at least one heartbeat period has
// elapsed since the last recorded promotion.  A clock regression (not
// possible on a correct monotonic source) can delay promotion but
// never fails.
func (t *Timer) ShouldPromote() bool {
	return t.clock.Now().Sub(t.lastPromotion) >= t.period
}

// RecordPromotion marks a promotion as having happened now, resetting
// the elapsed interval and the accumulated credits.
func (t *Timer) RecordPromotion() {
	t.lastPromotion = t.clock.Now()
	t.credits = 0
}

// AddCredits accumulates polling credits.  Credits are bookkeeping
// for non-time-based polling accounting and do not affect
// ShouldPromote.
func (t *Timer) AddCredits(n uint64) {
	t.credits += n
}

// Reset restores the timer to its freshly constructed state.
func (t *Timer) Reset() {
	t.RecordPromotion()
}

// Stats returns a snapshot of the timer state.
func (t *Timer) Stats() TimerStats {
	return TimerStats{
		Period:             t.period,
		SinceLastPromotion: t.clock.Now().Sub(t.lastPromotion),
		Credits:            t.credits,
	}
}
