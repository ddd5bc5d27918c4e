// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"time"

	"github.com/benbjohnson/clock"
)

// PollingStrategy decides when the heartbeat timer is worth
// consulting.  ShouldPoll must be cheap, since it runs on every
// heartbeat check; RecordPoll is called if and only if ShouldPoll
// returned true and the timer was actually read.
//
// A strategy belongs to exactly one worker and must not be shared.
type PollingStrategy interface {
	// ShouldPoll reports whether the timer should be consulted on
	// this heartbeat check.
	ShouldPoll() bool

	// RecordPoll notes that the timer was consulted.
	RecordPoll()

	// Reset restores the strategy to its freshly constructed state.
	Reset()
}

// countPolling consults the timer once every interval heartbeat
// checks.  The interval should be chosen so the amortized cost of one
// ShouldPoll call stays an order of magnitude below the promotion
// cost.
type countPolling struct {
	interval  int
	sinceLast int
}

// NewCountPolling creates a count-based polling strategy that polls
// every interval operations.  An interval of 1 polls on every call,
// which is correct but not amortized.
func NewCountPolling(interval int) (PollingStrategy, error) {
	if interval <= 0 {
		return nil, ErrNonPositiveInterval
	}
	return &countPolling{interval: interval}, nil
}

func (c *countPolling) ShouldPoll() bool {
	c.sinceLast++
	return c.sinceLast >= c.interval
}

func (c *countPolling) RecordPoll() {
	c.sinceLast = 0
}

func (c *countPolling) Reset() {
	c.sinceLast = 0
}

// timePolling consults the timer at most once per interval of wall
// time.
type timePolling struct {
	clock    clock.Clock
	interval time.Duration
	lastPoll time.Time
}

// NewTimePolling creates a time-based polling strategy that polls at
// most once per interval.  A nil clock uses real wall-clock time.
// See RecommendedPollInterval for a reasonable interval.
func NewTimePolling(clk clock.Clock, interval time.Duration) (PollingStrategy, error) {
	if interval <= 0 {
		return nil, ErrNonPositiveInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &timePolling{
		clock:    clk,
		interval: interval,
		lastPoll: clk.Now(),
	}, nil
}

func (t *timePolling) ShouldPoll() bool {
	return t.clock.Now().Sub(t.lastPoll) >= t.interval
}

func (t *timePolling) RecordPoll() {
	t.lastPoll = t.clock.Now()
}

func (t *timePolling) Reset() {
	t.lastPoll = t.clock.Now()
}

// RecommendedPollInterval returns a time-based polling interval of a
// tenth of the heartbeat period, with a floor of one microsecond.
// Polling around this rate keeps promotion latency small relative to
// the period without consulting the clock faster than useful.
func RecommendedPollInterval(period time.Duration) time.Duration {
	interval := period / 10
	if interval < time.Microsecond {
		interval = time.Microsecond
	}
	return interval
}
