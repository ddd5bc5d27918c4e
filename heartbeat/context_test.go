// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

// contextConfig returns a configuration with a mock clock suitable
// for driving CheckHeartbeat by hand.
func contextConfig(mock *clock.Mock) Config {
	c := NewConfig()
	c.Clock = mock
	c.HeartbeatPeriod = 10 * time.Millisecond
	c.PromotionCost = time.Millisecond
	return c
}

func TestWorkerContextFresh(t *testing.T) {
	mock := clock.NewMock()
	worker, err := NewWorkerContext(contextConfig(mock))
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	assert.NotEmpty(t, worker.ID())
	assert.Equal(t, 0, worker.Tracker().Size())

	stats := worker.Stats()
	assert.Equal(t, uint64(0), stats.Operations)
	assert.Equal(t, uint64(0), stats.Polls)
	assert.Equal(t, uint64(0), stats.Promotions)
}

func TestWorkerContextInvalidConfig(t *testing.T) {
	c := NewConfig()
	c.HeartbeatPeriod = -1
	_, err := NewWorkerContext(c)
	assert.Equal(t, ErrNonPositivePeriod, err)
}

// Two contexts from the same configuration share nothing: fresh
// timers, trackers, and identities.
func TestWorkerContextsIndependent(t *testing.T) {
	config := contextConfig(clock.NewMock())
	a, err := NewWorkerContext(config)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	b, err := NewWorkerContext(config)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, a.Timer() != b.Timer())
	assert.True(t, a.Tracker() != b.Tracker())
}

func TestCheckHeartbeat(t *testing.T) {
	mock := clock.NewMock()
	worker, err := NewWorkerContext(contextConfig(mock))
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	// No heartbeat period has elapsed yet.
	assert.False(t, worker.CheckHeartbeat())

	mock.Add(10 * time.Millisecond)
	assert.True(t, worker.CheckHeartbeat())

	// Promotion not yet recorded: still due.
	assert.True(t, worker.CheckHeartbeat())

	worker.RecordPromotion()
	assert.False(t, worker.CheckHeartbeat())

	stats := worker.Stats()
	assert.Equal(t, uint64(4), stats.Operations)
	assert.Equal(t, uint64(4), stats.Polls)
	assert.Equal(t, uint64(1), stats.Promotions)
}

// With a count-based strategy at interval 5, only every fifth
// operation consults the timer.
func TestCheckHeartbeatAmortizedPolling(t *testing.T) {
	mock := clock.NewMock()
	config := contextConfig(mock)
	config.PollCount = 5
	worker, err := NewWorkerContext(config)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	mock.Add(time.Hour)
	promotions := 0
	for i := 0; i < 25; i++ {
		if worker.CheckHeartbeat() {
			worker.RecordPromotion()
			promotions++
			mock.Add(time.Hour)
		}
	}

	stats := worker.Stats()
	assert.Equal(t, uint64(25), stats.Operations)
	assert.Equal(t, uint64(5), stats.Polls)
	assert.Equal(t, uint64(5), stats.Promotions)
	assert.Equal(t, 5, promotions)
}

// operations >= polls >= promotions for any interleaving.
func TestContextStatsConservation(t *testing.T) {
	mock := clock.NewMock()
	config := contextConfig(mock)
	config.PollCount = 3
	worker, err := NewWorkerContext(config)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	for i := 0; i < 100; i++ {
		if worker.CheckHeartbeat() {
			worker.RecordPromotion()
		}
		if i%7 == 0 {
			mock.Add(3 * time.Millisecond)
		}
	}

	stats := worker.Stats()
	assert.True(t, stats.Operations >= stats.Polls,
		"operations %d < polls %d", stats.Operations, stats.Polls)
	assert.True(t, stats.Polls >= stats.Promotions,
		"polls %d < promotions %d", stats.Polls, stats.Promotions)
}

func TestWorkerContextReset(t *testing.T) {
	mock := clock.NewMock()
	worker, err := NewWorkerContext(contextConfig(mock))
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	mock.Add(time.Hour)
	assert.True(t, worker.CheckHeartbeat())
	worker.RecordPromotion()

	worker.Reset()
	stats := worker.Stats()
	assert.Equal(t, uint64(0), stats.Operations)
	assert.Equal(t, uint64(0), stats.Polls)
	assert.Equal(t, uint64(0), stats.Promotions)
	assert.False(t, worker.CheckHeartbeat())
}

// Time-based polling consults the timer at most once per interval.
func TestWorkerContextTimePolling(t *testing.T) {
	mock := clock.NewMock()
	config := contextConfig(mock)
	config.PollInterval = RecommendedPollInterval(config.HeartbeatPeriod)
	worker, err := NewWorkerContext(config)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	for i := 0; i < 10; i++ {
		worker.CheckHeartbeat()
	}
	stats := worker.Stats()
	assert.Equal(t, uint64(10), stats.Operations)
	assert.Equal(t, uint64(0), stats.Polls)

	mock.Add(config.PollInterval)
	worker.CheckHeartbeat()
	assert.Equal(t, uint64(1), worker.Stats().Polls)
}
