// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

// Package calibrate empirically measures the promotion cost τ on the
// running system and recommends a heartbeat period from it.  It is a
// pure-function boundary: nothing here holds state or couples to an
// executor's lifecycle.
package calibrate

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tripab/go-heartbeat/heartbeat"
)

// DefaultIterations is how many promotions MeasurePromotionCost times
// when the caller does not say.  Spawning a goroutine is cheap enough
// that a large sample costs little and smooths scheduler noise.
const DefaultIterations = 10000

// PeriodMultiplier relates the recommended heartbeat period to the
// measured promotion cost: N = 20τ amortizes promotions to a 5%
// sequential overhead.
const PeriodMultiplier = 20

// Result is the outcome of a calibration run.
type Result struct {
	// PromotionCost is the measured mean cost τ of spawning a
	// worker that runs an empty body and awaiting it.
	PromotionCost time.Duration

	// RecommendedPeriod is the heartbeat period N = 20τ.
	RecommendedPeriod time.Duration

	// ExpectedOverheadPercent is the sequential overhead bound
	// τ/N at the recommended period, as a percentage.
	ExpectedOverheadPercent float64
}

// MeasurePromotionCost times iterations goroutine spawn/await round
// trips and returns the mean.  This is what a promotion costs: the
// promoted task itself still does its own work, so an empty body
// isolates the scheduling overhead.  A nil clock uses real time; a
// non-default iterations of zero or less falls back to
// DefaultIterations.
func MeasurePromotionCost(clk clock.Clock, iterations int) time.Duration {
	if clk == nil {
		clk = clock.New()
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	done := make(chan struct{})
	start := clk.Now()
	for i := 0; i < iterations; i++ {
		go func() {
			done <- struct{}{}
		}()
		<-done
	}
	elapsed := clk.Now().Sub(start)

	cost := elapsed / time.Duration(iterations)
	if cost < time.Nanosecond {
		// Sub-nanosecond means the clock could not resolve the
		// loop; report the smallest meaningful cost rather than
		// zero, which would be an invalid configuration.
		cost = time.Nanosecond
	}
	return cost
}

// Calibrate measures the promotion cost with DefaultIterations and
// derives the recommended configuration figures.
func Calibrate() Result {
	return CalibrateWithClock(nil, DefaultIterations)
}

// CalibrateWithClock is Calibrate with an explicit time source and
// sample size.
func CalibrateWithClock(clk clock.Clock, iterations int) Result {
	cost := MeasurePromotionCost(clk, iterations)
	period := cost * PeriodMultiplier
	return Result{
		PromotionCost:           cost,
		RecommendedPeriod:       period,
		ExpectedOverheadPercent: float64(cost) / float64(period) * 100,
	}
}

// Config turns a calibration result into an executor configuration.
func (r Result) Config() (heartbeat.Config, error) {
	c := heartbeat.NewConfig()
	c.PromotionCost = r.PromotionCost
	c.HeartbeatPeriod = r.RecommendedPeriod
	return c, c.Validate()
}
