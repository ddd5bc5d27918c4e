// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Default scheduling parameters.  The default promotion cost is a
// conservative figure for spawning and awaiting an empty goroutine on
// commodity hardware; run the calibrate package to measure the real
// value for a deployment.  The default period amortizes that cost to
// a 5% sequential overhead.
const (
	DefaultPromotionCost   = 1500 * time.Nanosecond
	DefaultHeartbeatPeriod = 30 * time.Microsecond
)

// Config carries the immutable parameters shared by an Executor and
// every worker context it creates.  New and NewWorkerContext replace
// zero-valued fields with defaults; NewConfig returns those defaults
// with statistics enabled.
type Config struct {
	// HeartbeatPeriod is N: the minimum wall-clock time between
	// admitted promotions on one worker.  Must exceed PromotionCost.
	HeartbeatPeriod time.Duration

	// PromotionCost is τ: the empirical mean cost of creating and
	// starting a worker that runs an empty body.  Informational; it
	// determines the derived overhead and span figures.
	PromotionCost time.Duration

	// WorkerCount bounds how many promoted or asynchronously
	// submitted tasks run concurrently.  If unset, uses
	// runtime.NumCPU().
	WorkerCount int

	// StatsEnabled controls whether per-worker counters are folded
	// into the executor-wide statistics when a worker finishes.
	StatsEnabled bool

	// PollCount is the interval of the default count-based polling
	// strategy: the timer is consulted every PollCount heartbeat
	// checks.  If unset, defaults to 1 (poll on every call), which
	// is correct but not amortized; raise it so the amortized cost
	// of one poll stays well below PromotionCost.
	PollCount int

	// PollInterval, if nonzero, selects a time-based polling
	// strategy instead: the timer is consulted at most once per
	// PollInterval.  RecommendedPollInterval gives a good value.
	PollInterval time.Duration

	// Clock defines a time source.  Only test code should need to
	// set this.  If unset, uses real wall-clock time.
	Clock clock.Clock

	// Logger receives debug-level scheduling events.  If unset, a
	// quiet default logger is used.
	Logger *logrus.Logger
}

// NewConfig returns a configuration with all defaults filled in and
// statistics enabled.
func NewConfig() Config {
	return Config{StatsEnabled: true}.withDefaults()
}

// NewConfigWithTargetOverhead returns a configuration whose heartbeat
// period is derived from a promotion cost and a target sequential
// overhead percentage k, as N = (100/k)·τ.
func NewConfigWithTargetOverhead(cost time.Duration, percent float64) (Config, error) {
	if cost <= 0 {
		return Config{}, ErrNonPositiveCost
	}
	if percent <= 0 || percent >= 100 {
		return Config{}, ErrBadOverheadPercent
	}
	c := Config{
		PromotionCost:   cost,
		HeartbeatPeriod: time.Duration(float64(cost) * 100 / percent),
		StatsEnabled:    true,
	}.withDefaults()
	return c, c.Validate()
}

// withDefaults returns a copy of the configuration with default
// values for any uninitialized fields.
func (c Config) withDefaults() Config {
	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if c.PromotionCost == 0 {
		c.PromotionCost = DefaultPromotionCost
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = runtime.NumCPU()
	}
	if c.PollCount == 0 {
		c.PollCount = 1
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
		c.Logger.SetLevel(logrus.WarnLevel)
	}
	return c
}

// Validate checks the scheduling parameters, returning the first
// configuration error found.
func (c Config) Validate() error {
	if c.HeartbeatPeriod <= 0 {
		return ErrNonPositivePeriod
	}
	if c.PromotionCost <= 0 {
		return ErrNonPositiveCost
	}
	if c.HeartbeatPeriod <= c.PromotionCost {
		return ErrPeriodNotAboveCost
	}
	if c.WorkerCount < 1 {
		return ErrNoWorkers
	}
	if c.PollCount < 0 || c.PollInterval < 0 {
		return ErrNonPositiveInterval
	}
	return nil
}

// ExpectedOverheadFraction returns τ/N, the bound on sequential-work
// overhead added by promotions.
func (c Config) ExpectedOverheadFraction() float64 {
	return float64(c.PromotionCost) / float64(c.HeartbeatPeriod)
}

// ExpectedOverheadPercent returns the overhead fraction as a
// percentage.
func (c Config) ExpectedOverheadPercent() float64 {
	return c.ExpectedOverheadFraction() * 100
}

// SpanInflation returns 1 + N/τ, the bound on how much longer the
// parallel span may run compared to the ideal fully-parallel span.
func (c Config) SpanInflation() float64 {
	return 1 + float64(c.HeartbeatPeriod)/float64(c.PromotionCost)
}

// configMap is the wire representation of a configuration, as decoded
// from a YAML or JSON map.  Durations are in nanoseconds.
type configMap struct {
	HeartbeatPeriod       int64   `mapstructure:"heartbeat_period"`
	PromotionCost         int64   `mapstructure:"promotion_cost"`
	WorkerCount           int     `mapstructure:"worker_count"`
	StatsEnabled          *bool   `mapstructure:"stats_enabled"`
	PollCount             int     `mapstructure:"poll_count"`
	PollInterval          int64   `mapstructure:"poll_interval"`
	TargetOverheadPercent float64 `mapstructure:"target_overhead_percent"`
}

// ConfigFromMap builds a configuration from a string-keyed map, such
// as one decoded from a YAML configuration file.  Unknown keys are
// ignored.  Durations are nanosecond integers.  If the map has a
// nonzero "target_overhead_percent" key, the heartbeat period is derived from
// the promotion cost and that percentage, overriding any
// "heartbeat_period" key.
func ConfigFromMap(m map[string]interface{}) (Config, error) {
	var cm configMap
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cm,
	})
	if err == nil {
		err = decoder.Decode(m)
	}
	if err != nil {
		return Config{}, err
	}

	c := Config{
		HeartbeatPeriod: time.Duration(cm.HeartbeatPeriod),
		PromotionCost:   time.Duration(cm.PromotionCost),
		WorkerCount:     cm.WorkerCount,
		PollCount:       cm.PollCount,
		PollInterval:    time.Duration(cm.PollInterval),
	}.withDefaults()
	c.StatsEnabled = cm.StatsEnabled == nil || *cm.StatsEnabled
	if cm.TargetOverheadPercent != 0 {
		if cm.TargetOverheadPercent <= 0 || cm.TargetOverheadPercent >= 100 {
			return Config{}, ErrBadOverheadPercent
		}
		c.HeartbeatPeriod = time.Duration(float64(c.PromotionCost) * 100 / cm.TargetOverheadPercent)
	}
	return c, c.Validate()
}
