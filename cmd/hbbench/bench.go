// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package main

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/tripab/go-heartbeat/heartbeat"
)

// fibTask builds the recursive fork/join Fibonacci benchmark: every
// level forks, and the scheduler decides what actually runs in
// parallel.  No cutoff threshold anywhere.
func fibTask(n int) *heartbeat.Task {
	return heartbeat.NewTask("fib", func(tc *heartbeat.TaskContext) (interface{}, error) {
		if n < 2 {
			return n, nil
		}
		left := tc.Fork(fibTask(n - 1))
		right, err := tc.Invoke(fibTask(n - 2))
		if err != nil {
			return nil, err
		}
		l, err := tc.Join(left)
		if err != nil {
			return nil, err
		}
		return l.(int) + right.(int), nil
	})
}

// sumTask builds a divide-and-conquer sum over [lo, hi], splitting
// until the range is at most threshold wide.
func sumTask(lo, hi, threshold int) *heartbeat.Task {
	return heartbeat.NewTask("sum", func(tc *heartbeat.TaskContext) (interface{}, error) {
		if hi-lo+1 <= threshold {
			total := 0
			for i := lo; i <= hi; i++ {
				total += i
			}
			return total, nil
		}
		mid := (lo + hi) / 2
		left := tc.Fork(sumTask(lo, mid, threshold))
		right, err := tc.Invoke(sumTask(mid+1, hi, threshold))
		if err != nil {
			return nil, err
		}
		l, err := tc.Join(left)
		if err != nil {
			return nil, err
		}
		return l.(int) + right.(int), nil
	})
}

var fibCommand = cli.Command{
	Name:  "fib",
	Usage: "run the fork/join Fibonacci benchmark",
	Flags: []cli.Flag{
		cli.IntSliceFlag{
			Name:  "n",
			Usage: "Fibonacci indexes to compute (repeatable)",
		},
		cli.IntFlag{
			Name:  "repeat",
			Value: 1,
			Usage: "how many times to run the whole list",
		},
		cli.IntFlag{
			Name:  "cache-size",
			Value: 128,
			Usage: "size of the result memo cache",
		},
	},
	Action: func(c *cli.Context) error {
		ns := c.IntSlice("n")
		if len(ns) == 0 {
			ns = []int{25}
		}

		// Repeated indexes hit the memo instead of recomputing;
		// the cache also makes -repeat useful for steady-state
		// scheduling measurements.
		cache, err := lru.New[int, int](c.Int("cache-size"))
		if err != nil {
			return err
		}

		for round := 0; round < c.Int("repeat"); round++ {
			for _, n := range ns {
				if value, ok := cache.Get(n); ok {
					log.WithFields(logrus.Fields{"n": n, "value": value}).Debug("memo hit")
					continue
				}
				start := time.Now()
				result, err := executor.Submit(context.Background(), fibTask(n))
				if err != nil {
					return err
				}
				value := result.(int)
				cache.Add(n, value)
				fmt.Printf("fib(%d) = %d in %v\n", n, value, time.Since(start))
			}
		}
		reportStats()
		return nil
	},
}

var sumCommand = cli.Command{
	Name:  "sum",
	Usage: "run the divide-and-conquer sum benchmark",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "from",
			Value: 1,
			Usage: "start of the range, inclusive",
		},
		cli.IntFlag{
			Name:  "to",
			Value: 1000000,
			Usage: "end of the range, inclusive",
		},
		cli.IntFlag{
			Name:  "threshold",
			Value: 64,
			Usage: "stop splitting at or below this range width",
		},
	},
	Action: func(c *cli.Context) error {
		start := time.Now()
		result, err := executor.Submit(context.Background(),
			sumTask(c.Int("from"), c.Int("to"), c.Int("threshold")))
		if err != nil {
			return err
		}
		fmt.Printf("sum(%d..%d) = %d in %v\n",
			c.Int("from"), c.Int("to"), result, time.Since(start))
		reportStats()
		return nil
	},
}

// reportStats waits for promoted workers to drain, then prints the
// executor counters.
func reportStats() {
	executor.Shutdown()
	executor.AwaitTermination(10 * time.Second)
	stats := executor.Stats()
	log.WithFields(logrus.Fields{
		"operations":     stats.Operations,
		"polls":          stats.Polls,
		"promotions":     stats.Promotions,
		"workers":        stats.WorkersSpawned,
		"promotion_rate": fmt.Sprintf("%.6f", stats.PromotionRate),
	}).Info("executor statistics")
}
