// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package statserver

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	tasksSubmitted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "heartbeat",
			Name:      "tasks_submitted",
			Help:      "Tasks submitted to the executor",
		})

	tasksCompleted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "heartbeat",
			Name:      "tasks_completed",
			Help:      "Tasks run to completion, including promoted children",
		})

	promotions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "heartbeat",
			Name:      "promotions",
			Help:      "Heartbeats that elevated a fork to its own worker",
		})

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "heartbeat",
			Name:      "active_workers",
			Help:      "Workers currently running",
		})

	promotionRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "heartbeat",
			Name:      "promotion_rate",
			Help:      "Promotions per heartbeat check on finished workers",
		})
)

func init() {
	prometheus.MustRegister(tasksSubmitted)
	prometheus.MustRegister(tasksCompleted)
	prometheus.MustRegister(promotions)
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(promotionRate)
}

// Observe periodically snapshots the executor and publishes its
// counters on the Prometheus gauges, until the context is cancelled.
// Run it in a goroutine next to the metrics endpoint.
func Observe(
	ctx context.Context,
	src Source,
	period time.Duration,
	log *logrus.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
			stats := src.Stats()
			tasksSubmitted.Set(float64(stats.TasksSubmitted))
			tasksCompleted.Set(float64(stats.TasksCompleted))
			promotions.Set(float64(stats.Promotions))
			activeWorkers.Set(float64(stats.ActiveWorkers))
			promotionRate.Set(stats.PromotionRate)
			if log != nil {
				log.WithFields(logrus.Fields{
					"promotions": stats.Promotions,
					"active":     stats.ActiveWorkers,
				}).Debug("observed executor")
			}
		}
	}
}
