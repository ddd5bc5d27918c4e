// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

// Package statserver exposes read-only executor statistics over
// HTTP.  The endpoints are side-effect-free snapshots; nothing here
// can influence scheduling.
package statserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/tripab/go-heartbeat/heartbeat"
)

// Source is the part of an executor the server reads.
type Source interface {
	Stats() heartbeat.ExecutorStats
	Config() heartbeat.Config
}

// configData is the wire representation of a configuration.
// Durations are in nanoseconds.
type configData struct {
	HeartbeatPeriod         int64   `json:"heartbeat_period"`
	PromotionCost           int64   `json:"promotion_cost"`
	WorkerCount             int     `json:"worker_count"`
	StatsEnabled            bool    `json:"stats_enabled"`
	ExpectedOverheadPercent float64 `json:"expected_overhead_percent"`
	SpanInflation           float64 `json:"span_inflation"`
}

// statsData is the wire representation of an executor snapshot.
type statsData struct {
	TasksSubmitted uint64  `json:"tasks_submitted"`
	TasksCompleted uint64  `json:"tasks_completed"`
	Promotions     uint64  `json:"promotions"`
	WorkersSpawned uint64  `json:"workers_spawned"`
	ActiveWorkers  int64   `json:"active_workers"`
	Operations     uint64  `json:"operations"`
	Polls          uint64  `json:"polls"`
	PromotionRate  float64 `json:"promotion_rate"`
}

// statAPI holds the persistent state for the statistics API.
type statAPI struct {
	Source Source
}

// NewRouter creates an HTTP handler serving the statistics
// endpoints.  GET /stats returns the executor counters; GET /config
// returns the scheduling parameters and their derived figures.
func NewRouter(src Source) http.Handler {
	r := mux.NewRouter()
	PopulateRouter(r, src)
	return r
}

// PopulateRouter adds the statistics routes to an existing
// github.com/gorilla/mux router, for instance to place them under a
// subpath of a larger application.
func PopulateRouter(r *mux.Router, src Source) {
	api := &statAPI{Source: src}
	r.Path("/stats").Methods("GET").Name("stats").HandlerFunc(api.GetStats)
	r.Path("/config").Methods("GET").Name("config").HandlerFunc(api.GetConfig)
}

// NewHandler wraps the statistics router in the standard middleware
// stack: panic recovery and request logging.
func NewHandler(src Source, log *logrus.Logger) http.Handler {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	if log != nil {
		n.UseFunc(func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
			log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Debug("stats request")
			next(w, r)
		})
	}
	n.UseHandler(NewRouter(src))
	return n
}

func (api *statAPI) GetStats(w http.ResponseWriter, req *http.Request) {
	stats := api.Source.Stats()
	writeJSON(w, statsData{
		TasksSubmitted: stats.TasksSubmitted,
		TasksCompleted: stats.TasksCompleted,
		Promotions:     stats.Promotions,
		WorkersSpawned: stats.WorkersSpawned,
		ActiveWorkers:  stats.ActiveWorkers,
		Operations:     stats.Operations,
		Polls:          stats.Polls,
		PromotionRate:  stats.PromotionRate,
	})
}

func (api *statAPI) GetConfig(w http.ResponseWriter, req *http.Request) {
	config := api.Source.Config()
	writeJSON(w, configData{
		HeartbeatPeriod:         int64(config.HeartbeatPeriod),
		PromotionCost:           int64(config.PromotionCost),
		WorkerCount:             config.WorkerCount,
		StatsEnabled:            config.StatsEnabled,
		ExpectedOverheadPercent: config.ExpectedOverheadPercent(),
		SpanInflation:           config.SpanInflation(),
	})
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
