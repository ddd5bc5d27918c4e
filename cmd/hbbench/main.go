// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

// Package hbbench provides a benchmark and calibration tool for the
// heartbeat scheduler.  It can measure the promotion cost on the
// current machine, run the classic fork/join microbenchmarks, and
// optionally serve live executor statistics over HTTP while a
// benchmark runs.
package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/urfave/negroni"
	"gopkg.in/yaml.v2"

	"github.com/tripab/go-heartbeat/calibrate"
	"github.com/tripab/go-heartbeat/heartbeat"
	"github.com/tripab/go-heartbeat/statserver"
)

var log = logrus.New()

// executor is shared by the benchmark commands; it is built in the
// app's Before hook from the global flags and configuration file.
var executor *heartbeat.Executor

func main() {
	app := cli.NewApp()
	app.Name = "hbbench"
	app.Usage = "benchmark and calibration tool for heartbeat scheduling"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "global configuration YAML file",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "worker pool size (defaults to the CPU count)",
		},
		cli.DurationFlag{
			Name:  "period",
			Usage: "heartbeat period N",
		},
		cli.DurationFlag{
			Name:  "cost",
			Usage: "promotion cost τ",
		},
		cli.Float64Flag{
			Name:  "target-overhead",
			Usage: "derive the period from τ and this overhead percentage",
		},
		cli.StringFlag{
			Name:  "http",
			Usage: "[ip]:port to serve statistics and metrics on",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log scheduling events",
		},
	}
	app.Before = setup
	app.Commands = []cli.Command{
		calibrateCommand,
		fibCommand,
		sumCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup builds the shared executor from the global flags and, if
// requested, starts the statistics server.
func setup(c *cli.Context) error {
	if c.GlobalBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	executor, err = heartbeat.New(config)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"period":   config.HeartbeatPeriod,
		"cost":     config.PromotionCost,
		"workers":  config.WorkerCount,
		"overhead": fmt.Sprintf("%.2f%%", config.ExpectedOverheadPercent()),
	}).Debug("executor configured")

	if addr := c.GlobalString("http"); addr != "" {
		go serveHTTP(addr, executor)
	}
	return nil
}

// loadConfig layers the configuration sources: defaults, then the
// YAML file, then individual flags.
func loadConfig(c *cli.Context) (heartbeat.Config, error) {
	config := heartbeat.NewConfig()

	if filename := c.GlobalString("config"); filename != "" {
		raw, err := loadConfigYaml(filename)
		if err != nil {
			return config, err
		}
		config, err = heartbeat.ConfigFromMap(raw)
		if err != nil {
			return config, err
		}
	}

	if workers := c.GlobalInt("workers"); workers != 0 {
		config.WorkerCount = workers
	}
	if cost := c.GlobalDuration("cost"); cost != 0 {
		config.PromotionCost = cost
	}
	if period := c.GlobalDuration("period"); period != 0 {
		config.HeartbeatPeriod = period
	}
	if percent := c.GlobalFloat64("target-overhead"); percent != 0 {
		derived, err := heartbeat.NewConfigWithTargetOverhead(config.PromotionCost, percent)
		if err != nil {
			return config, err
		}
		config.HeartbeatPeriod = derived.HeartbeatPeriod
	}

	config.Logger = log
	return config, config.Validate()
}

func loadConfigYaml(filename string) (map[string]interface{}, error) {
	var result map[string]interface{}
	bytes, err := ioutil.ReadFile(filename)
	if err == nil {
		err = yaml.Unmarshal(bytes, &result)
	}
	return result, err
}

// serveHTTP runs the statistics endpoints, the Prometheus metrics
// endpoint, and the gauge observer.  This serves connections forever
// and wants to be run in a goroutine.
func serveHTTP(addr string, ex *heartbeat.Executor) {
	r := mux.NewRouter()
	statserver.PopulateRouter(r, ex)
	r.Path("/metrics").Handler(promhttp.Handler())

	go statserver.Observe(context.Background(), ex, time.Second, log)

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(r)
	server := &http.Server{Addr: addr, Handler: n}
	if err := server.ListenAndServe(); err != nil {
		log.Error(err)
	}
}

var calibrateCommand = cli.Command{
	Name:  "calibrate",
	Usage: "measure the promotion cost on this machine",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "iterations",
			Value: calibrate.DefaultIterations,
			Usage: "number of spawn/await round trips to time",
		},
	},
	Action: func(c *cli.Context) error {
		result := calibrate.CalibrateWithClock(nil, c.Int("iterations"))
		fmt.Printf("promotion cost:     %v\n", result.PromotionCost)
		fmt.Printf("recommended period: %v\n", result.RecommendedPeriod)
		fmt.Printf("expected overhead:  %.2f%%\n", result.ExpectedOverheadPercent)
		return nil
	},
}
