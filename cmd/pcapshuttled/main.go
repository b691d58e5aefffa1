// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Command pcapshuttled is the daemon entry point: parse flags, load
// config, build the supervisor, run until signalled, and exit with a
// sysexits-derived code. Flag parsing follows the teacher's later
// cmd/syncthing/main.go generation (a struct of flags bound by a
// declarative library) rather than its original manual flag.FlagSet,
// using github.com/alecthomas/kong instead of the teacher's own
// cmd/syncthing/cmdutil parser.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/pcapshuttle/pcapshuttle/internal/config"
	"github.com/pcapshuttle/pcapshuttle/internal/exitcode"
	"github.com/pcapshuttle/pcapshuttle/internal/logging"
	"github.com/pcapshuttle/pcapshuttle/internal/metrics"
	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type cli struct {
	Dev        bool   `help:"Enable debug-level console logging." default:"false"`
	Config     string `help:"Path to the INI configuration file." default:"config.ini"`
	MetricsAddr string `help:"Address to serve Prometheus metrics on (empty disables it)." default:":9090"`
}

func main() {
	os.Exit(run())
}

func run() int {
	if runtime.GOOS != "linux" {
		fmt.Fprintln(os.Stderr, "pcapshuttled: only Linux is supported")
		return exitcode.Unavailable
	}

	var c cli
	kong.Parse(&c, kong.Description("Harvests, stages, and uploads capture files."))

	log, err := logging.New(c.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		return exitcode.Software
	}
	defer log.Sync()

	cfg, err := config.Load(c.Config)
	if err != nil {
		log.Error("configuration error", zap.Error(err))
		return exitcode.ConfigError
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	if c.MetricsAddr != "" {
		go serveMetrics(c.MetricsAddr, log)
	}

	sup, err := supervisor.New(cfg, pipelinefs.NewBasicFS(), log, reg)
	if err != nil {
		log.Error("setup failure", zap.Error(err))
		return exitcode.ConfigError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	outcome, runErr := sup.Run(ctx)
	if runErr != nil {
		log.Error("run ended with error", zap.Error(runErr))
	}

	switch outcome {
	case supervisor.OutcomeOK:
		return exitcode.OK
	case supervisor.OutcomeOperationalFailure:
		return exitcode.TempFail
	default:
		return exitcode.Software
	}
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
