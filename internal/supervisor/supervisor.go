// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package supervisor implements spec.md section 4.7: build every worker in
// dependency order, wire their queues, run a periodic health check, and
// coordinate a bounded-timeout shutdown. It generalizes the teacher's
// cmd/syncthing/summaryservice.go (a *suture.Supervisor embedded in a
// purpose-built service, with its own stop chan layered on top) by
// threading a single shutdown.Token through every worker instead of each
// service keeping its own stop channel, and by making worker death
// escalate into process shutdown rather than suture's default
// restart-on-failure policy.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/config"
	"github.com/pcapshuttle/pcapshuttle/internal/metrics"
	"github.com/pcapshuttle/pcapshuttle/internal/mover"
	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/purger"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/scanner"
	"github.com/pcapshuttle/pcapshuttle/internal/scanstate"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/tailer"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"github.com/pcapshuttle/pcapshuttle/internal/uploader"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

const (
	healthCheckInterval = 5 * time.Second
	threadJoinTimeout   = 5 * time.Second
	moveQueueCapacity   = 1000
	tailerQueueCapacity = 1000
)

// Outcome classifies how a run ended, for exit-code mapping in main.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSetupFailure
	OutcomeOperationalFailure
)

// Service is the common worker interface: every pipeline component,
// wrapped as a suture.Service.
type Service interface {
	Serve(ctx context.Context) error
	String() string
}

// Supervisor builds and runs the full pipeline.
type Supervisor struct {
	cfg     *config.Config
	fs      pipelinefs.FS
	tok     *shutdown.Token
	log     *zap.Logger
	metrics *metrics.Registry

	moveQueue  *queue.Queue[string]
	tailerQ    *queue.Queue[types.TailerEvent]

	sup *suture.Supervisor

	mu       sync.Mutex
	alive    int
	total    int
	deadOnce sync.Once
}

// New validates directories and wires every worker. Any error here is a
// setup failure (spec.md's "config/setup" exit class).
func New(cfg *config.Config, fs pipelinefs.FS, log *zap.Logger, reg *metrics.Registry) (*Supervisor, error) {
	if err := validateDirectories(fs, cfg.BaseDir, cfg.RequiredDirs()); err != nil {
		return nil, err
	}

	capacity := cfg.PurgerCapacityBytes
	if capacity == 0 {
		detected, err := purger.DetectCapacity(cfg.UploadedDir)
		if err != nil {
			return nil, fmt.Errorf("purger capacity auto-detection failed: %w", err)
		}
		capacity = detected
	}

	s := &Supervisor{
		cfg:     cfg,
		fs:      fs,
		tok:     shutdown.New(),
		log:     log,
		metrics: reg,
		moveQueue: queue.New[string](moveQueueCapacity),
		tailerQ:   queue.New[types.TailerEvent](tailerQueueCapacity),
		sup:       suture.NewSimple("pcapshuttle"),
	}

	sc := scanner.New(fs, cfg.SourceDir, cfg.PcapExtension, cfg.ScannerCheckInterval, cfg.LostTimeout, cfg.StuckActiveFileTimeout, s.moveQueue, s.tok, log, scanstate.RealClock)
	mv := mover.New(fs, cfg.WorkerDir, s.moveQueue, cfg.MovePollInterval, s.tok, log)
	watcher := tailer.NewWatcher(cfg.CsvDir, cfg.CsvExtension, s.tailerQ, s.tok, log)
	consumer := tailer.NewConsumer(fs, s.tailerQ, s.moveQueue, cfg.TailerEventQueuePollTimeout, s.tok, log)
	up := uploader.New(fs, uploader.Config{
		WorkerDir:               cfg.WorkerDir,
		UploadedDir:             cfg.UploadedDir,
		DeadLetterDir:           cfg.DeadLetterDir,
		Extension:               cfg.PcapExtension,
		RemoteHostURL:           cfg.RemoteHostURL,
		RequestTimeout:          cfg.RequestTimeout,
		VerifySSL:               cfg.VerifySSL,
		PollInterval:            cfg.UploaderPollInterval,
		HeartbeatTargetInterval: cfg.HeartbeatTargetInterval,
		InitialBackoff:          cfg.InitialBackoff,
		MaxBackoff:              cfg.MaxBackoff,
	}, s.tok, log)
	pg := purger.New(fs, cfg.WorkerDir, cfg.UploadedDir, capacity, cfg.PurgerTargetUsageFrac, cfg.PurgerCheckInterval, s.tok, log)

	if reg != nil {
		sc.SetMetrics(reg)
		up.SetMetrics(reg)
		pg.SetMetrics(reg)
	}

	// Dependency order: queues already built above; scanner, mover,
	// tailer (watcher+consumer, two joinables), uploader, purger.
	for _, svc := range []Service{sc, mv, watcher, consumer, up, pg} {
		s.watch(svc)
	}

	return s, nil
}

// watch adds svc to the suture supervisor wrapped so its exit is observed
// by the health tracker.
func (s *Supervisor) watch(svc Service) {
	s.total++
	s.alive++
	s.sup.Add(&watchedService{inner: svc, onDone: s.onWorkerDone})
}

// onWorkerDone implements spec.md's "any component that raises out of its
// main loop is treated as fatal-operational": the first worker to return,
// for any reason, while the process is not already shutting down,
// escalates into a full shutdown.
func (s *Supervisor) onWorkerDone(name string, err error) {
	s.mu.Lock()
	s.alive--
	s.mu.Unlock()

	if s.tok.IsSet() {
		return
	}
	s.deadOnce.Do(func() {
		if err != nil {
			s.log.Error("worker exited unexpectedly, shutting down", zap.String("worker", name), zap.Error(err))
		} else {
			s.log.Error("worker returned early, shutting down", zap.String("worker", name))
		}
		s.tok.Set()
	})
}

// Run starts every worker and blocks until shutdown, returning the
// outcome classification and the causing error, if any.
func (s *Supervisor) Run(ctx context.Context) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := s.sup.ServeBackground(runCtx)

	healthTicker := time.NewTicker(healthCheckInterval)
	defer healthTicker.Stop()

	var runErr error
	workerDied := false
loop:
	for {
		select {
		case <-ctx.Done():
			s.tok.Set()
			break loop
		case <-s.tok.Done():
			// Before ctx is cancelled, only a worker exit or a failed
			// health check sets the token.
			workerDied = true
			break loop
		case <-healthTicker.C:
			s.reportHealth()
		}
	}

	cancel()

	joined := make(chan struct{})
	go func() {
		for e := range errCh {
			if e != nil {
				runErr = e
			}
		}
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(threadJoinTimeout):
		s.log.Warn("one or more workers did not exit within the join timeout")
	}

	s.mu.Lock()
	allDead := s.alive <= 0
	s.mu.Unlock()

	if workerDied {
		if runErr == nil {
			runErr = fmt.Errorf("supervisor: a worker died")
		}
		return OutcomeOperationalFailure, runErr
	}
	if !allDead && runErr == nil {
		return OutcomeOperationalFailure, fmt.Errorf("supervisor: a worker died before shutdown completed")
	}
	if runErr != nil {
		return OutcomeOperationalFailure, runErr
	}
	return OutcomeOK, nil
}

func (s *Supervisor) reportHealth() {
	s.mu.Lock()
	alive, total := s.alive, s.total
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues("move").Set(float64(s.moveQueue.Len()))
		s.metrics.QueueDepth.WithLabelValues("tailer").Set(float64(s.tailerQ.Len()))
	}

	if alive < total {
		s.log.Warn("health check: worker count below expected", zap.Int("alive", alive), zap.Int("total", total))
		s.tok.Set()
		return
	}
	s.log.Debug("health check ok", zap.Int("alive", alive), zap.Int("total", total))
}

// watchedService adapts a Service into a suture.Service, reporting its
// exit to onDone regardless of outcome.
type watchedService struct {
	inner  Service
	onDone func(name string, err error)
}

func (w *watchedService) Serve(ctx context.Context) error {
	err := w.inner.Serve(ctx)
	w.onDone(w.inner.String(), err)
	return err
}

func (w *watchedService) String() string { return w.inner.String() }
