// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package scanner implements the periodic source_dir census: spec.md
// section 4.2's Scanner worker. It generalizes the teacher's
// internal/model/scanner.go (a timer/stop-chan Serve loop rescanning one
// folder on an interval) from syncthing's whole-tree indexing to
// pcapshuttle's narrower job: list source_dir once per cycle, fold the
// results through scanstate, and enqueue newly-lost files for the mover.
package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/metrics"
	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/scanstate"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"go.uber.org/zap"
)

// Scanner is a suture.Service: Serve blocks until ctx is cancelled or the
// scan directory becomes permanently unreadable.
type Scanner struct {
	fs        pipelinefs.FS
	sourceDir string
	extension string // lower-case, no dot; e.g. "pcap"

	checkInterval      time.Duration
	lostTimeout        time.Duration
	stuckActiveTimeout time.Duration

	moveQueue *queue.Queue[string]
	shutdown  *shutdown.Token
	log       *zap.Logger
	clock     scanstate.Clock

	state   *scanstate.State
	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry for the scanner to report
// newly-lost and newly-stuck-active counts to. Optional: a nil registry
// (the default) simply skips instrumentation.
func (s *Scanner) SetMetrics(reg *metrics.Registry) { s.metrics = reg }

// New constructs a Scanner. clock is injectable for tests; pass
// scanstate.RealClock in production.
func New(fs pipelinefs.FS, sourceDir, extension string, checkInterval, lostTimeout, stuckActiveTimeout time.Duration, moveQueue *queue.Queue[string], tok *shutdown.Token, log *zap.Logger, clock scanstate.Clock) *Scanner {
	return &Scanner{
		fs:                 fs,
		sourceDir:          sourceDir,
		extension:          strings.ToLower(extension),
		checkInterval:      checkInterval,
		lostTimeout:        lostTimeout,
		stuckActiveTimeout: stuckActiveTimeout,
		moveQueue:          moveQueue,
		shutdown:           tok,
		log:                log.Named("scanner"),
		clock:              clock,
		state:              scanstate.New(),
	}
}

func (s *Scanner) String() string { return "scanner" }

// Serve runs one scan immediately, then one every checkInterval, until ctx
// is cancelled or the shutdown token fires. A directory that cannot be
// listed is fatal: spec.md treats a vanished or unreadable source_dir as a
// platform-level failure the supervisor must escalate, not something to
// retry silently forever.
func (s *Scanner) Serve(ctx context.Context) error {
	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown.Done():
			return nil
		case <-timer.C:
			if err := s.runCycle(); err != nil {
				s.log.Error("scan cycle failed, source_dir unreadable", zap.Error(err))
				return fmt.Errorf("scanner: %w", err)
			}
			timer.Reset(s.checkInterval)
		}
	}
}

func (s *Scanner) runCycle() error {
	entries, err := s.fs.ListDir(s.sourceDir)
	if err != nil {
		return err
	}

	gathered := make([]types.GatheredEntryData, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(e.Name()), "."), s.extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.log.Warn("stat failed mid-scan, skipping entry", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		gathered = append(gathered, types.GatheredEntryData{
			Path:      filepath.Join(s.sourceDir, e.Name()),
			Size:      info.Size(),
			MtimeWall: info.ModTime(),
		})
	}

	now := s.clock.Now()
	result := s.state.Update(gathered, now, now, s.lostTimeout, s.stuckActiveTimeout)

	if len(result.NewlyStuckActive) > 0 {
		s.log.Warn("files stuck active past timeout",
			zap.Strings("paths", result.NewlyStuckActive),
			zap.Strings("app_names", appNamesFromPaths(result.NewlyStuckActive)))
		if s.metrics != nil {
			s.metrics.ScannerStuckActive.Add(float64(len(result.NewlyStuckActive)))
		}
	}
	if len(result.NewlyRemoved) > 0 {
		s.log.Debug("files disappeared from source_dir before going lost", zap.Strings("paths", result.NewlyRemoved))
	}
	if s.metrics != nil && len(result.NewlyLost) > 0 {
		s.metrics.ScannerLost.Add(float64(len(result.NewlyLost)))
	}

	for _, path := range result.NewlyLost {
		s.log.Info("file lost, handing off to mover", zap.String("path", path))
		if !s.moveQueue.Put(path, s.shutdown.Done()) {
			return nil
		}
	}

	return nil
}

// appNamesFromPaths extracts the distinct app names (the substring of each
// file's base name before its first '-') from paths, for grouping stuck-file
// warnings by producing application. A name with no hyphen contributes
// nothing, same as the app-name extraction it is grounded on.
func appNamesFromPaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var names []string
	for _, p := range paths {
		base := filepath.Base(p)
		head, _, ok := strings.Cut(base, "-")
		if !ok || head == "" {
			continue
		}
		if _, dup := seen[head]; dup {
			continue
		}
		seen[head] = struct{}{}
		names = append(names, head)
	}
	return names
}
