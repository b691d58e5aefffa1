// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package uploader implements spec.md section 4.5: scan worker_dir, POST
// each file to the configured remote endpoint, and route it to
// uploaded_dir or dead_letter_dir depending on outcome. HTTP plumbing
// follows the teacher's cmd/syncthing/crash_reporting.go (context-bounded
// net/http POST, sha-named bodies); the retry/backoff sequence is driven
// by github.com/cenkalti/backoff/v4's ExponentialBackOff instead of a
// hand-rolled doubling loop, with randomization disabled so the sequence
// matches spec.md's deterministic initial/double/cap schedule.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pcapshuttle/pcapshuttle/internal/logging"
	"github.com/pcapshuttle/pcapshuttle/internal/metrics"
	"github.com/pcapshuttle/pcapshuttle/internal/mover"
	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"go.uber.org/zap"
)

const maxResponseSnippet = 100
const maxFailureDetail = 256

// Uploader periodically scans workerDir and delivers matching files to
// remoteURL.
type Uploader struct {
	fs            pipelinefs.FS
	workerDir     string
	uploadedDir   string
	deadLetterDir string
	extension     string

	client *http.Client

	pollInterval     time.Duration
	heartbeatCycles  int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	remoteURL        string

	shutdown *shutdown.Token
	log      *zap.Logger

	criticallyFailed map[string]bool
	cyclesSinceLast  int
	emptyCycleStreak int

	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry for per-outcome upload counters.
// Optional: a nil registry (the default) simply skips instrumentation.
func (u *Uploader) SetMetrics(reg *metrics.Registry) { u.metrics = reg }

// Config bundles the uploader's construction-time parameters.
type Config struct {
	WorkerDir               string
	UploadedDir             string
	DeadLetterDir           string
	Extension               string
	RemoteHostURL           string
	RequestTimeout          time.Duration
	VerifySSL               bool
	PollInterval            time.Duration
	HeartbeatTargetInterval time.Duration
	InitialBackoff          time.Duration
	MaxBackoff              time.Duration
}

func New(fs pipelinefs.FS, cfg Config, tok *shutdown.Token, log *zap.Logger) *Uploader {
	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		transport = insecureTransport()
	}

	heartbeatCycles := 1
	if cfg.PollInterval > 0 && cfg.HeartbeatTargetInterval > 0 {
		heartbeatCycles = int(cfg.HeartbeatTargetInterval/cfg.PollInterval) + 1
	}

	return &Uploader{
		fs:               fs,
		workerDir:        cfg.WorkerDir,
		uploadedDir:      cfg.UploadedDir,
		deadLetterDir:    cfg.DeadLetterDir,
		extension:        strings.ToLower(cfg.Extension),
		client:           &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		pollInterval:     cfg.PollInterval,
		heartbeatCycles:  heartbeatCycles,
		initialBackoff:   cfg.InitialBackoff,
		maxBackoff:       cfg.MaxBackoff,
		remoteURL:        cfg.RemoteHostURL,
		shutdown:         tok,
		log:              log.Named("uploader"),
		criticallyFailed: make(map[string]bool),
	}
}

func (u *Uploader) String() string { return "uploader" }

func (u *Uploader) Serve(ctx context.Context) error {
	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-u.shutdown.Done():
			return nil
		case <-timer.C:
			u.runCycle()
			timer.Reset(u.pollInterval)
		}
	}
}

func (u *Uploader) runCycle() {
	u.cyclesSinceLast++
	if u.cyclesSinceLast >= u.heartbeatCycles {
		u.log.Info("uploader heartbeat", zap.Int("critically_failed_count", len(u.criticallyFailed)))
		u.cyclesSinceLast = 0
	}

	entries, err := u.fs.ListDir(u.workerDir)
	if err != nil {
		u.log.Error("worker_dir listing failed", zap.Error(err))
		return
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(e.Name()), "."), u.extension) {
			continue
		}
		path := filepath.Join(u.workerDir, e.Name())
		if u.criticallyFailed[path] {
			continue
		}
		candidates = append(candidates, path)
	}

	if len(candidates) == 0 {
		u.emptyCycleStreak++
		if u.emptyCycleStreak == 1 || u.emptyCycleStreak%u.heartbeatCycles == 0 {
			u.log.Debug("worker_dir empty", zap.Int("consecutive_empty_cycles", u.emptyCycleStreak))
		}
		return
	}
	u.emptyCycleStreak = 0

	for _, path := range candidates {
		if u.shutdown.IsSet() {
			return
		}
		u.send(path)
	}
}

// send runs the full retry/backoff protocol for a single file.
func (u *Uploader) send(path string) {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(u.initialBackoff),
		backoff.WithMaxInterval(u.maxBackoff),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)

	attempt := 0
	for {
		attempt++
		if u.shutdown.IsSet() {
			return
		}

		outcome := u.attempt(path, attempt)
		if u.metrics != nil {
			u.metrics.UploadOutcomes.WithLabelValues(outcome.class.String()).Inc()
		}
		switch outcome.class {
		case outcomeSuccess:
			return
		case outcomeTerminal:
			return
		case outcomeRetryable:
			d := bo.NextBackOff()
			if d == backoff.Stop {
				u.criticallyFailed[path] = true
				return
			}
			logging.Audit(u.log, types.AuditEvent{
				EventType:      "retry_backoff",
				FileName:       filepath.Base(path),
				DestinationURL: u.remoteURL,
				Attempt:        attempt,
				BackoffSeconds: d.Seconds(),
			})
			if !u.shutdown.Sleep(d) {
				return
			}
		}
	}
}

type outcomeClass int

const (
	outcomeSuccess outcomeClass = iota
	outcomeTerminal
	outcomeRetryable
)

func (c outcomeClass) String() string {
	switch c {
	case outcomeSuccess:
		return "success"
	case outcomeTerminal:
		return "terminal"
	case outcomeRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

type attemptOutcome struct {
	class outcomeClass
}

func (u *Uploader) attempt(path string, attemptNum int) attemptOutcome {
	start := time.Now()
	info, err := u.fs.Lstat(path)
	if err != nil {
		// Vanished between scan and send; nothing to do.
		return attemptOutcome{class: outcomeTerminal}
	}

	f, err := u.fs.Open(path)
	if err != nil {
		u.audit(path, info.Size(), attemptNum, time.Since(start), 0, "io_error", err.Error(), "OpenError", "")
		return attemptOutcome{class: outcomeRetryable}
	}
	body, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		u.audit(path, info.Size(), attemptNum, time.Since(start), 0, "io_error", err.Error(), "ReadError", "")
		return attemptOutcome{class: outcomeRetryable}
	}

	ctx, cancel := context.WithTimeout(context.Background(), u.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.remoteURL, bytes.NewReader(body))
	if err != nil {
		u.audit(path, info.Size(), attemptNum, time.Since(start), 0, "request_build_error", err.Error(), "RequestError", "")
		return attemptOutcome{class: outcomeTerminal}
	}
	req.Header.Set("x-filename", filepath.Base(path))

	resp, err := u.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		u.audit(path, info.Size(), attemptNum, duration, 0, "network_error", truncate(err.Error(), maxFailureDetail), fmt.Sprintf("%T", err), "")
		return attemptOutcome{class: outcomeRetryable}
	}
	defer resp.Body.Close()

	snippetBuf, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	status := resp.StatusCode

	switch {
	case status >= 200 && status < 300:
		if err := u.moveTo(path, u.uploadedDir); err != nil {
			u.audit(path, info.Size(), attemptNum, duration, status, "move_failed", err.Error(), "MoveError", string(snippetBuf))
			return attemptOutcome{class: outcomeRetryable}
		}
		u.audit2("upload_success", path, info.Size(), attemptNum, duration, status, "", "", "", string(snippetBuf))
		return attemptOutcome{class: outcomeSuccess}

	case status == 408 || status == 429 || status >= 500:
		u.audit(path, info.Size(), attemptNum, duration, status, "retryable_http_status", fmt.Sprintf("status %d", status), "", string(snippetBuf))
		return attemptOutcome{class: outcomeRetryable}

	default: // other 4xx: terminal
		if err := u.moveTo(path, u.deadLetterDir); err != nil {
			// The dead-letter move itself failed: the file is stuck in a
			// terminal state we cannot record durably. Mark it critically
			// failed so the next scan cycle does not retry it forever;
			// it stays in worker_dir for operator inspection.
			u.log.Error("dead-letter move failed, file remains in worker_dir", zap.String("path", path), zap.Error(err))
			u.criticallyFailed[path] = true
		}
		u.audit(path, info.Size(), attemptNum, duration, status, "terminal_http_status", fmt.Sprintf("status %d", status), "", string(snippetBuf))
		return attemptOutcome{class: outcomeTerminal}
	}
}

func (u *Uploader) moveTo(path, destDir string) error {
	dst, err := mover.PickDestination(u.fs, destDir, filepath.Base(path))
	if err != nil {
		return err
	}
	return u.fs.Move(path, dst)
}

func (u *Uploader) audit(path string, size int64, attempt int, dur time.Duration, status int, category, detail, exceptionType, snippet string) {
	u.audit2("upload_failure", path, size, attempt, dur, status, category, detail, exceptionType, snippet)
}

func (u *Uploader) audit2(eventType, path string, size int64, attempt int, dur time.Duration, status int, category, detail, exceptionType, snippet string) {
	logging.Audit(u.log, types.AuditEvent{
		EventType:           eventType,
		FileName:            filepath.Base(path),
		FileSizeBytes:       size,
		DestinationURL:      u.remoteURL,
		Attempt:             attempt,
		DurationMS:          dur.Milliseconds(),
		StatusCode:          status,
		FailureCategory:     category,
		FailureDetail:       truncate(detail, maxFailureDetail),
		ExceptionType:       exceptionType,
		ResponseTextSnippet: truncate(snippet, maxResponseSnippet),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
