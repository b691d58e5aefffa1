// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package purger implements spec.md section 4.6: evict the oldest files
// from uploaded_dir then worker_dir until combined usage drops back under
// the configured fraction of capacity. It is grounded on the teacher's
// internal/versioner/staggered.go (walk a directory, sort by age, delete
// until a retention policy is satisfied) generalized from "keep N
// generations per file" to "keep total bytes under a capacity fraction",
// with capacity auto-detection added via github.com/shirou/gopsutil/v4/disk
// in place of the teacher's fixed generation counts.
package purger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/metrics"
	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/zap"
)

// Purger keeps workerDir+uploadedDir under targetFraction of capacityBytes.
type Purger struct {
	fs            pipelinefs.FS
	workerDir     string
	uploadedDir   string
	capacityBytes int64
	targetFrac    float64
	checkInterval time.Duration

	shutdown *shutdown.Token
	log      *zap.Logger

	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry for eviction counters. Optional:
// a nil registry (the default) simply skips instrumentation.
func (p *Purger) SetMetrics(reg *metrics.Registry) { p.metrics = reg }

// New constructs a Purger. If capacityBytes is zero, DetectCapacity must be
// called first (the supervisor does this at startup per spec.md 4.6).
func New(fs pipelinefs.FS, workerDir, uploadedDir string, capacityBytes int64, targetFrac float64, checkInterval time.Duration, tok *shutdown.Token, log *zap.Logger) *Purger {
	return &Purger{
		fs:            fs,
		workerDir:     workerDir,
		uploadedDir:   uploadedDir,
		capacityBytes: capacityBytes,
		targetFrac:    targetFrac,
		checkInterval: checkInterval,
		shutdown:      tok,
		log:           log.Named("purger"),
	}
}

// DetectCapacity auto-detects total filesystem capacity from the device
// backing uploadedDir, for use when the configured capacity is zero. It
// fails if the reported capacity is non-positive, per spec.md 4.6.
func DetectCapacity(uploadedDir string) (int64, error) {
	usage, err := disk.Usage(uploadedDir)
	if err != nil {
		return 0, fmt.Errorf("purger: detect capacity: %w", err)
	}
	if usage.Total == 0 {
		return 0, fmt.Errorf("purger: detected capacity is non-positive for %s", uploadedDir)
	}
	return int64(usage.Total), nil
}

func (p *Purger) String() string { return "purger" }

func (p *Purger) Serve(ctx context.Context) error {
	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.shutdown.Done():
			return nil
		case <-timer.C:
			p.runCycle()
			timer.Reset(p.checkInterval)
		}
	}
}

func (p *Purger) runCycle() {
	uploaded, uploadedErr := p.gather(p.uploadedDir)
	worker, workerErr := p.gather(p.workerDir)
	if uploadedErr != nil && workerErr != nil {
		p.log.Error("purger cycle aborted, both directories unreadable", zap.Error(uploadedErr), zap.Error(workerErr))
		return
	}
	if uploadedErr != nil {
		p.log.Warn("uploaded_dir scan failed, proceeding with worker_dir only", zap.Error(uploadedErr))
	}
	if workerErr != nil {
		p.log.Warn("worker_dir scan failed, proceeding with uploaded_dir only", zap.Error(workerErr))
	}

	sort.Sort(types.ByMtimeThenSize(uploaded))
	sort.Sort(types.ByMtimeThenSize(worker))

	var used int64
	for _, e := range uploaded {
		used += e.Size
	}
	for _, e := range worker {
		used += e.Size
	}

	target := int64(float64(p.capacityBytes) * p.targetFrac)
	if used <= target {
		return
	}
	deficit := used - target

	deficit = p.evict(uploaded, deficit)
	if deficit > 0 {
		p.evict(worker, deficit)
	}
}

// evict deletes entries oldest-first until cumulative freed bytes meets
// deficit, returning the remaining (possibly zero) deficit.
func (p *Purger) evict(entries []types.GatheredEntryData, deficit int64) int64 {
	var freed int64
	var files int64
	for _, e := range entries {
		if freed >= deficit {
			break
		}
		if p.deleteSafely(e.Path) {
			freed += e.Size
			files++
		}
	}
	if p.metrics != nil && files > 0 {
		p.metrics.PurgeBytesEvicted.Add(float64(freed))
		p.metrics.PurgeFilesEvicted.Add(float64(files))
	}
	return deficit - freed
}

func (p *Purger) deleteSafely(path string) bool {
	info, err := p.fs.Lstat(path)
	if err != nil {
		// Already gone: success, nothing freed by us.
		return false
	}
	if !info.Mode().IsRegular() {
		p.log.Warn("purge candidate is no longer a regular file, skipping", zap.String("path", path))
		return false
	}
	if err := p.fs.Unlink(path, true); err != nil {
		p.log.Warn("purge unlink failed, skipping", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

func (p *Purger) gather(dir string) ([]types.GatheredEntryData, error) {
	entries, err := p.fs.ListDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]types.GatheredEntryData, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			p.log.Warn("stat failed during purge scan, skipping entry", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, types.GatheredEntryData{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			MtimeWall: info.ModTime(),
		})
	}
	return out, nil
}
