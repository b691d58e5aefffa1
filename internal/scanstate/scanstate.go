// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package scanstate implements the scanner's per-cycle bookkeeping: fold a
// fresh directory listing into the previous cycle's FileStateRecord map,
// and classify the result into newly-lost, newly-stuck-active, and
// newly-removed sets per spec.md section 4.2.
package scanstate

import (
	"sort"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/types"
)

// Clock abstracts wall and monotonic time so tests can drive the scanner
// without real sleeps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock.
var RealClock Clock = realClock{}

// State holds the scanner's memory between cycles.
type State struct {
	records map[string]types.FileStateRecord
	// lost and stuckActive are the previous cycle's classifications, so
	// Update reports only the paths that newly entered either set.
	lost        map[string]bool
	stuckActive map[string]bool
}

func New() *State {
	return &State{records: make(map[string]types.FileStateRecord)}
}

// Result is everything a single scan cycle needs to report and act on.
type Result struct {
	NewlyLost        []string
	NewlyStuckActive []string
	NewlyRemoved     []string
}

// Update folds gathered entries into the state, returning the classification
// result for this cycle. wallNow and monoNow are injected so tests can pin
// time precisely; in production both come from the same clock.
func (s *State) Update(gathered []types.GatheredEntryData, wallNow, monoNow time.Time, lostTimeout, stuckActiveTimeout time.Duration) Result {
	sorted := append([]types.GatheredEntryData(nil), gathered...)
	sort.Sort(types.ByMtimeThenSize(sorted))

	seen := make(map[string]bool, len(sorted))
	wasLost := s.lost
	wasStuckActive := s.stuckActive
	lost := make(map[string]bool)
	stuckActive := make(map[string]bool)

	next := make(map[string]types.FileStateRecord, len(sorted))
	var newlyLost, newlyStuckActive []string

	for _, e := range sorted {
		seen[e.Path] = true
		prev, known := s.records[e.Path]

		var rec types.FileStateRecord
		if known {
			rec = types.FileStateRecord{
				Size:          e.Size,
				MtimeWall:     e.MtimeWall,
				FirstSeenMono: prev.FirstSeenMono,
				PrevScanSize:  prev.Size,
				PrevScanMtime: prev.MtimeWall,
			}
		} else {
			// First sight: prev_scan_* equals current so the record is
			// never judged active on its first appearance (spec.md
			// invariant 8).
			rec = types.FileStateRecord{
				Size:          e.Size,
				MtimeWall:     e.MtimeWall,
				FirstSeenMono: monoNow,
				PrevScanSize:  e.Size,
				PrevScanMtime: e.MtimeWall,
			}
		}
		next[e.Path] = rec

		isLost := known && wallNow.Sub(rec.MtimeWall) > lostTimeout
		if isLost {
			lost[e.Path] = true
			if !wasLost[e.Path] {
				newlyLost = append(newlyLost, e.Path)
			}
			continue // lost takes precedence over stuck-active
		}

		isStuckActive := known && rec.ActiveSinceLastScan() && monoNow.Sub(rec.FirstSeenMono) > stuckActiveTimeout
		if isStuckActive {
			stuckActive[e.Path] = true
			if !wasStuckActive[e.Path] {
				newlyStuckActive = append(newlyStuckActive, e.Path)
			}
		}
	}

	var newlyRemoved []string
	for path := range s.records {
		if !seen[path] {
			newlyRemoved = append(newlyRemoved, path)
		}
	}
	sort.Strings(newlyRemoved)

	s.records = next
	s.lost = lost
	s.stuckActive = stuckActive

	return Result{
		NewlyLost:        newlyLost,
		NewlyStuckActive: newlyStuckActive,
		NewlyRemoved:     newlyRemoved,
	}
}

// Len reports the number of tracked paths, for metrics/tests.
func (s *State) Len() int { return len(s.records) }
