// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package metrics exposes Prometheus instrumentation for the pipeline.
// This is additive observability: spec.md's Non-goals exclude a GUI, not
// a metrics surface, and the teacher's own lib/api wires up
// client_golang the same way (a registry plus a /metrics handler) for its
// own process stats.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups every gauge/counter the pipeline updates. One instance
// is constructed at startup and threaded into each worker that needs it.
type Registry struct {
	QueueDepth        *prometheus.GaugeVec
	ScannerLost       prometheus.Counter
	ScannerStuckActive prometheus.Counter
	UploadOutcomes    *prometheus.CounterVec
	PurgeBytesEvicted prometheus.Counter
	PurgeFilesEvicted prometheus.Counter
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pcapshuttle",
			Name:      "queue_depth",
			Help:      "Current number of items queued, by queue name.",
		}, []string{"queue"}),
		ScannerLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcapshuttle",
			Name:      "scanner_lost_total",
			Help:      "Count of files classified newly-lost by the scanner.",
		}),
		ScannerStuckActive: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcapshuttle",
			Name:      "scanner_stuck_active_total",
			Help:      "Count of files classified newly-stuck-active by the scanner.",
		}),
		UploadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcapshuttle",
			Name:      "upload_outcomes_total",
			Help:      "Count of upload attempt outcomes, by outcome class.",
		}, []string{"outcome"}),
		PurgeBytesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcapshuttle",
			Name:      "purge_bytes_evicted_total",
			Help:      "Total bytes freed by the purger.",
		}),
		PurgeFilesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcapshuttle",
			Name:      "purge_files_evicted_total",
			Help:      "Total files deleted by the purger.",
		}),
	}

	reg.MustRegister(r.QueueDepth, r.ScannerLost, r.ScannerStuckActive, r.UploadOutcomes, r.PurgeBytesEvicted, r.PurgeFilesEvicted)
	return r
}
