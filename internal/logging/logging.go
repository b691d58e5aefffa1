// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package logging sets up the daemon's structured logger. It replaces the
// teacher's hand-rolled internal/logger (a from-scratch level/facility
// implementation with its own ring buffer and %-style formatting) with
// go.uber.org/zap, used the way the rest of the modern Go ecosystem the
// pack pulls in expects: one base logger, per-component children created
// with Named, structured fields instead of Sprintf'd strings.
package logging

import (
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the base logger. dev selects a human-readable console
// encoder at debug level, matching the teacher's --debug flag; otherwise
// production callers get JSON at info level, suitable for log shipping.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	return cfg.Build()
}

// Audit logs one upload-attempt outcome as a structured event, the
// machine-parseable record spec.md's audit trail requires. Every field on
// types.AuditEvent is logged, not formatted into a message string, so log
// shippers can index on them directly.
func Audit(log *zap.Logger, ev types.AuditEvent) {
	log.Info("upload_audit",
		zap.String("event_type", ev.EventType),
		zap.String("file_name", ev.FileName),
		zap.Int64("file_size_bytes", ev.FileSizeBytes),
		zap.String("destination_url", ev.DestinationURL),
		zap.Int("attempt", ev.Attempt),
		zap.Int64("duration_ms", ev.DurationMS),
		zap.Int("status_code", ev.StatusCode),
		zap.Float64("backoff_seconds", ev.BackoffSeconds),
		zap.String("failure_category", ev.FailureCategory),
		zap.String("failure_detail", ev.FailureDetail),
		zap.String("exception_type", ev.ExceptionType),
		zap.String("response_text_snippet", ev.ResponseTextSnippet),
	)
}
