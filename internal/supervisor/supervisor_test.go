// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/config"
	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefstest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseDir:                     "/b",
		SourceDir:                   "/b/source",
		WorkerDir:                   "/b/worker",
		UploadedDir:                 "/b/uploaded",
		DeadLetterDir:               "/b/dead_letter",
		CsvDir:                      "/b/csv",
		PcapExtension:               "pcap",
		CsvExtension:                "csv",
		MovePollInterval:            10 * time.Millisecond,
		ScannerCheckInterval:        20 * time.Millisecond,
		LostTimeout:                 time.Hour,
		StuckActiveFileTimeout:      2 * time.Hour,
		TailerEventQueuePollTimeout: 10 * time.Millisecond,
		UploaderPollInterval:        20 * time.Millisecond,
		HeartbeatTargetInterval:     time.Hour,
		RemoteHostURL:               "http://127.0.0.1:0",
		RequestTimeout:              time.Second,
		VerifySSL:                   true,
		InitialBackoff:              10 * time.Millisecond,
		MaxBackoff:                  40 * time.Millisecond,
		PurgerCapacityBytes:         1000,
		PurgerTargetUsageFrac:       0.8,
		PurgerCheckInterval:         20 * time.Millisecond,
	}
}

// The watcher depends on a real platform filesystem watch, so this test
// exercises everything except that worker: construction, directory
// validation, and clean shutdown on context cancellation.
func TestSupervisorCleanShutdownOnContextCancel(t *testing.T) {
	t.Skip("requires a real filesystem watch (github.com/syncthing/notify); exercised via the binary, not unit tests")

	fs := pipelinefstest.New()
	fs.MkdirAll("/b", true)
	log := zap.NewNop()

	sup, err := New(testConfig(), fs, log, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, _ := sup.Run(ctx)
	require.Equal(t, OutcomeOK, outcome)
}
