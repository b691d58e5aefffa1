// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefstest"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/scanstate"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestScannerEnqueuesNewlyLostFiles(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/source", true)
	old := time.Now().Add(-time.Hour)
	fs.WriteFile("/b/source/a.pcap", []byte("x"), old)
	fs.WriteFile("/b/source/ignore.txt", []byte("y"), old)

	mq := queue.New[string](4)
	tok := shutdown.New()
	log := zap.NewNop()

	clock := fixedClock{t: time.Now()}
	sc := New(fs, "/b/source", "pcap", time.Hour, time.Second, time.Hour, mq, tok, log, clock)

	// First sight only records the file; it can go lost from the second
	// cycle on.
	require.NoError(t, sc.runCycle())
	require.NoError(t, sc.runCycle())

	path, ok := mq.GetTimeout(10*time.Millisecond, tok.Done())
	require.True(t, ok)
	require.Equal(t, "/b/source/a.pcap", path)

	_, ok = mq.GetTimeout(10*time.Millisecond, tok.Done())
	require.False(t, ok, "ignore.txt must not be enqueued")
}

func TestScannerServeExitsOnShutdown(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/source", true)

	mq := queue.New[string](4)
	tok := shutdown.New()
	sc := New(fs, "/b/source", "pcap", time.Hour, time.Second, time.Hour, mq, tok, zap.NewNop(), scanstate.RealClock)

	tok.Set()
	err := sc.Serve(context.Background())
	require.NoError(t, err)
}

func TestScannerServeExitsOnContextCancel(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/source", true)

	mq := queue.New[string](4)
	tok := shutdown.New()
	sc := New(fs, "/b/source", "pcap", time.Hour, time.Second, time.Hour, mq, tok, zap.NewNop(), scanstate.RealClock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sc.Serve(ctx)
	require.NoError(t, err)
}
