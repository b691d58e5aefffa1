// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package mover

import (
	"context"
	"testing"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefstest"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMoverRelocatesFile(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/source", true)
	fs.MkdirAll("/b/worker", true)
	fs.WriteFile("/b/source/A.pcap", []byte("hello"), time.Now())

	q := queue.New[string](4)
	tok := shutdown.New()
	m := New(fs, "/b/worker", q, 10*time.Millisecond, tok, zap.NewNop())

	q.TryPut("/b/source/A.pcap")
	m.processOne("/b/source/A.pcap")

	require.False(t, fs.Exists("/b/source/A.pcap"))
	require.True(t, fs.Exists("/b/worker/A.pcap"))
}

func TestMoverCollisionResolution(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/worker", true)
	fs.WriteFile("/b/worker/A.pcap", []byte("existing-5"), time.Now())
	fs.WriteFile("/b/worker/A-1.pcap", []byte("existing-10"), time.Now())
	fs.MkdirAll("/b/source", true)
	fs.WriteFile("/b/source/A.pcap", []byte("new file content"), time.Now())

	tok := shutdown.New()
	m := New(fs, "/b/worker", queue.New[string](4), 10*time.Millisecond, tok, zap.NewNop())
	m.processOne("/b/source/A.pcap")

	require.True(t, fs.Exists("/b/worker/A.pcap"))
	require.True(t, fs.Exists("/b/worker/A-1.pcap"))
	require.True(t, fs.Exists("/b/worker/A-2.pcap"))
	require.False(t, fs.Exists("/b/source/A.pcap"))
}

func TestMoverDropsVanishedSource(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/worker", true)
	tok := shutdown.New()
	m := New(fs, "/b/worker", queue.New[string](4), 10*time.Millisecond, tok, zap.NewNop())

	m.processOne("/b/source/missing.pcap")
}

func TestMoverServeExitsOnShutdown(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b/worker", true)
	tok := shutdown.New()
	m := New(fs, "/b/worker", queue.New[string](4), 5*time.Millisecond, tok, zap.NewNop())

	tok.Set()
	err := m.Serve(context.Background())
	require.NoError(t, err)
}
