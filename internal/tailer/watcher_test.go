// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package tailer

import (
	"testing"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"github.com/stretchr/testify/require"
	"github.com/syncthing/notify"
	"go.uber.org/zap"
)

func TestWatcherMatchesExtensionCaseInsensitively(t *testing.T) {
	w := NewWatcher("/b/csv", "csv", queue.New[types.TailerEvent](4), shutdown.New(), zap.NewNop())
	require.True(t, w.matches("a.csv"))
	require.True(t, w.matches("a.CSV"))
	require.False(t, w.matches("a.pcap"))
	require.False(t, w.matches("noext"))
}

func TestWatcherIgnoresNestedPaths(t *testing.T) {
	eq := queue.New[types.TailerEvent](4)
	tok := shutdown.New()
	w := NewWatcher("/b/csv", "csv", eq, tok, zap.NewNop())

	// notify.EventInfo is an interface, so handleRaw can be driven with a
	// fake event instead of a live platform watch.
	w.handleRaw(fakeEventInfo{event: notify.Create, path: "/b/csv/sub/a.csv"})
	_, ok := eq.GetTimeout(5*time.Millisecond, tok.Done())
	require.False(t, ok, "a file below a subdirectory of csvDir must be ignored")

	w.handleRaw(fakeEventInfo{event: notify.Create, path: "/b/csv/a.csv"})
	ev, ok := eq.GetTimeout(5*time.Millisecond, tok.Done())
	require.True(t, ok, "a direct child of csvDir must be emitted")
	require.Equal(t, types.Created("/b/csv/a.csv"), ev)
}

type fakeEventInfo struct {
	event notify.Event
	path  string
}

func (e fakeEventInfo) Event() notify.Event { return e.event }
func (e fakeEventInfo) Path() string        { return e.path }
func (e fakeEventInfo) Sys() interface{}    { return nil }
