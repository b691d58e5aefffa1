// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package tailer

import (
	"testing"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefstest"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validSHA = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

func TestParseLineValid(t *testing.T) {
	pl, err := ParseLine("1700000000,/b/source/A.pcap," + validSHA)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), pl.Timestamp)
	require.Equal(t, "/b/source/A.pcap", pl.Filepath)
	require.Equal(t, validSHA, pl.SHA256)
}

func TestParseLineRejectsBadInput(t *testing.T) {
	cases := []string{
		"not-a-number,/b/source/A.pcap," + validSHA,
		"-1,/b/source/A.pcap," + validSHA,
		"1700000000,," + validSHA,
		"1700000000,/b/source/A.pcap,tooshort",
		"1700000000,/b/source/A.pcap," + validSHA + ",extra",
	}
	for _, c := range cases {
		_, err := ParseLine(c)
		require.Error(t, err, c)
	}
}

func TestConsumerTailAtEOFOnCreated(t *testing.T) {
	fs := pipelinefstest.New()
	fs.WriteFile("/b/csv/x.csv", []byte("1700000000,/b/source/A.pcap,"+validSHA+"\n"), time.Now())

	eq := queue.New[types.TailerEvent](4)
	mq := queue.New[string](4)
	tok := shutdown.New()
	c := NewConsumer(fs, eq, mq, 10*time.Millisecond, tok, zap.NewNop())

	c.Handle(types.Created("/b/csv/x.csv"))
	// Tail-at-EOF: existing content must not be delivered.
	_, ok := mq.GetTimeout(10*time.Millisecond, tok.Done())
	require.False(t, ok)
}

func TestConsumerDeliversAppendedLines(t *testing.T) {
	fs := pipelinefstest.New()
	fs.WriteFile("/b/csv/x.csv", []byte(""), time.Now())

	eq := queue.New[types.TailerEvent](4)
	mq := queue.New[string](4)
	tok := shutdown.New()
	c := NewConsumer(fs, eq, mq, 10*time.Millisecond, tok, zap.NewNop())

	c.Handle(types.Created("/b/csv/x.csv"))

	fs.WriteFile("/b/csv/x.csv", []byte("1700000000,/b/source/A.pcap,"+validSHA+"\n"), time.Now())
	c.Handle(types.Modified("/b/csv/x.csv"))

	path, ok := mq.GetTimeout(10*time.Millisecond, tok.Done())
	require.True(t, ok)
	require.Equal(t, "/b/source/A.pcap", path)
}

func TestConsumerTruncationResetsOffset(t *testing.T) {
	fs := pipelinefstest.New()
	fs.WriteFile("/b/csv/x.csv", []byte("1700000000,/b/source/A.pcap,"+validSHA+"\n"), time.Now())

	eq := queue.New[types.TailerEvent](4)
	mq := queue.New[string](4)
	tok := shutdown.New()
	c := NewConsumer(fs, eq, mq, 10*time.Millisecond, tok, zap.NewNop())

	c.Handle(types.Created("/b/csv/x.csv"))

	// Truncate to something shorter than the previous offset.
	fs.WriteFile("/b/csv/x.csv", []byte("tiny"), time.Now())
	c.Handle(types.Modified("/b/csv/x.csv"))

	_, ok := mq.GetTimeout(10*time.Millisecond, tok.Done())
	require.False(t, ok, "truncation must not emit stale bytes")

	require.Equal(t, int64(4), c.files["/b/csv/x.csv"].offset)
}

func TestConsumerMovedDiscardsSrcTracksDest(t *testing.T) {
	fs := pipelinefstest.New()
	fs.WriteFile("/b/csv/x.csv", []byte(""), time.Now())

	eq := queue.New[types.TailerEvent](4)
	mq := queue.New[string](4)
	tok := shutdown.New()
	c := NewConsumer(fs, eq, mq, 10*time.Millisecond, tok, zap.NewNop())

	c.Handle(types.Created("/b/csv/x.csv"))
	require.NoError(t, fs.Move("/b/csv/x.csv", "/b/csv/y.csv"))
	c.Handle(types.Moved("/b/csv/x.csv", "/b/csv/y.csv"))

	_, stillTracked := c.files["/b/csv/x.csv"]
	require.False(t, stillTracked)
	_, tracked := c.files["/b/csv/y.csv"]
	require.True(t, tracked)
}

func TestConsumerModifiedOnUntrackedPathUpgradesToCreated(t *testing.T) {
	fs := pipelinefstest.New()
	fs.WriteFile("/b/csv/z.csv", []byte("1700000000,/b/source/A.pcap,"+validSHA+"\n"), time.Now())

	eq := queue.New[types.TailerEvent](4)
	mq := queue.New[string](4)
	tok := shutdown.New()
	c := NewConsumer(fs, eq, mq, 10*time.Millisecond, tok, zap.NewNop())

	// No prior Created/InitialFound for z.csv.
	c.Handle(types.Modified("/b/csv/z.csv"))

	_, ok := mq.GetTimeout(10*time.Millisecond, tok.Done())
	require.False(t, ok, "upgrade to created must not read pre-existing content")
	_, tracked := c.files["/b/csv/z.csv"]
	require.True(t, tracked)
}
