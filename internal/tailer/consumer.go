// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package tailer

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"github.com/pcapshuttle/pcapshuttle/internal/types"
	"go.uber.org/zap"
)

// fileState is the consumer's per-path tail bookkeeping: the byte offset
// already delivered, and any undelimited tail bytes held over from the
// previous flush.
type fileState struct {
	offset   int64
	residual []byte
}

// Consumer tails each CSV file tracked by fileState and enqueues the
// filepath column of every successfully parsed line onto moveQueue.
type Consumer struct {
	fs          pipelinefs.FS
	eventQueue  *queue.Queue[types.TailerEvent]
	moveQueue   *queue.Queue[string]
	pollTimeout time.Duration
	shutdown    *shutdown.Token
	log         *zap.Logger

	files map[string]*fileState
}

func NewConsumer(fs pipelinefs.FS, eventQueue *queue.Queue[types.TailerEvent], moveQueue *queue.Queue[string], pollTimeout time.Duration, tok *shutdown.Token, log *zap.Logger) *Consumer {
	return &Consumer{
		fs:          fs,
		eventQueue:  eventQueue,
		moveQueue:   moveQueue,
		pollTimeout: pollTimeout,
		shutdown:    tok,
		log:         log.Named("tailer.consumer"),
		files:       make(map[string]*fileState),
	}
}

func (c *Consumer) String() string { return "tailer.consumer" }

// Serve drains eventQueue until ctx is cancelled or the shutdown token
// fires.
func (c *Consumer) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.shutdown.Done():
			return nil
		default:
		}

		ev, ok := c.eventQueue.GetTimeout(c.pollTimeout, c.shutdown.Done())
		if !ok {
			continue
		}
		c.Handle(ev)
	}
}

// Handle applies one TailerEvent to consumer state, per spec.md section
// 4.3. Exported so tests can drive it directly without a running Serve
// loop.
func (c *Consumer) Handle(ev types.TailerEvent) {
	switch ev.Kind {
	case types.EventInitialFound, types.EventCreated:
		c.handleCreated(ev.Path)
	case types.EventModified:
		c.handleModified(ev.Path)
	case types.EventDeleted:
		delete(c.files, ev.Path)
	case types.EventMoved:
		delete(c.files, ev.SrcPath)
		c.handleCreated(ev.DestPath)
	}
}

func (c *Consumer) handleCreated(path string) {
	info, err := c.fs.Stat(path)
	if err != nil {
		// File no longer exists; nothing to tail.
		return
	}
	if _, tracked := c.files[path]; tracked {
		return
	}
	c.files[path] = &fileState{offset: info.Size()}
}

func (c *Consumer) handleModified(path string) {
	st, tracked := c.files[path]
	if !tracked {
		// A modified event for an untracked path is upgraded to created.
		c.handleCreated(path)
		return
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return
	}
	size := info.Size()

	switch {
	case size < st.offset:
		// Truncated: reset and read nothing this cycle.
		st.offset = size
		st.residual = st.residual[:0]
		return
	case size == st.offset:
		return
	}

	toRead := size - st.offset
	f, err := c.fs.Open(path)
	if err != nil {
		c.log.Warn("open for tail failed", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if seeker, ok := f.(io.Seeker); ok {
		if _, err := seeker.Seek(st.offset, io.SeekStart); err != nil {
			c.log.Warn("seek for tail failed", zap.String("path", path), zap.Error(err))
			return
		}
	} else if st.offset > 0 {
		if _, err := io.CopyN(io.Discard, f, st.offset); err != nil {
			c.log.Warn("skip-to-offset for tail failed", zap.String("path", path), zap.Error(err))
			return
		}
	}

	buf := make([]byte, toRead)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		c.log.Warn("read for tail failed", zap.String("path", path), zap.Error(err))
		return
	}
	st.offset += int64(n)
	st.residual = append(st.residual, buf[:n]...)

	c.flush(path, st)
}

// flush splits residual on LF, parses every complete line, and enqueues
// the filepath of each valid one. Leftover bytes after the last LF stay
// buffered for the next modification.
func (c *Consumer) flush(path string, st *fileState) {
	for {
		idx := indexByte(st.residual, '\n')
		if idx < 0 {
			return
		}
		line := st.residual[:idx]
		st.residual = st.residual[idx+1:]

		text := strings.TrimFunc(toValidUTF8(line), func(r rune) bool {
			return r == '\r' || r == ' ' || r == '\t'
		})
		if text == "" {
			continue
		}

		parsed, err := ParseLine(text)
		if err != nil {
			c.log.Warn("malformed csv line, skipping", zap.String("csv_file", path), zap.Error(err))
			continue
		}

		if !c.moveQueue.PutTimeout(parsed.Filepath, 0, c.shutdown.Done()) {
			c.log.Warn("move queue full, dropping parsed line", zap.String("filepath", parsed.Filepath))
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// ParseLine implements spec.md section 4.3's parser: exactly two commas
// after trim, non-negative integer timestamp, non-empty filepath, sha256
// exactly 64 hex characters.
func ParseLine(line string) (types.ParsedLine, error) {
	trimmed := strings.TrimSpace(line)
	parts := strings.Split(trimmed, ",")
	if len(parts) != 3 {
		return types.ParsedLine{}, errInvalidFieldCount
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || ts < 0 {
		return types.ParsedLine{}, errInvalidTimestamp
	}

	fp := strings.TrimSpace(parts[1])
	if fp == "" {
		return types.ParsedLine{}, errEmptyFilepath
	}

	sha := strings.TrimSpace(parts[2])
	if !isHex64(sha) {
		return types.ParsedLine{}, errInvalidSHA256
	}

	return types.ParsedLine{Timestamp: ts, Filepath: fp, SHA256: sha}, nil
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
