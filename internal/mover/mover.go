// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mover implements spec.md section 4.4: drain MoveQueue, relocate
// each path into worker_dir with collision-safe naming. It is grounded on
// the teacher's internal/osutil.Rename/TempName pair (same-device rename
// plus suffix-disambiguated naming), generalized from "~syncthing~" temp
// suffixes to the numeric "-1", "-2", ... suffixing spec.md requires.
package mover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
	"github.com/pcapshuttle/pcapshuttle/internal/queue"
	"github.com/pcapshuttle/pcapshuttle/internal/shutdown"
	"go.uber.org/zap"
)

// maxCollisionAttempts bounds the "-1", "-2", ... suffix search spec.md
// section 4.4 specifies.
const maxCollisionAttempts = 100

// Mover drains MoveQueue and relocates each path into destDir.
type Mover struct {
	fs       pipelinefs.FS
	destDir  string
	queue    *queue.Queue[string]
	poll     time.Duration
	backoff  time.Duration
	shutdown *shutdown.Token
	log      *zap.Logger
}

func New(fs pipelinefs.FS, destDir string, q *queue.Queue[string], pollInterval time.Duration, tok *shutdown.Token, log *zap.Logger) *Mover {
	return &Mover{
		fs:       fs,
		destDir:  destDir,
		queue:    q,
		poll:     pollInterval,
		backoff:  time.Second,
		shutdown: tok,
		log:      log.Named("mover"),
	}
}

func (m *Mover) String() string { return "mover" }

// Serve blocks processing MoveQueue items until ctx is cancelled or the
// shutdown token fires.
func (m *Mover) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.shutdown.Done():
			return nil
		default:
		}

		path, ok := m.queue.GetTimeout(m.poll, m.shutdown.Done())
		if !ok {
			continue
		}
		m.processOne(path)
	}
}

func (m *Mover) processOne(path string) {
	info, err := m.fs.Lstat(path)
	if err != nil {
		m.log.Warn("source vanished before move, dropping", zap.String("path", path), zap.Error(err))
		return
	}
	if !info.Mode().IsRegular() {
		m.log.Warn("source is not a regular file, dropping", zap.String("path", path))
		return
	}

	resolved, err := m.fs.Resolve(path, true)
	if err != nil {
		m.log.Warn("source failed strict resolve, dropping", zap.String("path", path), zap.Error(err))
		return
	}

	dst, err := m.pickDestination(filepath.Base(resolved))
	if err != nil {
		m.log.Error("destination collision limit reached, dropping", zap.String("path", path), zap.Error(err))
		return
	}

	if err := m.fs.Move(resolved, dst); err != nil {
		if os.IsNotExist(err) {
			// Another mover or the source itself already relocated it.
			return
		}
		m.log.Error("move failed", zap.String("src", resolved), zap.String("dst", dst), zap.Error(err))
	}
}

// PickDestination implements spec.md's "{stem}-1{suffix}, {stem}-2{suffix}, ..."
// collision search, shared with the uploader's own move-on-success/terminal
// paths.
func PickDestination(fs pipelinefs.FS, destDir, name string) (string, error) {
	candidate := filepath.Join(destDir, name)
	if !fs.Exists(candidate) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxCollisionAttempts; i++ {
		candidate = filepath.Join(destDir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if !fs.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", errors.New("mover: destination collision limit reached")
}

func (m *Mover) pickDestination(name string) (string, error) {
	return PickDestination(m.fs, m.destDir, name)
}
