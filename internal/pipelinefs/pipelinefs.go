// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pipelinefs defines the filesystem capability set spec.md section
// 4.1 says the core merely consumes, plus a concrete Linux implementation.
// Tests throughout the pipeline take an FS interface so they can swap in an
// in-memory fake without touching a real directory tree, the way the
// teacher's lib/model tests swap in mocked_*_test.go collaborators.
package pipelinefs

import (
	"io"
	"os"
)

// FS is the capability set every worker depends on instead of calling the
// os package directly.
type FS interface {
	Stat(path string) (os.FileInfo, error)
	Lstat(path string) (os.FileInfo, error)
	Exists(path string) bool
	IsFile(path string) bool
	IsDir(path string) bool
	ListDir(path string) ([]os.DirEntry, error)
	MkdirAll(path string, parents bool) error
	Resolve(path string, strict bool) (string, error)
	Open(path string) (io.ReadCloser, error)
	Move(src, dst string) error
	Unlink(path string, missingOK bool) error
	SameDevice(a, b string) (bool, error)
}
