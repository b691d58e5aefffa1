// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pipelinefstest provides an in-memory pipelinefs.FS double for
// unit tests, the same role the teacher's mocked_*_test.go collaborators
// play for lib/model: fast, deterministic, no real directory tree needed.
package pipelinefstest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type fakeFile struct {
	content []byte
	mtime   time.Time
	dev     uint64
	isDir   bool
}

type fakeInfo struct {
	name    string
	size    int64
	mtime   time.Time
	isDir   bool
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return i.size }
func (i fakeInfo) Mode() os.FileMode {
	if i.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}
func (i fakeInfo) ModTime() time.Time { return i.mtime }
func (i fakeInfo) IsDir() bool        { return i.isDir }
func (i fakeInfo) Sys() interface{}   { return nil }

type fakeDirEntry struct{ info fakeInfo }

func (e fakeDirEntry) Name() string               { return e.info.name }
func (e fakeDirEntry) IsDir() bool                { return e.info.isDir }
func (e fakeDirEntry) Type() os.FileMode          { return e.info.Mode().Type() }
func (e fakeDirEntry) Info() (os.FileInfo, error) { return e.info, nil }

// MemFS is a minimal single-device, in-memory filesystem. Every path is
// keyed by its filepath.Clean'd absolute form.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*fakeFile
	// MoveErr, when set, is returned by Move for src matching this path.
	MoveErr map[string]error
}

func New() *MemFS {
	return &MemFS{files: make(map[string]*fakeFile)}
}

func clean(p string) string { return filepath.Clean(p) }

// WriteFile creates or overwrites a regular file with the given content
// and modification time.
func (m *MemFS) WriteFile(path string, content []byte, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(path)] = &fakeFile{content: append([]byte(nil), content...), mtime: mtime}
}

// MkdirAll creates the named directory (and is also satisfied implicitly:
// ListDir on an unknown-but-prefix-matching directory still works).
func (m *MemFS) MkdirAll(path string, parents bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(path)] = &fakeFile{isDir: true, mtime: time.Now()}
	return nil
}

func (m *MemFS) Stat(path string) (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(path)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return fakeInfo{name: filepath.Base(path), size: int64(len(f.content)), mtime: f.mtime, isDir: f.isDir}, nil
}

func (m *MemFS) Lstat(path string) (os.FileInfo, error) { return m.Stat(path) }

func (m *MemFS) Exists(path string) bool {
	_, err := m.Stat(path)
	return err == nil
}

func (m *MemFS) IsFile(path string) bool {
	info, err := m.Stat(path)
	return err == nil && !info.IsDir()
}

func (m *MemFS) IsDir(path string) bool {
	info, err := m.Stat(path)
	return err == nil && info.IsDir()
}

func (m *MemFS) ListDir(path string) ([]os.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := clean(path)
	var entries []fakeDirEntry
	seen := map[string]bool{}
	for p, f := range m.files {
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." || filepath.Dir(p) != dir {
			continue
		}
		if seen[rel] {
			continue
		}
		seen[rel] = true
		entries = append(entries, fakeDirEntry{fakeInfo{name: filepath.Base(p), size: int64(len(f.content)), mtime: f.mtime, isDir: f.isDir}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].info.name < entries[j].info.name })
	out := make([]os.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out, nil
}

func (m *MemFS) Resolve(path string, strict bool) (string, error) {
	abs := clean(path)
	if strict && !m.Exists(abs) {
		return "", fmt.Errorf("resolve %s: not found", path)
	}
	return abs, nil
}

func (m *MemFS) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(path)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(f.content)), nil
}

func (m *MemFS) Move(src, dst string) error {
	m.mu.Lock()
	if err := m.MoveErr[clean(src)]; err != nil {
		m.mu.Unlock()
		return err
	}
	f, ok := m.files[clean(src)]
	if !ok {
		m.mu.Unlock()
		return os.ErrNotExist
	}
	delete(m.files, clean(src))
	m.files[clean(dst)] = f
	m.mu.Unlock()
	return nil
}

func (m *MemFS) Unlink(path string, missingOK bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[clean(path)]; !ok {
		if missingOK {
			return nil
		}
		return os.ErrNotExist
	}
	delete(m.files, clean(path))
	return nil
}

func (m *MemFS) SameDevice(a, b string) (bool, error) {
	return true, nil
}
