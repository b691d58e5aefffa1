// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config loads and validates the daemon's INI configuration file
// (spec.md section 6). Unlike the teacher's hand-rolled XML
// internal/config package, this one delegates parsing to gopkg.in/ini.v1
// and concentrates entirely on validation of the constraints spec.md
// requires (ranges, cross-field invariants, derived directories).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the immutable, validated configuration for one daemon run.
type Config struct {
	BaseDir   string
	LoggerDir string

	SourceDir     string
	WorkerDir     string
	UploadedDir   string
	DeadLetterDir string
	CsvDir        string

	PcapExtension string // lower-case, no leading dot
	CsvExtension  string // lower-case, no leading dot

	MovePollInterval time.Duration

	ScannerCheckInterval      time.Duration
	LostTimeout               time.Duration
	StuckActiveFileTimeout    time.Duration

	TailerEventQueuePollTimeout time.Duration

	UploaderPollInterval   time.Duration
	HeartbeatTargetInterval time.Duration
	RemoteHostURL          string
	RequestTimeout         time.Duration
	VerifySSL              bool
	InitialBackoff         time.Duration
	MaxBackoff             time.Duration

	PurgerCapacityBytes    int64
	PurgerTargetUsageFrac  float64
	PurgerCheckInterval    time.Duration
}

// Error wraps a configuration problem, distinguishing it (via errors.As)
// from runtime errors so callers can map it to the "config" sysexit.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errorf(format string, args ...interface{}) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Load reads and validates the INI file at path, deriving the five
// operational subdirectories under base_dir.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, errorf("load %s: %v", path, err)
	}

	c := &Config{}

	dirs := f.Section("Directories")
	c.BaseDir = dirs.Key("base_dir").String()
	if c.BaseDir == "" {
		return nil, errorf("Directories.base_dir is required")
	}
	absBase, err := filepath.Abs(c.BaseDir)
	if err != nil {
		return nil, errorf("Directories.base_dir: %v", err)
	}
	c.BaseDir = absBase

	c.LoggerDir = dirs.Key("logger_dir").String()
	if c.LoggerDir == "" {
		return nil, errorf("Directories.logger_dir is required")
	}
	if info, err := os.Stat(c.LoggerDir); err != nil || !info.IsDir() {
		return nil, errorf("Directories.logger_dir %q must exist and be a directory", c.LoggerDir)
	}

	files := f.Section("Files")
	c.PcapExtension, err = dotlessExtension(files, "pcap_extension_no_dot")
	if err != nil {
		return nil, err
	}
	c.CsvExtension, err = dotlessExtension(files, "csv_extension_no_dot")
	if err != nil {
		return nil, err
	}

	mover := f.Section("Mover")
	c.MovePollInterval, err = nonNegSeconds(mover, "move_poll_interval_seconds")
	if err != nil {
		return nil, err
	}

	scanner := f.Section("Scanner")
	c.ScannerCheckInterval, err = minSeconds(scanner, "scanner_check_seconds", 1)
	if err != nil {
		return nil, err
	}
	c.LostTimeout, err = minSeconds(scanner, "lost_timeout_seconds", 1)
	if err != nil {
		return nil, err
	}
	c.StuckActiveFileTimeout, err = minSeconds(scanner, "stuck_active_file_timeout_seconds", 1)
	if err != nil {
		return nil, err
	}
	if c.StuckActiveFileTimeout <= c.LostTimeout {
		return nil, errorf("Scanner.stuck_active_file_timeout_seconds (%s) must be greater than lost_timeout_seconds (%s)", c.StuckActiveFileTimeout, c.LostTimeout)
	}

	tailer := f.Section("Tailer")
	c.TailerEventQueuePollTimeout, err = nonNegSeconds(tailer, "event_queue_poll_timeout_seconds")
	if err != nil {
		return nil, err
	}

	up := f.Section("Uploader")
	c.UploaderPollInterval, err = nonNegSeconds(up, "uploader_poll_interval_seconds")
	if err != nil {
		return nil, err
	}
	c.HeartbeatTargetInterval, err = nonNegSeconds(up, "heartbeat_target_interval_s")
	if err != nil {
		return nil, err
	}
	c.RemoteHostURL = up.Key("remote_host_url").String()
	if !strings.HasPrefix(c.RemoteHostURL, "http://") && !strings.HasPrefix(c.RemoteHostURL, "https://") {
		return nil, errorf("Uploader.remote_host_url must start with http:// or https://, got %q", c.RemoteHostURL)
	}
	c.RequestTimeout, err = minSeconds(up, "request_timeout", 1)
	if err != nil {
		return nil, err
	}
	c.VerifySSL, err = up.Key("verify_ssl").Bool()
	if err != nil {
		return nil, errorf("Uploader.verify_ssl: %v", err)
	}
	c.InitialBackoff, err = nonNegSeconds(up, "initial_backoff")
	if err != nil {
		return nil, err
	}
	c.MaxBackoff, err = nonNegSeconds(up, "max_backoff")
	if err != nil {
		return nil, err
	}
	if c.MaxBackoff < c.InitialBackoff {
		return nil, errorf("Uploader.max_backoff (%s) must be >= initial_backoff (%s)", c.MaxBackoff, c.InitialBackoff)
	}

	purger := f.Section("Purger")
	c.PurgerCapacityBytes = purger.Key("capacity_bytes").MustInt64(0)
	if c.PurgerCapacityBytes < 0 {
		return nil, errorf("Purger.capacity_bytes must be >= 0")
	}
	c.PurgerTargetUsageFrac = purger.Key("target_usage_fraction").MustFloat64(0.8)
	if c.PurgerTargetUsageFrac <= 0 || c.PurgerTargetUsageFrac > 1 {
		return nil, errorf("Purger.target_usage_fraction must be in (0,1], got %v", c.PurgerTargetUsageFrac)
	}
	c.PurgerCheckInterval, err = minSeconds(purger, "check_interval_seconds", 1)
	if err != nil {
		return nil, err
	}

	c.SourceDir = filepath.Join(c.BaseDir, "source")
	c.WorkerDir = filepath.Join(c.BaseDir, "worker")
	c.UploadedDir = filepath.Join(c.BaseDir, "uploaded")
	c.DeadLetterDir = filepath.Join(c.BaseDir, "dead_letter")
	c.CsvDir = filepath.Join(c.BaseDir, "csv")

	return c, nil
}

// RequiredDirs returns every directory that must exist (or be creatable)
// under base_dir and share its device, per spec.md's same-device invariant.
func (c *Config) RequiredDirs() []string {
	return []string{c.SourceDir, c.WorkerDir, c.UploadedDir, c.DeadLetterDir, c.CsvDir}
}

func dotlessExtension(s *ini.Section, key string) (string, error) {
	v := strings.ToLower(s.Key(key).String())
	if v == "" {
		return "", errorf("%s.%s is required", s.Name(), key)
	}
	if strings.Contains(v, ".") {
		return "", errorf("%s.%s must not contain a dot, got %q", s.Name(), key, v)
	}
	return v, nil
}

func nonNegSeconds(s *ini.Section, key string) (time.Duration, error) {
	v, err := s.Key(key).Float64()
	if err != nil {
		return 0, errorf("%s.%s: %v", s.Name(), key, err)
	}
	if v < 0 {
		return 0, errorf("%s.%s must be >= 0, got %v", s.Name(), key, v)
	}
	return secondsToDuration(v), nil
}

func minSeconds(s *ini.Section, key string, min float64) (time.Duration, error) {
	v, err := s.Key(key).Float64()
	if err != nil {
		return 0, errorf("%s.%s: %v", s.Name(), key, err)
	}
	if v < min {
		return 0, errorf("%s.%s must be >= %v, got %v", s.Name(), key, min, v)
	}
	return secondsToDuration(v), nil
}

func secondsToDuration(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
