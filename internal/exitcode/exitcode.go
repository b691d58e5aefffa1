// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package exitcode maps run outcomes to the sysexits subset spec.md
// section 6 specifies.
package exitcode

const (
	OK           = 0
	Usage        = 64
	Unavailable  = 69 // platform unavailable (non-Linux)
	Software     = 70
	OSError      = 71
	TempFail     = 75 // restart-worthy: a worker died
	ConfigError  = 78
)
