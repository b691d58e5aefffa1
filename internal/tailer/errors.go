// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package tailer

import "errors"

var (
	errInvalidFieldCount = errors.New("tailer: line does not have exactly two commas")
	errInvalidTimestamp  = errors.New("tailer: timestamp is not a non-negative integer")
	errEmptyFilepath     = errors.New("tailer: filepath is empty")
	errInvalidSHA256     = errors.New("tailer: sha256 is not exactly 64 hex characters")
)
