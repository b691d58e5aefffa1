// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package supervisor

import (
	"testing"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefstest"
	"github.com/stretchr/testify/require"
)

func TestValidateDirectoriesCreatesMissing(t *testing.T) {
	fs := pipelinefstest.New()
	fs.MkdirAll("/b", true)

	err := validateDirectories(fs, "/b", []string{"/b/source", "/b/worker"})
	require.NoError(t, err)
	require.True(t, fs.IsDir("/b/source"))
	require.True(t, fs.IsDir("/b/worker"))
}
