// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package supervisor

import (
	"fmt"

	"github.com/pcapshuttle/pcapshuttle/internal/pipelinefs"
)

// validateDirectories implements spec.md section 4.7's precondition: every
// required directory must exist (or be creatable under base_dir) and
// share base_dir's device, so every later move is a same-device rename.
func validateDirectories(fs pipelinefs.FS, baseDir string, dirs []string) error {
	if !fs.IsDir(baseDir) {
		if err := fs.MkdirAll(baseDir, true); err != nil {
			return fmt.Errorf("base_dir %s does not exist and could not be created: %w", baseDir, err)
		}
	}

	for _, d := range dirs {
		if !fs.Exists(d) {
			if err := fs.MkdirAll(d, true); err != nil {
				return fmt.Errorf("required directory %s does not exist and could not be created: %w", d, err)
			}
		} else if !fs.IsDir(d) {
			return fmt.Errorf("required path %s exists and is not a directory", d)
		}

		same, err := fs.SameDevice(baseDir, d)
		if err != nil {
			return fmt.Errorf("could not compare device of %s and %s: %w", baseDir, d, err)
		}
		if !same {
			return fmt.Errorf("%s is not on the same device as base_dir %s", d, baseDir)
		}
	}
	return nil
}
