// Package stages implements the build steps:
// clean, wheel, install, versionfile, freeze and installer.
package stages

import "github.com/psantana5/pyship/internal/pipeline"

// Default returns the full build in execution order
func Default() []pipeline.Stage {
	return []pipeline.Stage{
		Clean{},
		Wheel{},
		Install{},
		VersionFile{},
		Freeze{},
		Installer{},
	}
}
