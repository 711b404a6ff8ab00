package stages

import (
	"context"

	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/runner"
	"github.com/psantana5/pyship/internal/versioninfo"
)

// VersionFile writes the Windows version resource for the freeze stage
type VersionFile struct{}

var _ pipeline.Describer = VersionFile{}

func (VersionFile) Name() string { return "versionfile" }

func (VersionFile) Plan(*pipeline.State) []runner.Command { return nil }

func (VersionFile) Describe(s *pipeline.State) []string {
	return []string{"write " + s.Config.VersionFilePath()}
}

func (VersionFile) Run(_ context.Context, s *pipeline.State) error {
	path := s.Config.VersionFilePath()
	if err := versioninfo.WriteFile(path, versioninfo.FromConfig(s.Config)); err != nil {
		return err
	}
	s.VersionFile = path
	return nil
}
