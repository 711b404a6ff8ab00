package stages

import (
	"context"
	"path/filepath"

	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/pyproject"
	"github.com/psantana5/pyship/internal/runner"
)

// Install installs the wheel into the Windows interpreter under Wine
type Install struct{}

func (Install) Name() string { return "install" }

func (Install) Plan(s *pipeline.State) []runner.Command {
	wheel := s.Wheel
	if wheel == "" {
		wheel = filepath.Join(s.Config.DistDir(), pyproject.WheelGlob(distributionName(s), s.Config.App.Version))
	}
	return []runner.Command{installCommand(s, wheel)}
}

func installCommand(s *pipeline.State, wheel string) runner.Command {
	cfg := s.Config
	return s.Wine.Command(cfg.ProjectDir, cfg.Tools.WindowsPython,
		"-m", "pip", "install", "--force-reinstall", "--no-warn-script-location",
		s.Wine.WindowsPath(cfg.ProjectDir, wheel))
}

func (Install) Run(ctx context.Context, s *pipeline.State) error {
	if err := pipeline.Require("wheel", s.Wheel); err != nil {
		return err
	}
	if err := s.Exec(ctx, installCommand(s, s.Wheel)); err != nil {
		return err
	}
	s.Installed = true
	s.Logger.Info("wheel installed", logging.Fields{"wheel": filepath.Base(s.Wheel), "python": s.Config.Tools.WindowsPython})
	return nil
}
