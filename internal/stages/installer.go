package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/psantana5/pyship/internal/inno"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/runner"
)

// Installer compiles the Inno Setup script with ISCC inside Wine
type Installer struct{}

func (Installer) Name() string { return "installer" }

func (Installer) Plan(s *pipeline.State) []runner.Command {
	return []runner.Command{isccCommand(s)}
}

func isccCommand(s *pipeline.State) runner.Command {
	cfg := s.Config
	return s.Wine.Command(cfg.ProjectDir, cfg.Tools.ISCC,
		"/Q",
		"/O"+s.Wine.WindowsPath(cfg.ProjectDir, cfg.InstallerDir()),
		"/F"+cfg.Installer.OutputBaseName,
		s.Wine.WindowsPath(cfg.ProjectDir, cfg.ScriptPath()),
	)
}

func (Installer) Run(ctx context.Context, s *pipeline.State) (err error) {
	cfg := s.Config
	if err := pipeline.Require("frozen app", s.FrozenDir); err != nil {
		return err
	}

	script := inno.FromConfig(cfg, s.Wine)
	if err := inno.WriteFile(cfg.ScriptPath(), script); err != nil {
		return fmt.Errorf("failed to write installer script: %w", err)
	}
	s.Script = cfg.ScriptPath()

	if err := os.MkdirAll(cfg.InstallerDir(), 0o755); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			removePartial(s)
		}
	}()

	if err := s.Exec(ctx, isccCommand(s)); err != nil {
		return err
	}
	path := cfg.InstallerPath()
	if err := pipeline.Require("installer", path); err != nil {
		return fmt.Errorf("ISCC exited 0 but produced no installer: %w", err)
	}
	s.Installer = path
	s.Logger.Info("installer built", logging.Fields{"installer": path})
	return nil
}

// removePartial deletes whatever ISCC left behind for this output name
func removePartial(s *pipeline.State) {
	pattern := filepath.Join(s.Config.InstallerDir(), s.Config.Installer.OutputBaseName+"*")
	matches, _ := filepath.Glob(pattern)
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			s.Logger.Warn("failed to remove partial installer", logging.Fields{"path": m, "error": err.Error()})
			continue
		}
		s.Logger.Debug("removed partial installer", logging.Fields{"path": m})
	}
	s.Installer = ""
}
