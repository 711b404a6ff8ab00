package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/runner"
)

// Freeze runs PyInstaller inside Wine against the entry script
type Freeze struct{}

func (Freeze) Name() string { return "freeze" }

func (Freeze) Plan(s *pipeline.State) []runner.Command {
	return []runner.Command{freezeCommand(s)}
}

// FreezeArgs builds the PyInstaller argument list. Host paths are
// translated to what the Windows interpreter sees; --add-data uses the
// Windows "src;dest" separator.
func FreezeArgs(s *pipeline.State) []string {
	cfg := s.Config
	win := func(p string) string { return s.Wine.WindowsPath(cfg.ProjectDir, p) }

	args := []string{"-m", "PyInstaller", "--noconfirm"}
	distPath := cfg.DistDir()
	if cfg.Freeze.OneDir {
		args = append(args, "--onedir")
	} else {
		args = append(args, "--onefile")
		distPath = cfg.FrozenDir()
	}
	if cfg.Freeze.Windowed {
		args = append(args, "--windowed")
	}
	args = append(args,
		"--name", cfg.App.ExeName,
		"--distpath", win(distPath),
		"--workpath", win(cfg.WorkDir()),
		"--specpath", win(cfg.WorkDir()),
	)
	if cfg.App.Icon != "" {
		args = append(args, "--icon", win(cfg.App.Icon))
	}
	if cfg.App.Splash != "" {
		args = append(args, "--splash", win(cfg.App.Splash))
	}
	versionFile := s.VersionFile
	if versionFile == "" {
		versionFile = cfg.VersionFilePath()
	}
	args = append(args, "--version-file", win(versionFile))
	args = append(args, "--log-level", strings.ToUpper(cfg.Freeze.LogLevel))
	if cfg.Freeze.Optimize > 0 {
		args = append(args, "--optimize", strconv.Itoa(cfg.Freeze.Optimize))
	}
	for _, d := range cfg.Freeze.Data {
		dest := strings.ReplaceAll(d.Dest, "/", `\`)
		args = append(args, "--add-data", win(d.Src)+";"+dest)
	}
	for _, m := range cfg.Freeze.HiddenImports {
		args = append(args, "--hidden-import", m)
	}
	args = append(args, cfg.Freeze.ExtraArgs...)
	return append(args, win(cfg.App.EntryScript))
}

func freezeCommand(s *pipeline.State) runner.Command {
	return s.Wine.Command(s.Config.ProjectDir, s.Config.Tools.WindowsPython, FreezeArgs(s)...)
}

func (Freeze) Run(ctx context.Context, s *pipeline.State) error {
	if !s.Installed {
		return fmt.Errorf("%w: the wheel has not been installed into the Windows interpreter", pipeline.ErrMissingArtifact)
	}
	if err := pipeline.Require("version file", s.VersionFile); err != nil {
		return err
	}
	if err := s.Exec(ctx, freezeCommand(s)); err != nil {
		return err
	}

	exe := s.Config.FrozenExe()
	if err := pipeline.Require("frozen executable", exe); err != nil {
		return fmt.Errorf("PyInstaller exited 0 but produced no executable: %w", err)
	}
	s.FrozenDir = s.Config.FrozenDir()
	s.Logger.Info("app frozen", logging.Fields{"dir": s.FrozenDir})
	return nil
}
