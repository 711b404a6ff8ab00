package stages

import (
	"archive/zip"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/pyproject"
	"github.com/psantana5/pyship/internal/runner"
)

// Wheel builds the project wheel on the host with python -m build
type Wheel struct{}

func (Wheel) Name() string { return "wheel" }

func (Wheel) Plan(s *pipeline.State) []runner.Command {
	cfg := s.Config
	return []runner.Command{{
		Name: cfg.Tools.Python,
		Args: []string{"-m", "build", "--wheel", "--outdir", cfg.DistDir(), cfg.ProjectDir},
		Dir:  cfg.ProjectDir,
		Env:  s.Env,
	}}
}

func (w Wheel) Run(ctx context.Context, s *pipeline.State) error {
	for _, c := range w.Plan(s) {
		if err := s.Exec(ctx, c); err != nil {
			return err
		}
	}

	wheel, err := FindWheel(s.Config.DistDir(), distributionName(s), s.Config.App.Version)
	if err != nil {
		return err
	}
	if err := checkWheel(wheel); err != nil {
		return err
	}
	s.Wheel = wheel
	s.Logger.Info("wheel built", logging.Fields{"wheel": filepath.Base(wheel)})
	return nil
}

// distributionName prefers the pyproject name, which is what the wheel is
// named after, over the display name
func distributionName(s *pipeline.State) string {
	if p, err := pyproject.Load(s.Config.ProjectDir); err == nil {
		return p.Name
	}
	return s.Config.App.Name
}

// FindWheel locates the single wheel for name in dir. Build backends
// normalize versions (1.0-beta becomes 1.0b0) so when no wheel carries the
// configured version any version of the project is accepted, as long as
// there is exactly one.
func FindWheel(dir, name, version string) (string, error) {
	globs := []string{pyproject.WheelGlob(name, version)}
	if version != "" {
		globs = append(globs, pyproject.WheelGlob(name, ""))
	}
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, g))
		if err != nil {
			return "", err
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			sort.Strings(matches)
			return "", fmt.Errorf("found %d wheels for %s in %s: %s", len(matches), name, dir, strings.Join(matches, ", "))
		}
	}
	return "", fmt.Errorf("%w: no wheel for %s in %s", pipeline.ErrMissingArtifact, name, dir)
}

// checkWheel verifies the wheel is a zip archive with a .dist-info/WHEEL entry
func checkWheel(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("wheel %s is not a valid archive: %w", filepath.Base(path), err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".dist-info/WHEEL") {
			return nil
		}
	}
	return fmt.Errorf("wheel %s has no .dist-info/WHEEL metadata", filepath.Base(path))
}
