package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/runner"
)

// Clean removes everything a previous build left behind
type Clean struct{}

var _ pipeline.Describer = Clean{}

func (Clean) Name() string { return "clean" }

func (Clean) Plan(*pipeline.State) []runner.Command { return nil }

func (Clean) Describe(s *pipeline.State) []string {
	targets, err := CleanTargets(s.Config)
	if err != nil {
		return []string{err.Error()}
	}
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = "remove " + t
	}
	return out
}

func (Clean) Run(_ context.Context, s *pipeline.State) error {
	targets, err := CleanTargets(s.Config)
	if err != nil {
		return err
	}
	removed := 0
	for _, t := range targets {
		if _, err := os.Lstat(t); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(t); err != nil {
			return fmt.Errorf("failed to remove %s: %w", t, err)
		}
		s.Logger.Debug("removed", logging.Fields{"path": t})
		removed++
	}
	s.Logger.Info("workspace clean", logging.Fields{"removed": removed})
	s.Artifacts = pipeline.Artifacts{}
	return nil
}

// CleanTargets lists the paths clean removes: work dir, dist dir, installer
// output dir, generated version file and script, *.spec files in the project
// dir and the build.extra_clean globs. A target that is the project dir, one
// of its parents or the filesystem root is refused.
func CleanTargets(cfg *config.Config) ([]string, error) {
	seen := make(map[string]bool)
	var targets []string
	add := func(p string) error {
		p = filepath.Clean(p)
		if err := checkTarget(cfg.ProjectDir, p); err != nil {
			return err
		}
		if !seen[p] {
			seen[p] = true
			targets = append(targets, p)
		}
		return nil
	}

	for _, p := range []string{cfg.WorkDir(), cfg.DistDir(), cfg.InstallerDir(), cfg.VersionFilePath(), cfg.ScriptPath()} {
		if err := add(p); err != nil {
			return nil, err
		}
	}

	patterns := []string{filepath.Join(cfg.ProjectDir, "*.spec")}
	for _, g := range cfg.Build.ExtraClean {
		patterns = append(patterns, cfg.Path(g))
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad clean pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	return targets, nil
}

func checkTarget(projectDir, target string) error {
	if target == filepath.Dir(target) {
		return fmt.Errorf("refusing to remove filesystem root %s", target)
	}
	rel, err := filepath.Rel(target, projectDir)
	if err == nil && (rel == "." || !strings.HasPrefix(rel, "..")) {
		return fmt.Errorf("refusing to remove %s: it contains the project dir", target)
	}
	return nil
}
