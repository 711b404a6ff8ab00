package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pyproject"
	"github.com/psantana5/pyship/internal/runner"
	"github.com/psantana5/pyship/internal/wine"
)

// ErrMissingArtifact is returned by a stage whose input was never produced
var ErrMissingArtifact = errors.New("missing input artifact")

// Artifacts are the outputs produced so far, in pipeline order
type Artifacts struct {
	Wheel       string `json:"wheel,omitempty"`
	Installed   bool   `json:"installed"`
	VersionFile string `json:"version_file,omitempty"`
	FrozenDir   string `json:"frozen_dir,omitempty"`
	Script      string `json:"script,omitempty"`
	Installer   string `json:"installer,omitempty"`
}

// State is shared by the stages of one build
type State struct {
	Config *config.Config
	Runner runner.Runner
	Logger *logging.Logger
	Wine   wine.Env
	// Env is exported to every tool, host and Windows alike.
	Env []string

	Artifacts

	results []*runner.Result
}

// NewState prepares the state for a build of cfg
func NewState(cfg *config.Config, r runner.Runner, logger *logging.Logger) *State {
	if logger == nil {
		logger = logging.Discard()
	}
	env := ReproducibleEnv(cfg)
	return &State{
		Config: cfg,
		Runner: r,
		Logger: logger,
		Env:    env,
		Wine: wine.Env{
			Binary: cfg.Tools.Wine,
			Prefix: cfg.Tools.WinePrefix,
			Extra:  env,
		},
	}
}

// ReproducibleEnv returns SOURCE_DATE_EPOCH and PYTHONHASHSEED for cfg.
// The epoch comes from build.source_date_epoch, then $SOURCE_DATE_EPOCH,
// then the modification time of pyproject.toml; without any of them it is
// not exported.
func ReproducibleEnv(cfg *config.Config) []string {
	var env []string
	if epoch := sourceDateEpoch(cfg); epoch > 0 {
		env = append(env, "SOURCE_DATE_EPOCH="+strconv.FormatInt(epoch, 10))
	}
	if cfg.Build.HashSeed != "" {
		env = append(env, "PYTHONHASHSEED="+cfg.Build.HashSeed)
	}
	return env
}

func sourceDateEpoch(cfg *config.Config) int64 {
	if cfg.Build.SourceDateEpoch > 0 {
		return cfg.Build.SourceDateEpoch
	}
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	if fi, err := os.Stat(filepath.Join(cfg.ProjectDir, pyproject.FileName)); err == nil {
		return fi.ModTime().Unix()
	}
	return 0
}

// Exec runs one command for the current stage and records its result
func (s *State) Exec(ctx context.Context, c runner.Command) error {
	s.Logger.Debug("exec", logging.Fields{"cmd": c.String(), "dir": c.Dir})
	res, err := s.Runner.Run(ctx, c)
	if res != nil {
		s.results = append(s.results, res)
	}
	return err
}

// Require fails with ErrMissingArtifact unless path names an existing file or directory
func Require(what, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s was not produced", ErrMissingArtifact, what)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMissingArtifact, what, path, err)
	}
	return nil
}

func (s *State) takeResults() []*runner.Result {
	out := s.results
	s.results = nil
	return out
}
