package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/exitcode"
	"github.com/psantana5/pyship/internal/hostinfo"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
)

// Outcome of a build
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Artifact is a build output with its digest
type Artifact struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size_bytes"`
}

// Result is the immutable record of one build. Built once from the
// pipeline outcome, never updated.
type Result struct {
	BuildID    string `json:"build_id"`
	App        string `json:"app"`
	Version    string `json:"version"`
	ProjectDir string `json:"project_dir"`
	ConfigFile string `json:"config_file,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration_seconds"`

	Outcome     Outcome `json:"outcome"`
	ExitCode    int     `json:"exit_code"`
	FailedStage string  `json:"failed_stage,omitempty"`
	Error       string  `json:"error,omitempty"`

	Stages    []pipeline.StageResult `json:"stages"`
	Artifacts []Artifact             `json:"artifacts,omitempty"`
	Env       []string               `json:"env,omitempty"`
	Host      hostinfo.Snapshot      `json:"host"`
}

// NewBuildID returns a fresh build identifier
func NewBuildID() string {
	return uuid.NewString()
}

// NewResult freezes a pipeline outcome into a report. Wheel and installer
// digests are computed here.
func NewResult(buildID string, cfg *config.Config, out *pipeline.Outcome, runErr error, host hostinfo.Snapshot, env []string) (*Result, error) {
	r := &Result{
		BuildID:    buildID,
		App:        cfg.App.Name,
		Version:    cfg.App.Version,
		ProjectDir: cfg.ProjectDir,
		ConfigFile: cfg.File,
		StartTime:  out.StartedAt.UTC(),
		EndTime:    out.EndedAt.UTC(),
		Duration:   out.Duration().Seconds(),
		ExitCode:   out.ExitCode,
		Stages:     out.Stages,
		Env:        env,
		Host:       host,
	}

	switch {
	case runErr == nil:
		r.Outcome = OutcomeSuccess
	case errors.Is(runErr, context.Canceled) || out.ExitCode == exitcode.Interrupted:
		r.Outcome = OutcomeCancelled
	default:
		r.Outcome = OutcomeFailed
	}
	if runErr != nil {
		r.Error = runErr.Error()
		var stageErr *pipeline.StageError
		if errors.As(runErr, &stageErr) {
			r.FailedStage = stageErr.Stage
		}
	}

	for _, a := range []struct{ kind, path string }{
		{"wheel", out.Artifacts.Wheel},
		{"installer", out.Artifacts.Installer},
	} {
		if a.path == "" {
			continue
		}
		art, err := Digest(a.kind, a.path)
		if err != nil {
			return nil, err
		}
		r.Artifacts = append(r.Artifacts, art)
	}
	return r, nil
}

// Digest hashes a file with SHA-256
func Digest(kind, path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to digest %s: %w", kind, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to digest %s: %w", kind, err)
	}
	return Artifact{Kind: kind, Path: path, SHA256: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// Artifact returns the artifact of the given kind, if recorded
func (r *Result) Artifact(kind string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// LogSummary emits the one-line build summary
func (r *Result) LogSummary(logger *logging.Logger) {
	fields := logging.Fields{
		"build_id": r.BuildID,
		"app":      r.App,
		"version":  r.Version,
		"outcome":  string(r.Outcome),
		"exit":     r.ExitCode,
		"duration": fmt.Sprintf("%.1fs", r.Duration),
	}
	if a, ok := r.Artifact("installer"); ok {
		fields["installer"] = a.Path
		fields["sha256"] = a.SHA256
	}
	if r.Outcome == OutcomeSuccess {
		logger.Info("build finished", fields)
		return
	}
	fields["stage"] = r.FailedStage
	logger.Error("build failed", fields)
}
