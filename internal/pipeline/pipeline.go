// Package pipeline runs the build stages strictly in order and stops at
// the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/exitcode"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/observe"
	"github.com/psantana5/pyship/internal/runner"
)

// Stage is one step of the build
type Stage interface {
	Name() string
	// Plan lists the commands Run would execute, without side effects.
	Plan(s *State) []runner.Command
	Run(ctx context.Context, s *State) error
}

// Describer is implemented by stages that act on the filesystem and have
// nothing to show in Plan
type Describer interface {
	Describe(s *State) []string
}

// StageStatus is the outcome of one stage
type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
)

// StageResult records one stage of a build
type StageResult struct {
	Name      string           `json:"name"`
	Status    StageStatus      `json:"status"`
	StartedAt time.Time        `json:"started_at,omitempty"`
	Duration  time.Duration    `json:"duration_ns"`
	ExitCode  int              `json:"exit_code"`
	Error     string           `json:"error,omitempty"`
	Commands  []*runner.Result `json:"commands,omitempty"`
}

// Outcome is what a pipeline run produced
type Outcome struct {
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Stages    []StageResult `json:"stages"`
	Artifacts Artifacts     `json:"artifacts"`
	ExitCode  int           `json:"exit_code"`
}

// Duration is the wall time of the whole run
func (o *Outcome) Duration() time.Duration {
	return o.EndedAt.Sub(o.StartedAt)
}

// StageError wraps the error of the first failing stage
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline is an ordered list of stages
type Pipeline struct {
	stages []Stage
	logger *logging.Logger
	now    observe.Clock
}

// New builds a pipeline from stages in execution order
func New(logger *logging.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{stages: stages, logger: logger, now: time.Now}
}

// Stages returns the stages in execution order
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Run executes every stage in order. The first failing stage aborts the
// run; later stages are recorded as skipped. The returned Outcome is never nil.
func (p *Pipeline) Run(ctx context.Context, s *State) (*Outcome, error) {
	out := &Outcome{StartedAt: p.now()}
	var runErr error

	for _, st := range p.stages {
		if runErr != nil {
			out.Stages = append(out.Stages, StageResult{Name: st.Name(), Status: StatusSkipped})
			continue
		}

		res := StageResult{Name: st.Name(), StartedAt: p.now()}
		timing := observe.NewTiming(p.now)
		p.logger.Info("stage started", logging.Fields{"stage": st.Name()})

		err := ctx.Err()
		if err == nil {
			err = st.Run(ctx, s)
		}
		timing.Complete()

		res.Duration = timing.Duration()
		res.Commands = s.takeResults()
		if err != nil {
			runErr = &StageError{Stage: st.Name(), Err: err}
			res.Status = StatusFailed
			res.Error = err.Error()
			res.ExitCode = ExitCode(err)
			p.logger.Error("stage failed", logging.Fields{
				"stage":     st.Name(),
				"exit_code": res.ExitCode,
				"error":     err.Error(),
				"duration":  res.Duration.Round(time.Millisecond).String(),
			})
		} else {
			res.Status = StatusOK
			p.logger.Info("stage completed", logging.Fields{
				"stage":    st.Name(),
				"duration": res.Duration.Round(time.Millisecond).String(),
			})
		}
		out.Stages = append(out.Stages, res)
	}

	out.EndedAt = p.now()
	out.Artifacts = s.Artifacts
	out.ExitCode = ExitCode(runErr)
	return out, runErr
}

// PlannedStage is one entry of a dry run
type PlannedStage struct {
	Stage    string           `json:"stage"`
	Commands []runner.Command `json:"commands,omitempty"`
	Actions  []string         `json:"actions,omitempty"`
}

// Plan lists what Run would do without executing anything
func (p *Pipeline) Plan(s *State) []PlannedStage {
	planned := make([]PlannedStage, 0, len(p.stages))
	for _, st := range p.stages {
		ps := PlannedStage{Stage: st.Name(), Commands: st.Plan(s)}
		if d, ok := st.(Describer); ok {
			ps.Actions = d.Describe(s)
		}
		planned = append(planned, ps)
	}
	return planned
}

// ExitCode maps a build error to the process exit code. A failing tool's
// own exit code is passed through.
func ExitCode(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, config.ErrInvalidConfig) {
		return exitcode.InvalidConfig
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitcode.Interrupted
	}
	return exitcode.Failure
}
