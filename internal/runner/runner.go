package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/psantana5/pyship/internal/exitcode"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/observe"
)

// Command is one external tool invocation
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
	Dir  string   `json:"dir,omitempty"`
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string `json:"env,omitempty"`
}

// String renders the command line, quoting arguments that contain spaces
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// Result is the outcome of one command
type Result struct {
	Command   Command    `json:"command"`
	PID       int        `json:"pid,omitempty"`
	ExitCode  int        `json:"exit_code"`
	Reason    ExitReason `json:"exit_reason"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
	Events    []Event    `json:"events,omitempty"`
}

// Duration returns how long the command ran
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

func (r *Result) emit(phase Phase, message string) {
	r.Events = append(r.Events, Event{Phase: phase, At: time.Now(), PID: r.PID, Message: message})
}

// ExitError reports a command that did not exit with status zero
type ExitError struct {
	Command string
	Code    int
	Reason  ExitReason
	Err     error
}

func (e *ExitError) Error() string {
	switch e.Reason {
	case ExitReasonNotFound:
		return fmt.Sprintf("%s: tool not found", e.Command)
	case ExitReasonCancelled:
		return fmt.Sprintf("%s: cancelled", e.Command)
	default:
		return fmt.Sprintf("%s: exit status %d (%s)", e.Command, e.Code, e.Reason)
	}
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec, forwarding their output verbatim
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *logging.Logger
	// WaitDelay bounds how long a cancelled tool may take to exit before it is killed.
	WaitDelay time.Duration
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner attached to the process stdout/stderr
func NewExecRunner(logger *logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExecRunner{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Logger:    logger,
		WaitDelay: 10 * time.Second,
	}
}

// Run starts the command and blocks until it exits
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	line := c.String()
	res := &Result{Command: c}
	timing := observe.NewTiming(nil)
	res.StartedAt = timing.StartedAt
	res.emit(StateStarting, "spawning tool")

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.WaitDelay = r.WaitDelay
	configureProcess(cmd)

	r.Logger.Debug("running tool", logging.Fields{"command": line, "dir": c.Dir})

	if err := cmd.Start(); err != nil {
		timing.Complete()
		res.EndedAt = timing.CompletedAt
		if isNotFound(err) {
			res.ExitCode = exitcode.ToolNotFound
			res.Reason = ExitReasonNotFound
			res.emit(StateFailed, err.Error())
			return res, &ExitError{Command: line, Code: res.ExitCode, Reason: res.Reason, Err: err}
		}
		res.ExitCode = exitcode.Failure
		res.Reason = ExitReasonUnknown
		res.emit(StateFailed, err.Error())
		return res, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	res.PID = cmd.Process.Pid
	res.emit(StateRunning, fmt.Sprintf("PID %d started", res.PID))

	waitErr := cmd.Wait()
	timing.Complete()
	res.EndedAt = timing.CompletedAt

	if waitErr == nil {
		res.ExitCode = 0
		res.Reason = ExitReasonSuccess
		res.emit(StateCompleted, "completed successfully")
		r.Logger.Debug("tool exited", logging.Fields{"command": line, "duration": res.Duration().String()})
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = exitcode.Interrupted
		res.Reason = ExitReasonCancelled
		res.emit(StateKilled, "build cancelled")
		return res, &ExitError{Command: line, Code: res.ExitCode, Reason: res.Reason, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		res.ExitCode = exitcode.Failure
		res.Reason = ExitReasonUnknown
		res.emit(StateFailed, waitErr.Error())
		return res, fmt.Errorf("waiting for %s: %w", c.Name, waitErr)
	}

	res.ExitCode = exitErr.ExitCode()
	res.Reason = ExitReasonError
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		// Same convention as a POSIX shell: 128 + signal number.
		res.ExitCode = 128 + int(status.Signal())
		res.Reason = ExitReasonSignal
		res.emit(StateKilled, "killed by "+signalName(status.Signal()))
	} else {
		res.emit(StateFailed, fmt.Sprintf("exited with code %d", res.ExitCode))
	}

	return res, &ExitError{Command: line, Code: res.ExitCode, Reason: res.Reason, Err: waitErr}
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
