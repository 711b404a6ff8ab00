package runner

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/pyship/internal/exitcode"
)

// FakeRunner records commands instead of executing them.
// Keys of Fail, Effects and the entries of Missing are matched as substrings
// of the rendered command line.
type FakeRunner struct {
	mu sync.Mutex

	Calls []Command
	// Fail maps a command-line fragment to the exit code returned for it.
	// When several fragments match, the first in sorted order wins.
	Fail map[string]int
	// Missing lists fragments reported as tool-not-found.
	Missing []string
	// Effects simulate what a tool leaves on disk. They run in key order
	// before the exit code is decided.
	Effects map[string]func(Command) error
}

var _ Runner = (*FakeRunner)(nil)

// Run records the command and returns the configured outcome
func (f *FakeRunner) Run(ctx context.Context, c Command) (*Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, c)
	f.mu.Unlock()

	line := c.String()
	now := time.Now()
	res := &Result{Command: c, StartedAt: now, EndedAt: now}

	if err := ctx.Err(); err != nil {
		res.ExitCode = exitcode.Interrupted
		res.Reason = ExitReasonCancelled
		return res, &ExitError{Command: line, Code: res.ExitCode, Reason: res.Reason, Err: err}
	}

	for _, m := range f.Missing {
		if strings.Contains(line, m) {
			res.ExitCode = exitcode.ToolNotFound
			res.Reason = ExitReasonNotFound
			return res, &ExitError{Command: line, Code: res.ExitCode, Reason: res.Reason}
		}
	}

	for _, k := range sortedKeys(f.Effects) {
		if strings.Contains(line, k) {
			if err := f.Effects[k](c); err != nil {
				return res, err
			}
		}
	}

	for _, fragment := range sortedKeys(f.Fail) {
		if strings.Contains(line, fragment) {
			code := f.Fail[fragment]
			res.ExitCode = code
			res.Reason = ExitReasonError
			return res, &ExitError{Command: line, Code: code, Reason: res.Reason}
		}
	}

	res.Reason = ExitReasonSuccess
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lines returns the recorded command lines in call order
func (f *FakeRunner) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.String()
	}
	return out
}
