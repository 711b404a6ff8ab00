package runner

import (
	"fmt"
	"syscall"
	"time"
)

// Phase is a step in the life of one tool process
type Phase string

const (
	StateStarting  Phase = "starting"
	StateRunning   Phase = "running"
	StateCompleted Phase = "completed"
	StateFailed    Phase = "failed"
	StateKilled    Phase = "killed"
)

// ExitReason classifies how a tool process ended. The build report uses it
// to tell a missing Wine or ISCC binary apart from a tool that ran and failed.
type ExitReason string

const (
	ExitReasonSuccess   ExitReason = "success"
	ExitReasonError     ExitReason = "error"
	ExitReasonSignal    ExitReason = "signal"
	ExitReasonNotFound  ExitReason = "not_found"
	ExitReasonCancelled ExitReason = "cancelled"
	ExitReasonUnknown   ExitReason = "unknown"
)

// Event is a timestamped phase change of a tool process
type Event struct {
	Phase   Phase     `json:"phase"`
	At      time.Time `json:"at"`
	PID     int       `json:"pid,omitempty"`
	Message string    `json:"message,omitempty"`
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	}
	return fmt.Sprintf("signal %d", int(sig))
}
