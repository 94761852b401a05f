package wrapper

import (
	"fmt"
	"syscall"
	"time"
)

// State is a step of one invocation's lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StatePreflight  State = "preflight"
	StateSpawning   State = "spawning"
	StateRunning    State = "running"
	StateTerminated State = "terminated"
	StateReporting  State = "reporting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// ExitReason describes why an invocation ended.
type ExitReason string

const (
	ExitReasonSuccess      ExitReason = "success"        // child exited 0
	ExitReasonError        ExitReason = "error"          // child exited nonzero
	ExitReasonSignal       ExitReason = "signal"         // child killed by signal
	ExitReasonTimeout      ExitReason = "timeout"        // configured timeout hit
	ExitReasonToolNotFound ExitReason = "tool_not_found" // compiler missing
	ExitReasonSpawnFailed  ExitReason = "spawn_failed"
	ExitReasonSupervision  ExitReason = "supervision_failed"
	ExitReasonUnknown      ExitReason = "unknown"
)

// IsWrapperFailure reports whether the wrapper, not the compiler, caused the outcome.
func (r ExitReason) IsWrapperFailure() bool {
	switch r {
	case ExitReasonTimeout, ExitReasonToolNotFound, ExitReasonSpawnFailed, ExitReasonSupervision:
		return true
	}
	return false
}

// LifecycleEvent records one state transition.
type LifecycleEvent struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// DetermineExitReason classifies a terminated child from its wait status.
func DetermineExitReason(exitCode int, status syscall.WaitStatus) ExitReason {
	if status.Signaled() {
		return ExitReasonSignal
	}
	if status.Exited() {
		if exitCode == 0 {
			return ExitReasonSuccess
		}
		return ExitReasonError
	}
	return ExitReasonUnknown
}

// signalExitCode follows the shell convention for signal deaths.
func signalExitCode(sig syscall.Signal) int {
	return 128 + int(sig)
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	default:
		return fmt.Sprintf("SIG%d", int(sig))
	}
}
