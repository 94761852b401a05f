package report

// A Result is written once, after the invocation has finished, and never changed.
// Journal records, metrics and summaries are all projections of it.

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/ccwrap/internal/logging"
	"github.com/psantana5/ccwrap/internal/wrapper"
)

// Outcome classes used in metrics and summaries.
const (
	OutcomeSuccess        = "success"
	OutcomeChildFailure   = "child_failure"
	OutcomeWrapperFailure = "wrapper_failure"
)

// Result is the immutable record of one invocation.
type Result struct {
	// Identity
	ID       string   `json:"id"`
	Compiler string   `json:"compiler"`
	Args     []string `json:"args"`
	Dir      string   `json:"dir"`
	PID      int      `json:"pid,omitempty"`

	// ArgsTruncated is set when Args was cut to keep the journal line bounded.
	ArgsTruncated bool `json:"args_truncated,omitempty"`

	// Timing
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration_seconds"`

	// Outcome. Code is what the wrapper exited with; ChildCode what the compiler did.
	Code      int    `json:"code"`
	ChildCode int    `json:"child_code"`
	Reason    string `json:"reason"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	// Relay
	StdoutLines int64 `json:"stdout_lines"`
	StderrLines int64 `json:"stderr_lines"`
	StdoutBytes int64 `json:"stdout_bytes"`
	StderrBytes int64 `json:"stderr_bytes"`
	RelayErrors int   `json:"relay_errors,omitempty"`
}

// FromOutcome freezes a wrapper outcome into a Result with a fresh ID.
func FromOutcome(o *wrapper.Outcome) *Result {
	r := &Result{
		ID:          uuid.New().String(),
		Compiler:    o.Compiler,
		Args:        o.Args,
		Dir:         o.Dir,
		PID:         o.PID,
		StartTime:   o.StartTime,
		EndTime:     o.EndTime,
		Duration:    o.Duration().Seconds(),
		Code:        o.Code(),
		ChildCode:   o.ExitCode,
		Reason:      string(o.Reason),
		StdoutLines: o.Stdout.Lines,
		StderrLines: o.Stderr.Lines,
		StdoutBytes: o.Stdout.Bytes,
		StderrBytes: o.Stderr.Bytes,
		RelayErrors: len(o.RelayErrors),
	}
	if o.Err != nil {
		r.ErrorKind = o.Err.Kind.String()
		r.Error = o.Err.Error()
	}
	return r
}

// Outcome classifies the result as success, child failure or wrapper failure.
func (r *Result) Outcome() string {
	switch {
	case r.ErrorKind != "" && r.ErrorKind != wrapper.KindRelayFailure.String():
		return OutcomeWrapperFailure
	case r.Code != 0:
		return OutcomeChildFailure
	default:
		return OutcomeSuccess
	}
}

// Failed reports whether the invocation did not succeed.
func (r *Result) Failed() bool {
	return r.Outcome() != OutcomeSuccess
}

// LogSummary emits the one-line summary ops grep for.
func (r *Result) LogSummary(logger *logging.Logger) {
	fields := logging.Fields{
		"id":       r.ID,
		"compiler": filepath.Base(r.Compiler),
		"code":     r.Code,
		"reason":   r.Reason,
		"duration": fmt.Sprintf("%.3fs", r.Duration),
		"stdout":   r.StdoutLines,
		"stderr":   r.StderrLines,
	}
	if r.PID != 0 {
		fields["pid"] = r.PID
	}

	switch r.Outcome() {
	case OutcomeWrapperFailure:
		fields["error"] = r.Error
		logger.Error("invocation", fields)
	default:
		// A failed compile is the compiler's news, not the wrapper's.
		logger.Info("invocation", fields)
	}
}
