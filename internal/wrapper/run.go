package wrapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/psantana5/ccwrap/internal/logging"
)

// pipeGrace bounds how long relays may keep reading after a timeout kill,
// in case a grandchild still holds the pipes open.
const pipeGrace = 2 * time.Second

// forwardedSignals are relayed to a running child.
var forwardedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Options configure a Wrapper.
type Options struct {
	// Compiler is the real compiler executable.
	Compiler string
	// PolicyFlags are prepended to every request.
	PolicyFlags []string
	// Env is the child's complete environment. Nil inherits the wrapper's.
	Env []string
	// Timeout kills the child when exceeded. Zero waits forever.
	Timeout time.Duration
	// Banners enables the start/end status lines.
	Banners bool
	// ForwardSignals relays SIGINT/SIGTERM to the child while it runs.
	ForwardSignals bool

	Stdout io.Writer
	Stderr io.Writer
	Logger *logging.Logger
}

// Request is one compilation request as received from the caller.
type Request struct {
	Args []string
	Dir  string
}

// NewRequest captures args and the current working directory.
func NewRequest(args []string) (Request, error) {
	dir, err := os.Getwd()
	if err != nil {
		return Request{}, &Error{Kind: KindSupervision, Op: "getwd", Err: err}
	}
	return Request{Args: append([]string(nil), args...), Dir: dir}, nil
}

// Outcome is the final status of one invocation.
type Outcome struct {
	Compiler string
	Args     []string // augmented
	Dir      string
	PID      int

	// ExitCode is the child's code; meaningful only when the child was started.
	ExitCode int
	Reason   ExitReason
	// Err is the wrapper-side failure, nil when the child ran to completion.
	Err *Error
	// RelayErrors are best-effort failures that did not change the outcome.
	RelayErrors []error

	Stdout RelayStats
	Stderr RelayStats

	StartTime time.Time
	EndTime   time.Time
	Events    []LifecycleEvent
}

// Code is the wrapper's own exit status for this outcome.
func (o *Outcome) Code() int {
	// A nil *Error must not reach ExitCodeFor as a non-nil error interface.
	if o.Err == nil {
		return ExitCodeFor(nil, o.ExitCode)
	}
	return ExitCodeFor(o.Err, o.ExitCode)
}

// Duration returns how long the invocation took.
func (o *Outcome) Duration() time.Duration {
	if o.EndTime.IsZero() {
		return time.Since(o.StartTime)
	}
	return o.EndTime.Sub(o.StartTime)
}

func (o *Outcome) emit(state State, message string) {
	o.Events = append(o.Events, LifecycleEvent{State: state, Timestamp: time.Now(), Message: message})
}

func (o *Outcome) fail(err *Error, reason ExitReason) {
	o.Err = err
	o.Reason = reason
	o.emit(StateFailed, err.Error())
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Wrapper runs the real compiler on behalf of a build system.
type Wrapper struct {
	opts    Options
	command commandFunc
}

// New creates a wrapper. Nil writers and logger get safe defaults.
func New(opts Options) *Wrapper {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Wrapper{opts: opts, command: exec.CommandContext}
}

// Run executes one request. It never panics and always returns an Outcome
// whose Code is a well-formed exit status.
func (w *Wrapper) Run(ctx context.Context, req Request) (o *Outcome) {
	o = &Outcome{
		Compiler:  w.opts.Compiler,
		Dir:       req.Dir,
		StartTime: time.Now(),
		Reason:    ExitReasonUnknown,
	}
	o.emit(StateNotStarted, "")

	defer func() {
		if r := recover(); r != nil {
			o.fail(&Error{Kind: KindSupervision, Op: "supervise", Err: fmt.Errorf("panic: %v", r)}, ExitReasonSupervision)
			w.reportFailure(o)
		}
		o.EndTime = time.Now()
		o.emit(StateDone, "")
	}()

	o.emit(StatePreflight, w.opts.Compiler)
	if err := Preflight(w.opts.Compiler); err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			pe = &Error{Kind: KindToolNotFound, Op: "stat", Path: w.opts.Compiler, Err: err}
		}
		o.fail(pe, ExitReasonToolNotFound)
		w.opts.Logger.Debug("compiler not found", logging.Fields{"compiler": w.opts.Compiler})
		return o
	}

	stopPipe := IgnoreBrokenPipe()
	defer stopPipe()

	o.Args = AugmentArgs(w.opts.PolicyFlags, req.Args)
	if w.opts.Banners {
		fmt.Fprintln(w.opts.Stdout, "ccwrap received arguments:")
		fmt.Fprintln(w.opts.Stdout, QuoteArgs(o.Args))
	}

	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	o.emit(StateSpawning, "")
	cmd := w.command(ctx, w.opts.Compiler, o.Args...)
	cmd.Dir = req.Dir
	cmd.Env = w.opts.Env
	// stdin is inherited, never piped or relayed.
	cmd.Stdin = os.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		o.fail(&Error{Kind: KindSpawnFailure, Op: "stdout pipe", Err: err}, ExitReasonSpawnFailed)
		w.reportFailure(o)
		return o
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		o.fail(&Error{Kind: KindSpawnFailure, Op: "stderr pipe", Err: err}, ExitReasonSpawnFailed)
		w.reportFailure(o)
		return o
	}

	if err := cmd.Start(); err != nil {
		o.fail(&Error{Kind: KindSpawnFailure, Op: "start", Path: w.opts.Compiler, Err: err}, ExitReasonSpawnFailed)
		w.reportFailure(o)
		return o
	}
	o.PID = cmd.Process.Pid
	o.emit(StateRunning, fmt.Sprintf("PID %d started", o.PID))
	w.opts.Logger.Debug("compiler started", logging.Fields{"pid": o.PID, "compiler": w.opts.Compiler})

	stopSignals := w.forwardSignals(cmd.Process)
	defer stopSignals()

	if w.opts.Timeout > 0 {
		stop := context.AfterFunc(ctx, func() {
			time.AfterFunc(pipeGrace, func() {
				_ = stdout.Close()
				_ = stderr.Close()
			})
		})
		defer stop()
	}

	var relays conc.WaitGroup
	relays.Go(func() {
		defer drain(stdout)
		o.Stdout = relay("stdout", w.opts.Stdout, stdout)
	})
	relays.Go(func() {
		defer drain(stderr)
		o.Stderr = relay("stderr", w.opts.Stderr, stderr)
	})
	recovered := relays.WaitAndRecover()

	waitErr := cmd.Wait()
	o.emit(StateTerminated, "")
	w.classify(ctx, o, waitErr)

	if recovered != nil && o.Err == nil {
		o.fail(&Error{Kind: KindSupervision, Op: "relay", Err: recovered.AsError()}, ExitReasonSupervision)
	}
	for _, st := range []RelayStats{o.Stdout, o.Stderr} {
		if st.Err != nil {
			o.RelayErrors = append(o.RelayErrors, st.Err)
			w.opts.Logger.Warn("relay error", logging.Fields{"stream": st.Stream, "error": st.Err.Error()})
		}
	}

	o.emit(StateReporting, "")
	if o.Err != nil {
		w.reportFailure(o)
		return o
	}
	if w.opts.Banners {
		w.endBanner(o)
	}
	return o
}

// classify turns the result of cmd.Wait into the outcome's code and reason.
func (w *Wrapper) classify(ctx context.Context, o *Outcome, waitErr error) {
	if waitErr == nil {
		o.ExitCode = 0
		o.Reason = ExitReasonSuccess
		return
	}

	// A child that exited on its own keeps its code even if the deadline
	// passed while its pipes were still draining.
	killed := true

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		o.ExitCode = exitErr.ExitCode()
		o.Reason = ExitReasonError
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			o.Reason = DetermineExitReason(o.ExitCode, status)
			// Windows reports a killed process as a plain exit.
			killed = status.Signaled() || runtime.GOOS == "windows"
			if status.Signaled() {
				o.ExitCode = signalExitCode(status.Signal())
				o.emit(StateTerminated, "killed by "+SignalName(status.Signal()))
			}
		}
	}

	timedOut := killed && errors.Is(ctx.Err(), context.DeadlineExceeded)

	switch {
	case timedOut:
		o.fail(&Error{Kind: KindTimeout, Op: "wait", Path: w.opts.Compiler,
			Err: fmt.Errorf("killed after %s", w.opts.Timeout)}, ExitReasonTimeout)
	case exitErr == nil:
		o.fail(&Error{Kind: KindSupervision, Op: "wait", Err: waitErr}, ExitReasonSupervision)
	}
}

// forwardSignals relays interrupt and terminate signals to p until stopped.
func (w *Wrapper) forwardSignals(p *os.Process) func() {
	if !w.opts.ForwardSignals {
		return func() {}
	}

	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigs, forwardedSignals...)

	go func() {
		for {
			select {
			case sig := <-sigs:
				w.opts.Logger.Info("forwarding signal", logging.Fields{"signal": sig.String(), "pid": p.Pid})
				if err := p.Signal(sig); err != nil {
					w.opts.Logger.Warn("failed to forward signal", logging.Fields{"signal": sig.String(), "error": err.Error()})
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func (w *Wrapper) endBanner(o *Outcome) {
	name := filepath.Base(o.Compiler)
	fmt.Fprintf(w.opts.Stdout, "--- %s Output End ---\n", name)

	line := fmt.Sprintf("ccwrap: %s exited with code: %d", name, o.Code())
	if o.Code() != 0 {
		fmt.Fprintln(w.opts.Stderr, line)
		return
	}
	fmt.Fprintln(w.opts.Stdout, line)
}

// reportFailure writes failure detail to stderr. It runs for every wrapper
// failure except a missing compiler, which stays silent.
func (w *Wrapper) reportFailure(o *Outcome) {
	if o.Err == nil || o.Err.Kind == KindToolNotFound {
		return
	}
	name := filepath.Base(o.Compiler)
	fmt.Fprintf(w.opts.Stderr, "--- %s execution failed (ccwrap %s) ---\n", name, o.Err.Kind)
	fmt.Fprintf(w.opts.Stderr, "ccwrap: %v\n", o.Err)
	if w.opts.Banners {
		fmt.Fprintf(w.opts.Stdout, "--- %s Output End ---\n", name)
		fmt.Fprintf(w.opts.Stderr, "ccwrap: %s exited with code: %d\n", name, o.Code())
	}
	w.opts.Logger.Error("invocation failed", logging.Fields{"kind": o.Err.Kind.String(), "error": o.Err.Error()})
}

// drain discards whatever is left in r so a stuck relay never blocks the child.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
